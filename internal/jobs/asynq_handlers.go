package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"kazka/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type definitions
const (
	TypeReconcileIntent      = "intent:reconcile"
	TypeActivateSubscription = "subscription:activate"
	TypeGenerateReceipt      = "receipt:generate"
)

// ReconcileIntentPayload defines the payload for reconcile tasks
type ReconcileIntentPayload struct {
	InvoiceID string `json:"invoice_id"`
}

// ActivateSubscriptionPayload defines the payload for activation retries
type ActivateSubscriptionPayload struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
}

// GenerateReceiptPayload defines the payload for receipt generation
type GenerateReceiptPayload struct {
	InvoiceID string `json:"invoice_id"`
}

// NewReconcileIntentTask creates a task re-checking an intent against the
// gateway out of band
func NewReconcileIntentTask(invoiceID string) (*asynq.Task, error) {
	data, err := json.Marshal(ReconcileIntentPayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcileIntent, data), nil
}

// NewActivateSubscriptionTask creates a retry task for a failed activation
func NewActivateSubscriptionTask(subscriptionID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(ActivateSubscriptionPayload{SubscriptionID: subscriptionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeActivateSubscription, data), nil
}

// NewGenerateReceiptTask creates a receipt generation task
func NewGenerateReceiptTask(invoiceID string) (*asynq.Task, error) {
	data, err := json.Marshal(GenerateReceiptPayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerateReceipt, data), nil
}

// AsynqEnqueuer hands follow-up work from the reconciler and webhook
// receiver to the queue; it satisfies services.TaskEnqueuer
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(redisAddr, redisPassword string, redisDB int) *AsynqEnqueuer {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) EnqueueActivation(ctx context.Context, subscriptionID uuid.UUID) error {
	task, err := NewActivateSubscriptionTask(subscriptionID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	return err
}

func (e *AsynqEnqueuer) EnqueueReceipt(ctx context.Context, invoiceID string) error {
	task, err := NewGenerateReceiptTask(invoiceID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	return err
}

func (e *AsynqEnqueuer) EnqueueReconcile(ctx context.Context, invoiceID string) error {
	task, err := NewReconcileIntentTask(invoiceID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	return err
}

func (e *AsynqEnqueuer) Close() error {
	return e.client.Close()
}

// TaskHandlers processes queued tasks
type TaskHandlers struct {
	intentSvc       services.IntentService
	subscriptionSvc services.SubscriptionService
	receiptSvc      services.ReceiptService
}

func NewTaskHandlers(intentSvc services.IntentService, subscriptionSvc services.SubscriptionService, receiptSvc services.ReceiptService) *TaskHandlers {
	return &TaskHandlers{
		intentSvc:       intentSvc,
		subscriptionSvc: subscriptionSvc,
		receiptSvc:      receiptSvc,
	}
}

// HandleReconcileIntent re-reads the intent status; GetStatus feeds any
// terminal gateway outcome through the reconciler
func (h *TaskHandlers) HandleReconcileIntent(ctx context.Context, t *asynq.Task) error {
	var payload ReconcileIntentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid reconcile payload: %v: %w", err, asynq.SkipRetry)
	}

	intent, err := h.intentSvc.GetStatus(ctx, payload.InvoiceID)
	if err != nil {
		return err
	}
	log.Printf("reconcile task: intent %s is %s", intent.ID, intent.Status)
	return nil
}

// HandleActivateSubscription retries a failed activation
func (h *TaskHandlers) HandleActivateSubscription(ctx context.Context, t *asynq.Task) error {
	var payload ActivateSubscriptionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid activation payload: %v: %w", err, asynq.SkipRetry)
	}
	return h.subscriptionSvc.ActivateOrRenew(ctx, payload.SubscriptionID)
}

// HandleGenerateReceipt renders and stores the receipt PDF
func (h *TaskHandlers) HandleGenerateReceipt(ctx context.Context, t *asynq.Task) error {
	var payload GenerateReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid receipt payload: %v: %w", err, asynq.SkipRetry)
	}

	object, err := h.receiptSvc.GenerateAndStore(ctx, payload.InvoiceID)
	if err != nil {
		return err
	}
	log.Printf("receipt task: stored %s for invoice %s", object, payload.InvoiceID)
	return nil
}

// NewServeMux registers all task handlers
func (h *TaskHandlers) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReconcileIntent, h.HandleReconcileIntent)
	mux.HandleFunc(TypeActivateSubscription, h.HandleActivateSubscription)
	mux.HandleFunc(TypeGenerateReceipt, h.HandleGenerateReceipt)
	return mux
}

var _ services.TaskEnqueuer = (*AsynqEnqueuer)(nil)
