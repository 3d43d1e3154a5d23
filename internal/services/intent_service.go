package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"kazka/internal/caching"
	"kazka/internal/models"
	"kazka/internal/repositories"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAmount marks a non-positive amount; caller bug, not retryable
	ErrInvalidAmount = errors.New("amount must be a positive integer in minor units")
	// ErrInvalidCurrency marks a currency outside the allow-list
	ErrInvalidCurrency = errors.New("currency is not supported")
	// ErrOrderRefRequired marks a missing idempotency reference
	ErrOrderRefRequired = errors.New("order_ref is required")
)

var allowedCurrencies = map[string]bool{
	"UAH": true,
	"USD": true,
	"EUR": true,
}

// terminal snapshots never change, so they can be cached indefinitely;
// this TTL just bounds redis memory
const intentSnapshotTTL = 12 * time.Hour

// SubscriptionActivator applies a paid order to the linked subscription
type SubscriptionActivator interface {
	ActivateOrRenew(ctx context.Context, subscriptionID uuid.UUID) error
}

// TaskEnqueuer hands follow-up work to the background queue
type TaskEnqueuer interface {
	EnqueueActivation(ctx context.Context, subscriptionID uuid.UUID) error
	EnqueueReceipt(ctx context.Context, invoiceID string) error
	EnqueueReconcile(ctx context.Context, invoiceID string) error
}

// IntentService is the payment intent manager and the single reconciliation
// choke point. Every status write goes through Apply.
type IntentService interface {
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*models.PaymentIntent, error)
	GetStatus(ctx context.Context, invoiceID string) (*models.PaymentIntent, error)
	Apply(ctx context.Context, invoiceID string, status models.IntentStatus, source models.IntentSource) (*models.PaymentIntent, error)
	ExpireStale(ctx context.Context) (int, error)
}

type CreateIntentRequest struct {
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Description    string     `json:"description"`
	CustomerEmail  string     `json:"customer_email,omitempty"`
	OrderRef       string     `json:"order_ref"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
}

type intentService struct {
	intentRepo repositories.PaymentIntentRepository
	gateway    GatewayService
	activator  SubscriptionActivator
	cache      caching.CacheService
	tasks      TaskEnqueuer
	invoiceTTL time.Duration
}

// NewIntentService creates the payment intent manager. Cache and task queue
// are optional; activator must handle the SUCCESS side effect.
func NewIntentService(
	intentRepo repositories.PaymentIntentRepository,
	gateway GatewayService,
	activator SubscriptionActivator,
	cache caching.CacheService,
	tasks TaskEnqueuer,
	invoiceTTL time.Duration,
) IntentService {
	if invoiceTTL <= 0 {
		invoiceTTL = 24 * time.Hour
	}
	return &intentService{
		intentRepo: intentRepo,
		gateway:    gateway,
		activator:  activator,
		cache:      cache,
		tasks:      tasks,
		invoiceTTL: invoiceTTL,
	}
}

// MapGatewayStatus translates gateway status strings into local intent states
func MapGatewayStatus(status string) (models.IntentStatus, bool) {
	switch strings.ToUpper(status) {
	case "PENDING", "CREATED":
		return models.IntentStatusPending, true
	case "PAID", "SUCCESS", "SETTLED":
		return models.IntentStatusSuccess, true
	case "FAILED", "DECLINED", "CANCELLED":
		return models.IntentStatusFailed, true
	case "EXPIRED":
		return models.IntentStatusExpired, true
	default:
		return "", false
	}
}

// CreateIntent validates the request, persists a PENDING record and then
// registers the invoice with the gateway. The provisional record is written
// first so a crash mid-call still leaves an inspectable intent, and a retry
// with the same order_ref resumes instead of double-charging.
func (s *intentService) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*models.PaymentIntent, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !allowedCurrencies[currency] {
		return nil, ErrInvalidCurrency
	}
	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		return nil, ErrOrderRefRequired
	}

	if existing, err := s.intentRepo.GetByOrderRef(ctx, orderRef); err == nil {
		if existing.ID != existing.OrderRef {
			// gateway already assigned an invoice id on a previous attempt
			return existing, nil
		}
	} else if !errors.Is(err, repositories.ErrIntentNotFound) {
		return nil, err
	}

	provisional := &models.PaymentIntent{
		ID:             orderRef,
		OrderRef:       orderRef,
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		Currency:       currency,
		Description:    req.Description,
		Status:         models.IntentStatusPending,
		ExpiresAt:      time.Now().Add(s.invoiceTTL),
	}
	if err := s.intentRepo.Create(ctx, provisional); err != nil {
		return nil, err
	}

	resp, err := s.gateway.CreateInvoice(ctx, &CreateInvoiceRequest{
		OrderRef:      orderRef,
		Amount:        req.Amount,
		Currency:      currency,
		Description:   req.Description,
		CustomerEmail: req.CustomerEmail,
		TTLSeconds:    int(s.invoiceTTL.Seconds()),
	})
	if err != nil {
		// the provisional PENDING row stays behind for inspection and retry
		return nil, err
	}

	expiresAt := resp.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = provisional.ExpiresAt
	}
	intent, err := s.intentRepo.AssignGateway(ctx, orderRef, resp.InvoiceID, resp.PaymentURL, expiresAt)
	if err != nil {
		return nil, err
	}

	s.cacheIntent(ctx, intent)
	return intent, nil
}

// GetStatus returns the current intent record. While the intent is still
// PENDING it consults the gateway, feeding any terminal outcome through the
// reconciler; the gateway being unreachable degrades to the local record.
func (s *intentService) GetStatus(ctx context.Context, invoiceID string) (*models.PaymentIntent, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetIntent(ctx, invoiceID); err == nil && cached != nil && cached.Status.IsTerminal() {
			return cached, nil
		}
	}

	intent, err := s.intentRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		s.cacheIntent(ctx, intent)
		return intent, nil
	}

	if time.Now().After(intent.ExpiresAt) {
		return s.Apply(ctx, invoiceID, models.IntentStatusExpired, models.IntentSourceSweep)
	}

	if resp, gerr := s.gateway.GetInvoice(ctx, invoiceID); gerr == nil {
		if status, ok := MapGatewayStatus(resp.Status); ok && status != intent.Status {
			return s.Apply(ctx, invoiceID, status, models.IntentSourcePoller)
		}
	} else {
		log.Printf("intent %s: gateway status check failed: %v", invoiceID, gerr)
	}

	return intent, nil
}

// Apply is the reconciler. It tolerates duplicated and reordered delivery
// from the webhook receiver and the poller: the store's monotonic guard makes
// terminal states final, and re-applying an absorbed event returns the
// current record unchanged.
func (s *intentService) Apply(ctx context.Context, invoiceID string, status models.IntentStatus, source models.IntentSource) (*models.PaymentIntent, error) {
	updated, err := s.intentRepo.UpdateStatusIfNotTerminal(ctx, invoiceID, status)
	if err != nil {
		if !errors.Is(err, repositories.ErrIntentNotFound) {
			return nil, err
		}
		current, gerr := s.intentRepo.GetByID(ctx, invoiceID)
		if gerr != nil {
			return nil, gerr
		}
		if status == models.IntentStatusSuccess && current.Status != models.IntentStatusSuccess {
			// policy choice: a SUCCESS arriving after the intent went
			// terminal locally is dropped, not re-opened
			log.Printf("intent %s: dropping late SUCCESS from %s, intent already %s", invoiceID, source, current.Status)
		}
		return current, nil
	}

	s.cacheIntent(ctx, updated)
	log.Printf("intent %s: %s applied from %s", invoiceID, updated.Status, source)

	if updated.Status == models.IntentStatusSuccess {
		s.onSuccess(ctx, updated)
	}
	return updated, nil
}

// onSuccess runs side effects exactly once, on the winning SUCCESS write.
// Failures are queued for retry instead of failing the reconciliation.
func (s *intentService) onSuccess(ctx context.Context, intent *models.PaymentIntent) {
	if intent.SubscriptionID != nil && s.activator != nil {
		if err := s.activator.ActivateOrRenew(ctx, *intent.SubscriptionID); err != nil {
			log.Printf("intent %s: activation of subscription %s failed: %v", intent.ID, intent.SubscriptionID, err)
			if s.tasks != nil {
				if qerr := s.tasks.EnqueueActivation(ctx, *intent.SubscriptionID); qerr != nil {
					log.Printf("intent %s: failed to enqueue activation retry: %v", intent.ID, qerr)
				}
			}
		}
	}
	if s.tasks != nil {
		if err := s.tasks.EnqueueReceipt(ctx, intent.ID); err != nil {
			log.Printf("intent %s: failed to enqueue receipt generation: %v", intent.ID, err)
		}
	}
}

// ExpireStale marks PENDING intents past their expiry as EXPIRED. It goes
// through Apply so a concurrent terminal write always wins.
func (s *intentService) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.intentRepo.ListStalePending(ctx, time.Now(), 200)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, intent := range stale {
		if _, err := s.Apply(ctx, intent.ID, models.IntentStatusExpired, models.IntentSourceSweep); err != nil {
			log.Printf("intent %s: expiry sweep failed: %v", intent.ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *intentService) cacheIntent(ctx context.Context, intent *models.PaymentIntent) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetIntent(ctx, intent, intentSnapshotTTL); err != nil {
		log.Printf("intent %s: failed to cache snapshot: %v", intent.ID, err)
	}
}
