package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"kazka/internal/repositories"
	"kazka/internal/services"

	"github.com/labstack/echo/v4"
)

// per source address; the gateway delivers far below this under normal load
const (
	webhookRateLimit  = 120
	webhookRateWindow = time.Minute
)

// WebhookCache covers the cache operations the webhook path uses: flood
// control per source address and snapshot invalidation on deferred events.
type WebhookCache interface {
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) error
	DeleteIntent(ctx context.Context, invoiceID string) error
}

// WebhookHandlers receives payment gateway callbacks. The contract with
// the gateway: once the signature checks out, respond 200 even when local
// processing fails, otherwise the gateway keeps redelivering forever.
// Failed downstream work is recovered through the reconcile queue.
type WebhookHandlers struct {
	intentService  services.IntentService
	gatewayService services.GatewayService
	enqueuer       services.TaskEnqueuer
	cache          WebhookCache
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(
	intentService services.IntentService,
	gatewayService services.GatewayService,
	enqueuer services.TaskEnqueuer,
	cache WebhookCache,
) *WebhookHandlers {
	return &WebhookHandlers{
		intentService:  intentService,
		gatewayService: gatewayService,
		enqueuer:       enqueuer,
		cache:          cache,
	}
}

type gatewayWebhookEvent struct {
	InvoiceID string `json:"invoiceId"`
	Status    string `json:"status"`
}

// PaymentWebhook handles POST /webhooks/payments
func (h *WebhookHandlers) PaymentWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	// a cache failure never blocks a callback; the limiter fails open
	limitKey := "webhook:" + c.RealIP()
	limited, err := h.cache.IsRateLimited(ctx, limitKey, webhookRateLimit, webhookRateWindow)
	if err != nil {
		log.Printf("webhook: rate limit check failed: %v", err)
	} else if limited {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many webhook deliveries")
	}
	if err := h.cache.IncrementRateLimit(ctx, limitKey, webhookRateWindow); err != nil {
		log.Printf("webhook: rate limit increment failed: %v", err)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	signature := c.Request().Header.Get("X-Signature")
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing webhook signature")
	}

	if err := h.gatewayService.VerifySignature(body, signature); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid webhook signature")
	}

	var event gatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed webhook payload")
	}
	if event.InvoiceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing invoiceId")
	}

	status, ok := services.MapGatewayStatus(event.Status)
	if !ok {
		// Unknown event types are acknowledged, not retried
		log.Printf("webhook: ignoring unknown status %q for invoice %s", event.Status, event.InvoiceID)
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	intent, err := h.intentService.Apply(ctx, event.InvoiceID, status, "webhook")
	if err != nil {
		if errors.Is(err, repositories.ErrIntentNotFound) {
			// No local intent for this invoice; acknowledging stops redelivery
			log.Printf("webhook: no intent for invoice %s", event.InvoiceID)
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}

		log.Printf("webhook: apply failed for invoice %s: %v", event.InvoiceID, err)
		if enqErr := h.enqueuer.EnqueueReconcile(ctx, event.InvoiceID); enqErr != nil {
			log.Printf("webhook: failed to enqueue reconcile for invoice %s: %v", event.InvoiceID, enqErr)
		}
		// the cached snapshot may now disagree with the gateway
		if delErr := h.cache.DeleteIntent(ctx, event.InvoiceID); delErr != nil {
			log.Printf("webhook: failed to drop cached intent %s: %v", event.InvoiceID, delErr)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "deferred"})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "processed",
		"state":  string(intent.Status),
	})
}
