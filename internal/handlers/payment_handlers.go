package handlers

import (
	"errors"
	"net/http"
	"time"

	"kazka/internal/common"
	"kazka/internal/repositories"
	"kazka/internal/services"

	"github.com/labstack/echo/v4"
)

// PaymentHandlers handles HTTP requests for payment intents
type PaymentHandlers struct {
	intentService services.IntentService
	statusPoller  *services.StatusPoller
	receiptSvc    services.ReceiptService
	pollInterval  time.Duration
	pollTimeout   time.Duration
}

// NewPaymentHandlers creates a new payment handlers instance. The poll
// interval and timeout come from gateway config; non-positive values fall
// back to 2s / 30s.
func NewPaymentHandlers(intentService services.IntentService, statusPoller *services.StatusPoller, receiptSvc services.ReceiptService, pollInterval, pollTimeout time.Duration) *PaymentHandlers {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &PaymentHandlers{
		intentService: intentService,
		statusPoller:  statusPoller,
		receiptSvc:    receiptSvc,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
	}
}

// CreateIntent handles POST /payments/intents. Standalone intent creation
// for one-off charges; subscription purchases go through /subscriptions.
func (h *PaymentHandlers) CreateIntent(c echo.Context) error {
	ctx := c.Request().Context()

	var req services.CreateIntentRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	intent, err := h.intentService.CreateIntent(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			return common.SendValidationError(c, "amount", "Amount must be a positive integer in minor units")
		case errors.Is(err, services.ErrInvalidCurrency):
			return common.SendValidationError(c, "currency", "Currency is not supported")
		case errors.Is(err, services.ErrOrderRefRequired):
			return common.SendValidationError(c, "order_ref", "Order reference is required")
		case errors.Is(err, services.ErrGatewayUnavailable):
			return common.SendBadGatewayError(c, "Payment gateway is unavailable, try again")
		default:
			return common.SendServerError(c, "Failed to create payment intent")
		}
	}

	return c.JSON(http.StatusCreated, intent)
}

// GetIntent handles GET /payments/intents/:id
func (h *PaymentHandlers) GetIntent(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID := c.Param("id")
	if err := common.ValidateRequiredString(invoiceID, "invoice id"); err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	intent, err := h.intentService.GetStatus(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, repositories.ErrIntentNotFound) {
			return common.SendNotFoundError(c, "Payment intent")
		}
		return common.SendServerError(c, "Failed to load payment intent")
	}
	return c.JSON(http.StatusOK, intent)
}

// WaitForIntent handles GET /payments/intents/:id/wait. It blocks until the
// intent reaches a terminal state or the window closes; a timeout responds
// 202 with the still-pending record so clients can retry.
func (h *PaymentHandlers) WaitForIntent(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID := c.Param("id")
	if err := common.ValidateRequiredString(invoiceID, "invoice id"); err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	timeout := h.pollTimeout
	if raw := c.QueryParam("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 || parsed > 2*time.Minute {
			return common.SendValidationError(c, "timeout", "Timeout must be a duration up to 2m")
		}
		timeout = parsed
	}

	intent, err := h.statusPoller.Poll(ctx, invoiceID, h.pollInterval, timeout)
	if err != nil {
		if errors.Is(err, repositories.ErrIntentNotFound) {
			return common.SendNotFoundError(c, "Payment intent")
		}
		if errors.Is(err, services.ErrPollTimedOut) {
			pending, gerr := h.intentService.GetStatus(ctx, invoiceID)
			if gerr != nil {
				return common.SendServerError(c, "Failed to load payment intent")
			}
			return c.JSON(http.StatusAccepted, pending)
		}
		return common.SendServerError(c, "Failed to poll payment intent")
	}
	return c.JSON(http.StatusOK, intent)
}

// GetReceipt handles GET /payments/intents/:id/receipt. The receipt PDF is
// generated asynchronously after SUCCESS, so early requests can 404.
func (h *PaymentHandlers) GetReceipt(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID := c.Param("id")
	if err := common.ValidateRequiredString(invoiceID, "invoice id"); err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	url, err := h.receiptSvc.ReceiptURL(ctx, invoiceID, 15*time.Minute)
	if err != nil {
		return common.SendNotFoundError(c, "Receipt")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"invoice_id": invoiceID,
		"url":        url,
	})
}
