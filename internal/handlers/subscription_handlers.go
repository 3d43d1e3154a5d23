package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"kazka/internal/common"
	"kazka/internal/experiments"
	"kazka/internal/models"
	"kazka/internal/repositories"
	"kazka/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/random"
)

// plans page layout experiment
var plansPageVariants = []string{"control", "annual_upsell"}

// SubscriptionHandlers handles HTTP requests for subscriptions
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
	intentService       services.IntentService
	assignments         experiments.AssignmentStore
}

// NewSubscriptionHandlers creates a new subscription handlers instance
func NewSubscriptionHandlers(subscriptionService services.SubscriptionService, intentService services.IntentService, assignments experiments.AssignmentStore) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		subscriptionService: subscriptionService,
		intentService:       intentService,
		assignments:         assignments,
	}
}

// GetAvailablePlans handles GET /plans
func (h *SubscriptionHandlers) GetAvailablePlans(c echo.Context) error {
	ctx := c.Request().Context()
	plans := h.subscriptionService.GetAvailablePlans()

	response := map[string]interface{}{
		"plans": plans,
	}
	if userID, ok := common.GetUserIDFromContext(ctx); ok {
		response["layout"] = experiments.Assign(ctx, h.assignments, userID, "plans_page", plansPageVariants)
	}
	return c.JSON(http.StatusOK, response)
}

// PurchaseSubscription handles POST /subscriptions. It creates a PENDING
// subscription and a payment intent for the first cycle; the subscription
// goes ACTIVE only when the payment reconciles to SUCCESS.
func (h *SubscriptionHandlers) PurchaseSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		PlanID        string `json:"plan_id"`
		CustomerEmail string `json:"customer_email"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if req.PlanID == "" {
		return common.SendValidationError(c, "plan_id", "Plan ID is required")
	}

	subscription, err := h.subscriptionService.Purchase(ctx, userID, req.PlanID)
	if err != nil {
		if errors.Is(err, services.ErrPlanUnknown) {
			return common.SendValidationError(c, "plan_id", "Unknown plan")
		}
		return common.SendServerError(c, "Failed to create subscription")
	}

	plan, _ := h.subscriptionService.PlanFor(subscription)
	intent, err := h.intentService.CreateIntent(ctx, &services.CreateIntentRequest{
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		Description:    fmt.Sprintf("Kazka %s plan, first cycle", plan.Name),
		CustomerEmail:  req.CustomerEmail,
		OrderRef:       fmt.Sprintf("sub-%s", subscription.ID),
		SubscriptionID: &subscription.ID,
	})
	if err != nil {
		if errors.Is(err, services.ErrGatewayUnavailable) {
			return common.SendBadGatewayError(c, "Payment gateway is unavailable, try again")
		}
		return common.SendServerError(c, "Failed to create payment intent")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"subscription": subscription,
		"payment":      intent,
	})
}

// RenewSubscription handles POST /subscriptions/:id/renew. Each renewal gets
// its own order_ref, so paying twice in a cycle extends twice by design.
func (h *SubscriptionHandlers) RenewSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	subscription, err := h.ownedSubscription(c)
	if err != nil || subscription == nil {
		return err
	}

	var req struct {
		CustomerEmail string `json:"customer_email"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	plan, ok := h.subscriptionService.PlanFor(subscription)
	if !ok {
		return common.SendServerError(c, "Subscription references an unknown plan")
	}

	intent, err := h.intentService.CreateIntent(ctx, &services.CreateIntentRequest{
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		Description:    fmt.Sprintf("Kazka %s plan, renewal", plan.Name),
		CustomerEmail:  req.CustomerEmail,
		OrderRef:       fmt.Sprintf("renew-%s-%s", subscription.ID, random.String(10)),
		SubscriptionID: &subscription.ID,
	})
	if err != nil {
		if errors.Is(err, services.ErrGatewayUnavailable) {
			return common.SendBadGatewayError(c, "Payment gateway is unavailable, try again")
		}
		return common.SendServerError(c, "Failed to create payment intent")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"subscription": subscription,
		"payment":      intent,
	})
}

// GetMySubscription handles GET /subscriptions/me
func (h *SubscriptionHandlers) GetMySubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscription, err := h.subscriptionService.GetForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubscriptionNotFound) {
			return common.SendNotFoundError(c, "Subscription")
		}
		return common.SendServerError(c, "Failed to load subscription")
	}
	return c.JSON(http.StatusOK, subscription)
}

// GetSubscriptionByID handles GET /subscriptions/:id
func (h *SubscriptionHandlers) GetSubscriptionByID(c echo.Context) error {
	subscription, err := h.ownedSubscription(c)
	if err != nil || subscription == nil {
		return err
	}
	return c.JSON(http.StatusOK, subscription)
}

// CancelSubscription handles DELETE /subscriptions/:id
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	subscription, err := h.ownedSubscription(c)
	if err != nil || subscription == nil {
		return err
	}

	if err := h.subscriptionService.Cancel(ctx, subscription.ID); err != nil {
		return common.SendServerError(c, "Failed to cancel subscription")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Subscription cancelled successfully",
	})
}

// PauseSubscription handles PUT /subscriptions/:id/pause
func (h *SubscriptionHandlers) PauseSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	subscription, err := h.ownedSubscription(c)
	if err != nil || subscription == nil {
		return err
	}

	if err := h.subscriptionService.Pause(ctx, subscription.ID); err != nil {
		if errors.Is(err, services.ErrSubscriptionNotActive) {
			return common.SendConflictError(c, "Only active subscriptions can be paused")
		}
		return common.SendServerError(c, "Failed to pause subscription")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Subscription paused successfully",
	})
}

// ResumeSubscription handles PUT /subscriptions/:id/resume
func (h *SubscriptionHandlers) ResumeSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	subscription, err := h.ownedSubscription(c)
	if err != nil || subscription == nil {
		return err
	}

	if err := h.subscriptionService.Resume(ctx, subscription.ID); err != nil {
		if errors.Is(err, services.ErrSubscriptionNotPaused) {
			return common.SendConflictError(c, "Only paused subscriptions can be resumed")
		}
		return common.SendServerError(c, "Failed to resume subscription")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Subscription resumed successfully",
	})
}

// ownedSubscription loads the path subscription and enforces that it belongs
// to the caller unless the token carries admin claims
func (h *SubscriptionHandlers) ownedSubscription(c echo.Context) (*models.Subscription, error) {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return nil, common.SendUnauthorizedError(c)
	}

	subscriptionID, err := common.ValidateUUID(c.Param("id"), "subscription id")
	if err != nil {
		return nil, common.SendValidationError(c, "id", err.Error())
	}

	subscription, err := h.subscriptionService.GetByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubscriptionNotFound) {
			return nil, common.SendNotFoundError(c, "Subscription")
		}
		return nil, common.SendServerError(c, "Failed to load subscription")
	}

	if subscription.UserID != userID && !common.IsAdminFromContext(ctx) {
		return nil, common.SendNotFoundError(c, "Subscription")
	}
	return subscription, nil
}
