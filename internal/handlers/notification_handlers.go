package handlers

import (
	"net/http"
	"time"

	"kazka/internal/common"
	"kazka/internal/services"

	"github.com/labstack/echo/v4"
)

// NotificationHandlers handles notification-related HTTP requests
type NotificationHandlers struct {
	notificationSvc services.NotificationService
}

// NewNotificationHandlers creates a new notification handlers instance
func NewNotificationHandlers(notificationSvc services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		notificationSvc: notificationSvc,
	}
}

// ListNotifications handles GET /notifications. Notifications are derived on
// demand from the current subscription and rental state; the optional as_of
// query parameter lets operators preview a future date.
func (h *NotificationHandlers) ListNotifications(c echo.Context) error {
	ctx := c.Request().Context()

	asOf := time.Now()
	if raw := c.QueryParam("as_of"); raw != "" {
		parsed, err := common.ValidateDateFormat(raw, "as_of")
		if err != nil {
			return common.SendValidationError(c, "as_of", err.Error())
		}
		asOf = parsed
	}

	notifications, err := h.notificationSvc.Derive(ctx, asOf)
	if err != nil {
		return common.SendServerError(c, "Failed to derive notifications")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"as_of":         asOf.UTC().Format(time.RFC3339),
		"count":         len(notifications),
		"notifications": notifications,
	})
}
