package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the kind of time-based alert
type NotificationType string

const (
	NotificationTypeExpiringSubscription NotificationType = "expiring_subscription"
	NotificationTypeOverdueSubscription  NotificationType = "overdue_subscription"
	NotificationTypeOverdueRental        NotificationType = "overdue_rental"
)

// NotificationPriority orders alerts for display
type NotificationPriority string

const (
	NotificationPriorityHigh   NotificationPriority = "HIGH"
	NotificationPriorityMedium NotificationPriority = "MEDIUM"
)

// Rank maps a priority to a sortable weight, higher first
func (p NotificationPriority) Rank() int {
	if p == NotificationPriorityHigh {
		return 2
	}
	return 1
}

// Notification is a derived, unstored alert produced by scanning
// subscriptions and rentals against the current time
type Notification struct {
	Type           NotificationType     `json:"type"`
	Priority       NotificationPriority `json:"priority"`
	UserID         uuid.UUID            `json:"user_id"`
	SubscriptionID *uuid.UUID           `json:"subscription_id,omitempty"`
	RentalID       *uuid.UUID           `json:"rental_id,omitempty"`
	BookID         *uuid.UUID           `json:"book_id,omitempty"`
	DaysLeft       int                  `json:"days_left,omitempty"`
	DaysOverdue    int                  `json:"days_overdue,omitempty"`
	ReferenceDate  time.Time            `json:"reference_date"`
}
