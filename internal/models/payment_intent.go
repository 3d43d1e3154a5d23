package models

import (
	"time"

	"github.com/google/uuid"
)

// IntentStatus represents the lifecycle state of a payment intent
type IntentStatus string

const (
	IntentStatusPending IntentStatus = "PENDING"
	IntentStatusSuccess IntentStatus = "SUCCESS"
	IntentStatusFailed  IntentStatus = "FAILED"
	IntentStatusExpired IntentStatus = "EXPIRED"
)

// IsTerminal reports whether no further status transition is permitted
func (s IntentStatus) IsTerminal() bool {
	return s == IntentStatusSuccess || s == IntentStatusFailed || s == IntentStatusExpired
}

// IntentSource identifies which path delivered a status update
type IntentSource string

const (
	IntentSourceWebhook IntentSource = "webhook"
	IntentSourcePoller  IntentSource = "poller"
	IntentSourceSweep   IntentSource = "sweep"
)

// PaymentIntent is the local record of an invoice registered with the payment
// gateway, keyed by the gateway-issued invoice id. Rows are append-only for
// audit purposes: once a terminal status is written the row never changes.
type PaymentIntent struct {
	ID             string       `json:"invoice_id" db:"id"`
	OrderRef       string       `json:"order_ref" db:"order_ref"`
	SubscriptionID *uuid.UUID   `json:"subscription_id" db:"subscription_id"`
	Amount         int64        `json:"amount" db:"amount"` // minor units
	Currency       string       `json:"currency" db:"currency"`
	Description    string       `json:"description" db:"description"`
	Status         IntentStatus `json:"status" db:"status"`
	PaymentURL     string       `json:"payment_url" db:"payment_url"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time    `json:"expires_at" db:"expires_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}
