package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the state of a reader's subscription
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

// Plan is a subscription tier defining book capacity, rental duration and
// the monthly exchange allowance
type Plan struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Amount            int64  `json:"amount"` // minor units per billing cycle
	Currency          string `json:"currency"`
	PeriodDays        int    `json:"period_days"`
	MaxBooks          int    `json:"max_books"`
	RentalPeriodDays  int    `json:"rental_period_days"`
	ExchangesPerMonth int    `json:"exchanges_per_month"`
}

// Subscription owns a user's rental allowance for a paid time window.
// A renewal extends EndDate instead of rewriting StartDate, so history
// stays inspectable.
type Subscription struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	PlanID        string             `json:"plan_id" db:"plan_id"`
	Status        SubscriptionStatus `json:"status" db:"status"`
	StartDate     time.Time          `json:"start_date" db:"start_date"`
	EndDate       *time.Time         `json:"end_date" db:"end_date"`
	PausedAt      *time.Time         `json:"paused_at" db:"paused_at"`
	ExchangesUsed int                `json:"exchanges_used" db:"exchanges_used"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}
