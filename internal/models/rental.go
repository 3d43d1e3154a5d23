package models

import (
	"time"

	"github.com/google/uuid"
)

// RentalStatus represents the state of a single book rental
type RentalStatus string

const (
	RentalStatusActive    RentalStatus = "ACTIVE"
	RentalStatusOverdue   RentalStatus = "OVERDUE"
	RentalStatusReturned  RentalStatus = "RETURNED"
	RentalStatusExchanged RentalStatus = "EXCHANGED"
	RentalStatusCancelled RentalStatus = "CANCELLED"
)

// Occupies reports whether the rental counts against the plan's book capacity
func (s RentalStatus) Occupies() bool {
	return s == RentalStatusActive || s == RentalStatusOverdue
}

// Rental is one borrowed book. Rentals are never deleted; returns and
// exchanges transition the status and the row becomes history.
type Rental struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	UserID         uuid.UUID    `json:"user_id" db:"user_id"`
	SubscriptionID uuid.UUID    `json:"subscription_id" db:"subscription_id"`
	BookID         uuid.UUID    `json:"book_id" db:"book_id"`
	Status         RentalStatus `json:"status" db:"status"`
	RentedAt       time.Time    `json:"rented_at" db:"rented_at"`
	DueDate        time.Time    `json:"due_date" db:"due_date"`
	ExchangeCount  int          `json:"exchange_count" db:"exchange_count"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}
