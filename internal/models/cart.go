package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one staged rental request
type CartItem struct {
	BookID  uuid.UUID `json:"book_id"`
	AddedAt time.Time `json:"added_at"`
}

// Cart is the pre-checkout staging area for rental requests. It is owned by
// a single session, bounded by the plan's book capacity and discarded on
// checkout or abandonment.
type Cart struct {
	SessionID string     `json:"session_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Contains reports whether the book is already staged
func (c *Cart) Contains(bookID uuid.UUID) bool {
	for _, item := range c.Items {
		if item.BookID == bookID {
			return true
		}
	}
	return false
}
