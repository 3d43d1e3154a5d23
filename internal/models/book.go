package models

import (
	"time"

	"github.com/google/uuid"
)

// Book is an external catalog entity; the rental core only references it by id
type Book struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	AgeGroup  string    `json:"age_group" db:"age_group"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User is an external account entity referenced by subscriptions and rentals
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
