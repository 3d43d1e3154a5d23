package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"kazka/internal/models"
	"kazka/internal/repositories"

	"github.com/google/uuid"
)

var (
	// ErrCapacityExceeded is returned when the plan's book limit is reached
	ErrCapacityExceeded = errors.New("rental capacity exceeded for plan")
	// ErrExchangeLimitReached is returned when the monthly allowance is spent
	ErrExchangeLimitReached = errors.New("monthly exchange limit reached")
	// ErrRentalNotExchangeable is returned when the rental is not ACTIVE
	ErrRentalNotExchangeable = errors.New("only an active rental can be exchanged")
)

// RentalService enforces plan capacity over rentals. The check-then-act in
// RequestRental is serialized per user so two concurrent requests cannot
// both take the last free slot.
type RentalService interface {
	RequestRental(ctx context.Context, userID, bookID uuid.UUID) (*models.Rental, error)
	Exchange(ctx context.Context, rentalID, newBookID uuid.UUID) (*models.Rental, error)
	Return(ctx context.Context, rentalID uuid.UUID) (*models.Rental, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Rental, error)
	SweepOverdue(ctx context.Context) (int, error)
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

type rentalService struct {
	rentalRepo      repositories.RentalRepository
	subscriptionSvc SubscriptionService

	mu        sync.Mutex
	userLocks map[uuid.UUID]*userLock
}

func NewRentalService(rentalRepo repositories.RentalRepository, subscriptionSvc SubscriptionService) RentalService {
	return &rentalService{
		rentalRepo:      rentalRepo,
		subscriptionSvc: subscriptionSvc,
		userLocks:       make(map[uuid.UUID]*userLock),
	}
}

// lockUser serializes the per-user check-then-act sections. Entries are
// refcounted and dropped when the last holder releases, so the map is
// bounded by in-flight requests, not by every user ever seen.
func (s *rentalService) lockUser(userID uuid.UUID) (unlock func()) {
	s.mu.Lock()
	entry, ok := s.userLocks[userID]
	if !ok {
		entry = &userLock{}
		s.userLocks[userID] = entry
	}
	entry.refs++
	s.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		s.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(s.userLocks, userID)
		}
		s.mu.Unlock()
	}
}

// RequestRental admits a rental when the subscription is active and a
// capacity slot is free. OVERDUE rentals still hold their slot.
func (s *rentalService) RequestRental(ctx context.Context, userID, bookID uuid.UUID) (*models.Rental, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	subscription, err := s.subscriptionSvc.GetForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotActive
		}
		return nil, err
	}
	if subscription.Status != models.SubscriptionStatusActive {
		return nil, ErrSubscriptionNotActive
	}
	plan, ok := s.subscriptionSvc.PlanFor(subscription)
	if !ok {
		return nil, ErrPlanUnknown
	}

	occupied, err := s.rentalRepo.CountOccupying(ctx, userID)
	if err != nil {
		return nil, err
	}
	if occupied >= plan.MaxBooks {
		return nil, ErrCapacityExceeded
	}

	now := time.Now()
	rental := &models.Rental{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: subscription.ID,
		BookID:         bookID,
		Status:         models.RentalStatusActive,
		RentedAt:       now,
		DueDate:        now.AddDate(0, 0, plan.RentalPeriodDays),
	}
	if err := s.rentalRepo.Create(ctx, rental); err != nil {
		return nil, fmt.Errorf("failed to create rental: %w", err)
	}
	return rental, nil
}

// Exchange swaps an active rental for a different book without altering the
// due date cycle. The replacement inherits the original due date and the
// subscription's monthly counter is spent.
func (s *rentalService) Exchange(ctx context.Context, rentalID, newBookID uuid.UUID) (*models.Rental, error) {
	rental, err := s.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockUser(rental.UserID)
	defer unlock()

	// re-read under the lock
	rental, err = s.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.Status != models.RentalStatusActive {
		return nil, ErrRentalNotExchangeable
	}

	subscription, err := s.subscriptionSvc.GetByID(ctx, rental.SubscriptionID)
	if err != nil {
		return nil, err
	}
	plan, ok := s.subscriptionSvc.PlanFor(subscription)
	if !ok {
		return nil, ErrPlanUnknown
	}
	if subscription.ExchangesUsed >= plan.ExchangesPerMonth {
		return nil, ErrExchangeLimitReached
	}

	rental.Status = models.RentalStatusExchanged
	if err := s.rentalRepo.Update(ctx, rental); err != nil {
		return nil, err
	}

	replacement := &models.Rental{
		ID:             uuid.New(),
		UserID:         rental.UserID,
		SubscriptionID: rental.SubscriptionID,
		BookID:         newBookID,
		Status:         models.RentalStatusActive,
		RentedAt:       time.Now(),
		DueDate:        rental.DueDate,
		ExchangeCount:  rental.ExchangeCount + 1,
	}
	if err := s.rentalRepo.Create(ctx, replacement); err != nil {
		return nil, err
	}

	subscription.ExchangesUsed++
	if err := s.subscriptionSvc.RecordExchange(ctx, subscription); err != nil {
		return nil, err
	}
	return replacement, nil
}

// Return closes a rental from either ACTIVE or OVERDUE. Returning an
// already-closed rental is a no-op.
func (s *rentalService) Return(ctx context.Context, rentalID uuid.UUID) (*models.Rental, error) {
	rental, err := s.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if !rental.Status.Occupies() {
		return rental, nil
	}
	rental.Status = models.RentalStatusReturned
	if err := s.rentalRepo.Update(ctx, rental); err != nil {
		return nil, err
	}
	return rental, nil
}

func (s *rentalService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Rental, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.rentalRepo.ListByUser(ctx, userID, limit, offset)
}

// SweepOverdue promotes ACTIVE rentals past their due date to OVERDUE.
// Like subscription expiry this is a convenience pass, not a correctness
// dependency: OVERDUE rentals keep occupying their capacity slot either way.
func (s *rentalService) SweepOverdue(ctx context.Context) (int, error) {
	pastDue, err := s.rentalRepo.ListActivePastDue(ctx, time.Now(), 500)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, rental := range pastDue {
		rental.Status = models.RentalStatusOverdue
		if err := s.rentalRepo.Update(ctx, rental); err != nil {
			log.Printf("rental %s: overdue sweep failed: %v", rental.ID, err)
			continue
		}
		promoted++
	}
	return promoted, nil
}
