package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"kazka/internal/models"
	"kazka/internal/repositories"

	"github.com/google/uuid"
)

var (
	// ErrPlanUnknown marks a plan id outside the fixed tier list
	ErrPlanUnknown = errors.New("unknown plan")
	// ErrSubscriptionNotActive is returned when an operation requires an
	// active subscription
	ErrSubscriptionNotActive = errors.New("subscription is not active")
	// ErrSubscriptionNotPaused is returned by Resume on anything but PAUSED
	ErrSubscriptionNotPaused = errors.New("subscription is not paused")
)

// Fixed tiers. Amounts are minor units (kopiykas) per 30-day cycle.
var availablePlans = map[string]models.Plan{
	"mini": {
		ID:                "mini",
		Name:              "Mini",
		Amount:            19900,
		Currency:          "UAH",
		PeriodDays:        30,
		MaxBooks:          1,
		RentalPeriodDays:  14,
		ExchangesPerMonth: 1,
	},
	"standard": {
		ID:                "standard",
		Name:              "Standard",
		Amount:            30000,
		Currency:          "UAH",
		PeriodDays:        30,
		MaxBooks:          2,
		RentalPeriodDays:  21,
		ExchangesPerMonth: 2,
	},
	"family": {
		ID:                "family",
		Name:              "Family",
		Amount:            49900,
		Currency:          "UAH",
		PeriodDays:        30,
		MaxBooks:          4,
		RentalPeriodDays:  30,
		ExchangesPerMonth: 4,
	},
}

// SubscriptionService is the subscription state machine. Activation is
// driven by the payment reconciler; expiry is evaluated lazily on reads.
type SubscriptionService interface {
	Purchase(ctx context.Context, userID uuid.UUID, planID string) (*models.Subscription, error)
	ActivateOrRenew(ctx context.Context, subscriptionID uuid.UUID) error
	GetByID(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error)
	GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Cancel(ctx context.Context, subscriptionID uuid.UUID) error
	Pause(ctx context.Context, subscriptionID uuid.UUID) error
	Resume(ctx context.Context, subscriptionID uuid.UUID) error
	RecordExchange(ctx context.Context, subscription *models.Subscription) error
	PlanFor(subscription *models.Subscription) (models.Plan, bool)
	GetAvailablePlans() map[string]models.Plan
}

type subscriptionService struct {
	subscriptionRepo repositories.SubscriptionRepository
}

func NewSubscriptionService(subscriptionRepo repositories.SubscriptionRepository) SubscriptionService {
	return &subscriptionService{subscriptionRepo: subscriptionRepo}
}

// Purchase creates a PENDING subscription awaiting its first successful
// payment. The caller links a payment intent to the returned id.
func (s *subscriptionService) Purchase(ctx context.Context, userID uuid.UUID, planID string) (*models.Subscription, error) {
	if _, ok := availablePlans[planID]; !ok {
		return nil, ErrPlanUnknown
	}

	subscription := &models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    planID,
		Status:    models.SubscriptionStatusPending,
		StartDate: time.Now(),
	}
	if err := s.subscriptionRepo.Create(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return subscription, nil
}

// ActivateOrRenew applies a successful payment. A PENDING subscription
// becomes ACTIVE for one plan period; an existing subscription is extended
// from max(now, end_date) so early renewal keeps the remaining paid time.
// Each paid cycle resets the monthly exchange allowance.
func (s *subscriptionService) ActivateOrRenew(ctx context.Context, subscriptionID uuid.UUID) error {
	subscription, err := s.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	plan, ok := availablePlans[subscription.PlanID]
	if !ok {
		return ErrPlanUnknown
	}

	now := time.Now()
	period := time.Duration(plan.PeriodDays) * 24 * time.Hour

	switch subscription.Status {
	case models.SubscriptionStatusPending, models.SubscriptionStatusCancelled, models.SubscriptionStatusExpired:
		end := now.Add(period)
		subscription.Status = models.SubscriptionStatusActive
		subscription.StartDate = now
		subscription.EndDate = &end
		subscription.PausedAt = nil
	default:
		base := now
		if subscription.EndDate != nil && subscription.EndDate.After(now) {
			base = *subscription.EndDate
		}
		end := base.Add(period)
		subscription.EndDate = &end
	}
	subscription.ExchangesUsed = 0

	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return fmt.Errorf("failed to apply paid cycle to subscription %s: %w", subscriptionID, err)
	}
	log.Printf("subscription %s: paid cycle applied, active until %s", subscriptionID, subscription.EndDate.Format(time.RFC3339))
	return nil
}

func (s *subscriptionService) GetByID(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return s.settleExpiry(ctx, subscription), nil
}

func (s *subscriptionService) GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.subscriptionRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.settleExpiry(ctx, subscription), nil
}

// settleExpiry is the lazy ACTIVE -> EXPIRED transition: read paths observe
// the wall clock instead of depending on a background scheduler for
// correctness. The persisted write is best effort.
func (s *subscriptionService) settleExpiry(ctx context.Context, subscription *models.Subscription) *models.Subscription {
	if subscription.Status != models.SubscriptionStatusActive {
		return subscription
	}
	if subscription.EndDate == nil || subscription.EndDate.After(time.Now()) {
		return subscription
	}
	subscription.Status = models.SubscriptionStatusExpired
	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		log.Printf("subscription %s: failed to persist lazy expiry: %v", subscription.ID, err)
	}
	return subscription
}

// Cancel is irreversible except through a fresh purchase cycle
func (s *subscriptionService) Cancel(ctx context.Context, subscriptionID uuid.UUID) error {
	subscription, err := s.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	subscription.Status = models.SubscriptionStatusCancelled
	subscription.PausedAt = nil
	return s.subscriptionRepo.Update(ctx, subscription)
}

func (s *subscriptionService) Pause(ctx context.Context, subscriptionID uuid.UUID) error {
	subscription, err := s.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if s.settleExpiry(ctx, subscription).Status != models.SubscriptionStatusActive {
		return ErrSubscriptionNotActive
	}
	now := time.Now()
	subscription.Status = models.SubscriptionStatusPaused
	subscription.PausedAt = &now
	return s.subscriptionRepo.Update(ctx, subscription)
}

// Resume reactivates a paused subscription and extends the end date by the
// paused duration, so pausing never burns paid time
func (s *subscriptionService) Resume(ctx context.Context, subscriptionID uuid.UUID) error {
	subscription, err := s.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if subscription.Status != models.SubscriptionStatusPaused || subscription.PausedAt == nil {
		return ErrSubscriptionNotPaused
	}
	pausedFor := time.Since(*subscription.PausedAt)
	if subscription.EndDate != nil {
		end := subscription.EndDate.Add(pausedFor)
		subscription.EndDate = &end
	}
	subscription.Status = models.SubscriptionStatusActive
	subscription.PausedAt = nil
	return s.subscriptionRepo.Update(ctx, subscription)
}

// RecordExchange persists an updated monthly exchange counter. The rental
// service mutates the counter under its per-user lock.
func (s *subscriptionService) RecordExchange(ctx context.Context, subscription *models.Subscription) error {
	return s.subscriptionRepo.Update(ctx, subscription)
}

func (s *subscriptionService) PlanFor(subscription *models.Subscription) (models.Plan, bool) {
	plan, ok := availablePlans[subscription.PlanID]
	return plan, ok
}

// GetAvailablePlans returns a copy of the fixed tiers
func (s *subscriptionService) GetAvailablePlans() map[string]models.Plan {
	result := make(map[string]models.Plan, len(availablePlans))
	for k, v := range availablePlans {
		result[k] = v
	}
	return result
}
