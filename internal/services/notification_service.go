package services

import (
	"context"
	"sort"
	"time"

	"kazka/internal/models"
	"kazka/internal/repositories"
)

// notification windows
const (
	expiringWindowDays     = 7
	expiringHighDays       = 3
	rentalOverdueHighDays  = 14
	notificationScanLimit  = 1000
)

// NotificationService derives time-based alerts from subscriptions and
// rentals. It holds no state of its own, so it is safe to run on any
// cadence, including per admin page load.
type NotificationService interface {
	Derive(ctx context.Context, asOf time.Time) ([]models.Notification, error)
}

type notificationService struct {
	subscriptionRepo repositories.SubscriptionRepository
	rentalRepo       repositories.RentalRepository
}

func NewNotificationService(subscriptionRepo repositories.SubscriptionRepository, rentalRepo repositories.RentalRepository) NotificationService {
	return &notificationService{
		subscriptionRepo: subscriptionRepo,
		rentalRepo:       rentalRepo,
	}
}

// Derive scans for subscriptions ending within the forward window,
// subscriptions already past their end date but still marked ACTIVE, and
// overdue rentals. The result ordering is stable (priority desc, then
// recency desc) so snapshots of the output are reproducible.
func (s *notificationService) Derive(ctx context.Context, asOf time.Time) ([]models.Notification, error) {
	cutoff := asOf.AddDate(0, 0, expiringWindowDays)
	subscriptions, err := s.subscriptionRepo.ListActiveEndingBefore(ctx, cutoff, notificationScanLimit)
	if err != nil {
		return nil, err
	}

	var notifications []models.Notification
	for _, sub := range subscriptions {
		if sub.EndDate == nil {
			continue
		}
		end := *sub.EndDate
		subID := sub.ID
		if end.Before(asOf) {
			notifications = append(notifications, models.Notification{
				Type:           models.NotificationTypeOverdueSubscription,
				Priority:       models.NotificationPriorityHigh,
				UserID:         sub.UserID,
				SubscriptionID: &subID,
				DaysOverdue:    wholeDays(asOf.Sub(end)),
				ReferenceDate:  end,
			})
			continue
		}

		daysLeft := wholeDays(end.Sub(asOf))
		priority := models.NotificationPriorityMedium
		if daysLeft <= expiringHighDays {
			priority = models.NotificationPriorityHigh
		}
		notifications = append(notifications, models.Notification{
			Type:           models.NotificationTypeExpiringSubscription,
			Priority:       priority,
			UserID:         sub.UserID,
			SubscriptionID: &subID,
			DaysLeft:       daysLeft,
			ReferenceDate:  end,
		})
	}

	overdueRentals, err := s.rentalRepo.ListOverdue(ctx, notificationScanLimit)
	if err != nil {
		return nil, err
	}
	for _, rental := range overdueRentals {
		daysOverdue := wholeDays(asOf.Sub(rental.DueDate))
		priority := models.NotificationPriorityMedium
		if daysOverdue > rentalOverdueHighDays {
			priority = models.NotificationPriorityHigh
		}
		rentalID := rental.ID
		bookID := rental.BookID
		notifications = append(notifications, models.Notification{
			Type:          models.NotificationTypeOverdueRental,
			Priority:      priority,
			UserID:        rental.UserID,
			RentalID:      &rentalID,
			BookID:        &bookID,
			DaysOverdue:   daysOverdue,
			ReferenceDate: rental.DueDate,
		})
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		if notifications[i].Priority.Rank() != notifications[j].Priority.Rank() {
			return notifications[i].Priority.Rank() > notifications[j].Priority.Rank()
		}
		return notifications[i].ReferenceDate.After(notifications[j].ReferenceDate)
	})
	return notifications, nil
}

func wholeDays(d time.Duration) int {
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
