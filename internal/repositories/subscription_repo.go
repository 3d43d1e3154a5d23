package repositories

import (
	"context"
	"errors"
	"time"

	"kazka/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrSubscriptionNotFound is returned when no subscription matches the key
var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetLatestByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, subscription *models.Subscription) error
	ListActiveEndingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db Querier
}

func NewSubscriptionRepo(db Querier) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, plan_id, status, start_date, end_date, paused_at, exchanges_used, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.StartDate, &sub.EndDate, &sub.PausedAt, &sub.ExchangesUsed, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepo) Create(ctx context.Context, subscription *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, plan_id, status, start_date, end_date, paused_at, exchanges_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, subscription.ID, subscription.UserID, subscription.PlanID, subscription.Status, subscription.StartDate, subscription.EndDate, subscription.PausedAt, subscription.ExchangesUsed)
	return err
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(r.db.QueryRow(ctx, query, id))
}

// GetLatestByUserID returns the newest subscription for a user; archived
// (cancelled/expired) rows stay behind it as history
func (r *subscriptionRepo) GetLatestByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSubscription(r.db.QueryRow(ctx, query, userID))
}

func (r *subscriptionRepo) Update(ctx context.Context, subscription *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, start_date = $4, end_date = $5, paused_at = $6, exchanges_used = $7, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, subscription.ID, subscription.PlanID, subscription.Status, subscription.StartDate, subscription.EndDate, subscription.PausedAt, subscription.ExchangesUsed)
	return err
}

// ListActiveEndingBefore feeds the notification deriver: ACTIVE
// subscriptions whose paid window ends before the cutoff, oldest first
func (r *subscriptionRepo) ListActiveEndingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'ACTIVE' AND end_date IS NOT NULL AND end_date < $1
		ORDER BY end_date
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub := &models.Subscription{}
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.StartDate, &sub.EndDate, &sub.PausedAt, &sub.ExchangesUsed, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
