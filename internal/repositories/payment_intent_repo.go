package repositories

import (
	"context"
	"errors"
	"time"

	"kazka/internal/models"

	"github.com/jackc/pgx/v5"
)

// ErrIntentNotFound is returned when no payment intent matches the key
var ErrIntentNotFound = errors.New("payment intent not found")

type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	AssignGateway(ctx context.Context, orderRef, invoiceID, paymentURL string, expiresAt time.Time) (*models.PaymentIntent, error)
	GetByID(ctx context.Context, id string) (*models.PaymentIntent, error)
	GetByOrderRef(ctx context.Context, orderRef string) (*models.PaymentIntent, error)
	UpdateStatusIfNotTerminal(ctx context.Context, id string, status models.IntentStatus) (*models.PaymentIntent, error)
	ListStalePending(ctx context.Context, asOf time.Time, limit int) ([]*models.PaymentIntent, error)
}

type paymentIntentRepo struct {
	db Querier
}

func NewPaymentIntentRepo(db Querier) PaymentIntentRepository {
	return &paymentIntentRepo{db: db}
}

const intentColumns = `id, order_ref, subscription_id, amount, currency, description, status, payment_url, created_at, expires_at, updated_at`

func scanIntent(row pgx.Row) (*models.PaymentIntent, error) {
	intent := &models.PaymentIntent{}
	err := row.Scan(&intent.ID, &intent.OrderRef, &intent.SubscriptionID, &intent.Amount, &intent.Currency, &intent.Description, &intent.Status, &intent.PaymentURL, &intent.CreatedAt, &intent.ExpiresAt, &intent.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return intent, nil
}

// Create inserts a provisional PENDING record before the gateway is called.
// The row is keyed by order_ref until AssignGateway rekeys it with the
// gateway invoice id; a retried create with the same order_ref is a no-op.
func (r *paymentIntentRepo) Create(ctx context.Context, intent *models.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (id, order_ref, subscription_id, amount, currency, description, status, payment_url, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), $9, NOW())
		ON CONFLICT (order_ref) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, intent.ID, intent.OrderRef, intent.SubscriptionID, intent.Amount, intent.Currency, intent.Description, intent.Status, intent.PaymentURL, intent.ExpiresAt)
	return err
}

// AssignGateway records the gateway-issued invoice id on the provisional row
func (r *paymentIntentRepo) AssignGateway(ctx context.Context, orderRef, invoiceID, paymentURL string, expiresAt time.Time) (*models.PaymentIntent, error) {
	query := `
		UPDATE payment_intents
		SET id = $2, payment_url = $3, expires_at = $4, updated_at = NOW()
		WHERE order_ref = $1
		RETURNING ` + intentColumns
	return scanIntent(r.db.QueryRow(ctx, query, orderRef, invoiceID, paymentURL, expiresAt))
}

func (r *paymentIntentRepo) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	return scanIntent(r.db.QueryRow(ctx, query, id))
}

func (r *paymentIntentRepo) GetByOrderRef(ctx context.Context, orderRef string) (*models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE order_ref = $1`
	return scanIntent(r.db.QueryRow(ctx, query, orderRef))
}

// UpdateStatusIfNotTerminal performs the monotonic status write. The guard
// lives in the WHERE clause so concurrent writers cannot resurrect a
// terminal intent. ErrIntentNotFound means the row is missing or already
// terminal; callers re-read to tell the two apart.
func (r *paymentIntentRepo) UpdateStatusIfNotTerminal(ctx context.Context, id string, status models.IntentStatus) (*models.PaymentIntent, error) {
	query := `
		UPDATE payment_intents
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('SUCCESS', 'FAILED', 'EXPIRED')
		RETURNING ` + intentColumns
	return scanIntent(r.db.QueryRow(ctx, query, id, status))
}

func (r *paymentIntentRepo) ListStalePending(ctx context.Context, asOf time.Time, limit int) ([]*models.PaymentIntent, error) {
	query := `
		SELECT ` + intentColumns + `
		FROM payment_intents
		WHERE status = 'PENDING' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []*models.PaymentIntent
	for rows.Next() {
		intent := &models.PaymentIntent{}
		if err := rows.Scan(&intent.ID, &intent.OrderRef, &intent.SubscriptionID, &intent.Amount, &intent.Currency, &intent.Description, &intent.Status, &intent.PaymentURL, &intent.CreatedAt, &intent.ExpiresAt, &intent.UpdatedAt); err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}
