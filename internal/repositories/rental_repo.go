package repositories

import (
	"context"
	"errors"
	"time"

	"kazka/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRentalNotFound is returned when no rental matches the key
var ErrRentalNotFound = errors.New("rental not found")

type RentalRepository interface {
	Create(ctx context.Context, rental *models.Rental) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	Update(ctx context.Context, rental *models.Rental) error
	CountOccupying(ctx context.Context, userID uuid.UUID) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Rental, error)
	ListActivePastDue(ctx context.Context, asOf time.Time, limit int) ([]*models.Rental, error)
	ListOverdue(ctx context.Context, limit int) ([]*models.Rental, error)
}

type rentalRepo struct {
	db Querier
}

func NewRentalRepo(db Querier) RentalRepository {
	return &rentalRepo{db: db}
}

const rentalColumns = `id, user_id, subscription_id, book_id, status, rented_at, due_date, exchange_count, created_at, updated_at`

func scanRental(row pgx.Row) (*models.Rental, error) {
	rental := &models.Rental{}
	err := row.Scan(&rental.ID, &rental.UserID, &rental.SubscriptionID, &rental.BookID, &rental.Status, &rental.RentedAt, &rental.DueDate, &rental.ExchangeCount, &rental.CreatedAt, &rental.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRentalNotFound
		}
		return nil, err
	}
	return rental, nil
}

func (r *rentalRepo) Create(ctx context.Context, rental *models.Rental) error {
	query := `
		INSERT INTO rentals (id, user_id, subscription_id, book_id, status, rented_at, due_date, exchange_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, rental.ID, rental.UserID, rental.SubscriptionID, rental.BookID, rental.Status, rental.RentedAt, rental.DueDate, rental.ExchangeCount)
	return err
}

func (r *rentalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`
	return scanRental(r.db.QueryRow(ctx, query, id))
}

func (r *rentalRepo) Update(ctx context.Context, rental *models.Rental) error {
	query := `
		UPDATE rentals
		SET status = $2, due_date = $3, exchange_count = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, rental.ID, rental.Status, rental.DueDate, rental.ExchangeCount)
	return err
}

// CountOccupying counts rentals holding a capacity slot (ACTIVE or OVERDUE)
func (r *rentalRepo) CountOccupying(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM rentals WHERE user_id = $1 AND status IN ('ACTIVE', 'OVERDUE')`
	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *rentalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Rental, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rentals
		WHERE user_id = $1
		ORDER BY rented_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRentals(rows)
}

// ListActivePastDue feeds the overdue sweep: ACTIVE rentals past their due date
func (r *rentalRepo) ListActivePastDue(ctx context.Context, asOf time.Time, limit int) ([]*models.Rental, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rentals
		WHERE status = 'ACTIVE' AND due_date < $1
		ORDER BY due_date
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRentals(rows)
}

func (r *rentalRepo) ListOverdue(ctx context.Context, limit int) ([]*models.Rental, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rentals
		WHERE status = 'OVERDUE'
		ORDER BY due_date
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRentals(rows)
}

func collectRentals(rows pgx.Rows) ([]*models.Rental, error) {
	var rentals []*models.Rental
	for rows.Next() {
		rental := &models.Rental{}
		if err := rows.Scan(&rental.ID, &rental.UserID, &rental.SubscriptionID, &rental.BookID, &rental.Status, &rental.RentedAt, &rental.DueDate, &rental.ExchangeCount, &rental.CreatedAt, &rental.UpdatedAt); err != nil {
			return nil, err
		}
		rentals = append(rentals, rental)
	}
	return rentals, rows.Err()
}
