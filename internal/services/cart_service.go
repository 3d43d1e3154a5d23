package services

import (
	"context"
	"errors"
	"time"

	"kazka/internal/caching"
	"kazka/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrCartFull is returned when the cart already holds max_books items
	ErrCartFull = errors.New("cart is at plan capacity")
	// ErrCartEmpty is returned by Checkout on an empty or missing cart
	ErrCartEmpty = errors.New("cart is empty")
)

// carts are abandoned by TTL expiry in redis
const cartTTL = 2 * time.Hour

// CheckoutResult reports the per-item outcome of a checkout
type CheckoutResult struct {
	BookID uuid.UUID      `json:"book_id"`
	Rental *models.Rental `json:"rental,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// CartService is the single command interface over a session's cart.
// The cart is staging only; nothing is reserved until checkout runs the
// items through the capacity enforcer.
type CartService interface {
	AddItem(ctx context.Context, sessionID string, userID, bookID uuid.UUID) (*models.Cart, error)
	RemoveItem(ctx context.Context, sessionID string, bookID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, sessionID string) error
	Get(ctx context.Context, sessionID string) (*models.Cart, error)
	Checkout(ctx context.Context, sessionID string) ([]CheckoutResult, error)
}

type cartService struct {
	cache           caching.CacheService
	subscriptionSvc SubscriptionService
	rentalSvc       RentalService
}

func NewCartService(cache caching.CacheService, subscriptionSvc SubscriptionService, rentalSvc RentalService) CartService {
	return &cartService{
		cache:           cache,
		subscriptionSvc: subscriptionSvc,
		rentalSvc:       rentalSvc,
	}
}

// AddItem stages a book. The bound is the plan's max_books, checked against
// the staged size; the real capacity check happens again at checkout.
func (s *cartService) AddItem(ctx context.Context, sessionID string, userID, bookID uuid.UUID) (*models.Cart, error) {
	subscription, err := s.subscriptionSvc.GetForUser(ctx, userID)
	if err != nil {
		return nil, ErrSubscriptionNotActive
	}
	if subscription.Status != models.SubscriptionStatusActive {
		return nil, ErrSubscriptionNotActive
	}
	plan, ok := s.subscriptionSvc.PlanFor(subscription)
	if !ok {
		return nil, ErrPlanUnknown
	}

	cart, err := s.cache.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		cart = &models.Cart{SessionID: sessionID, UserID: userID}
	}
	if cart.Contains(bookID) {
		return cart, nil
	}
	if len(cart.Items) >= plan.MaxBooks {
		return nil, ErrCartFull
	}

	cart.Items = append(cart.Items, models.CartItem{BookID: bookID, AddedAt: time.Now()})
	cart.UpdatedAt = time.Now()
	if err := s.cache.SetCart(ctx, cart, cartTTL); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, sessionID string, bookID uuid.UUID) (*models.Cart, error) {
	cart, err := s.cache.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, ErrCartEmpty
	}

	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.BookID != bookID {
			items = append(items, item)
		}
	}
	cart.Items = items
	cart.UpdatedAt = time.Now()
	if err := s.cache.SetCart(ctx, cart, cartTTL); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) Clear(ctx context.Context, sessionID string) error {
	return s.cache.DeleteCart(ctx, sessionID)
}

func (s *cartService) Get(ctx context.Context, sessionID string) (*models.Cart, error) {
	cart, err := s.cache.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return &models.Cart{SessionID: sessionID}, nil
	}
	return cart, nil
}

// Checkout admits each staged item through the capacity enforcer and
// discards the cart. Per-item failures (capacity, subscription state) are
// reported in the result instead of aborting the whole checkout.
func (s *cartService) Checkout(ctx context.Context, sessionID string) ([]CheckoutResult, error) {
	cart, err := s.cache.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrCartEmpty
	}

	results := make([]CheckoutResult, 0, len(cart.Items))
	for _, item := range cart.Items {
		rental, err := s.rentalSvc.RequestRental(ctx, cart.UserID, item.BookID)
		if err != nil {
			results = append(results, CheckoutResult{BookID: item.BookID, Error: err.Error()})
			continue
		}
		results = append(results, CheckoutResult{BookID: item.BookID, Rental: rental})
	}

	if err := s.cache.DeleteCart(ctx, sessionID); err != nil {
		return results, err
	}
	return results, nil
}
