package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"kazka/internal/common"
	"kazka/internal/models"
	"kazka/internal/repositories"
	"kazka/internal/services"

	"github.com/labstack/echo/v4"
)

// RentalHandlers handles HTTP requests for rentals
type RentalHandlers struct {
	rentalService services.RentalService
	rentalRepo    repositories.RentalRepository
}

// NewRentalHandlers creates a new rental handlers instance
func NewRentalHandlers(rentalService services.RentalService, rentalRepo repositories.RentalRepository) *RentalHandlers {
	return &RentalHandlers{
		rentalService: rentalService,
		rentalRepo:    rentalRepo,
	}
}

// RequestRental handles POST /rentals
func (h *RentalHandlers) RequestRental(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		BookID string `json:"book_id"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	bookID, err := common.ValidateUUID(req.BookID, "book id")
	if err != nil {
		return common.SendValidationError(c, "book_id", err.Error())
	}

	rental, err := h.rentalService.RequestRental(ctx, userID, bookID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubscriptionNotActive):
			return common.SendConflictError(c, "An active subscription is required to rent")
		case errors.Is(err, services.ErrCapacityExceeded):
			return common.SendConflictError(c, "Plan book limit reached, return or exchange a book first")
		default:
			return common.SendServerError(c, "Failed to create rental")
		}
	}
	return c.JSON(http.StatusCreated, rental)
}

// ListMyRentals handles GET /rentals
func (h *RentalHandlers) ListMyRentals(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, offset, err := common.ValidatePaginationParams(limit, offset)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	rentals, err := h.rentalService.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return common.SendServerError(c, "Failed to list rentals")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"rentals": rentals,
		"limit":   limit,
		"offset":  offset,
	})
}

// ReturnRental handles PUT /rentals/:id/return
func (h *RentalHandlers) ReturnRental(c echo.Context) error {
	ctx := c.Request().Context()

	rental, err := h.ownedRental(c)
	if err != nil || rental == nil {
		return err
	}

	returned, err := h.rentalService.Return(ctx, rental.ID)
	if err != nil {
		return common.SendServerError(c, "Failed to return rental")
	}
	return c.JSON(http.StatusOK, returned)
}

// ExchangeRental handles PUT /rentals/:id/exchange
func (h *RentalHandlers) ExchangeRental(c echo.Context) error {
	ctx := c.Request().Context()

	rental, err := h.ownedRental(c)
	if err != nil || rental == nil {
		return err
	}

	var req struct {
		NewBookID string `json:"new_book_id"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	newBookID, err := common.ValidateUUID(req.NewBookID, "new book id")
	if err != nil {
		return common.SendValidationError(c, "new_book_id", err.Error())
	}

	replacement, err := h.rentalService.Exchange(ctx, rental.ID, newBookID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRentalNotExchangeable):
			return common.SendConflictError(c, "Only an active rental can be exchanged")
		case errors.Is(err, services.ErrExchangeLimitReached):
			return common.SendConflictError(c, "Monthly exchange limit reached")
		default:
			return common.SendServerError(c, "Failed to exchange rental")
		}
	}
	return c.JSON(http.StatusOK, replacement)
}

// ownedRental loads the path rental and enforces ownership
func (h *RentalHandlers) ownedRental(c echo.Context) (*models.Rental, error) {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return nil, common.SendUnauthorizedError(c)
	}

	rentalID, err := common.ValidateUUID(c.Param("id"), "rental id")
	if err != nil {
		return nil, common.SendValidationError(c, "id", err.Error())
	}

	rental, err := h.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		if errors.Is(err, repositories.ErrRentalNotFound) {
			return nil, common.SendNotFoundError(c, "Rental")
		}
		return nil, common.SendServerError(c, "Failed to load rental")
	}

	if rental.UserID != userID && !common.IsAdminFromContext(ctx) {
		return nil, common.SendNotFoundError(c, "Rental")
	}
	return rental, nil
}
