package handlers

import (
	"errors"
	"net/http"

	"kazka/internal/common"
	"kazka/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/random"
)

const cartSessionCookie = "kazka_cart"

// CartHandlers handles HTTP requests for the book selection cart
type CartHandlers struct {
	cartService services.CartService
}

// NewCartHandlers creates a new cart handlers instance
func NewCartHandlers(cartService services.CartService) *CartHandlers {
	return &CartHandlers{cartService: cartService}
}

// sessionID reads the cart session cookie, minting one when absent
func (h *CartHandlers) sessionID(c echo.Context) string {
	if cookie, err := c.Cookie(cartSessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := random.String(32)
	c.SetCookie(&http.Cookie{
		Name:     cartSessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return id
}

// ownedSession resolves the cart session and rejects a cookie whose cart
// belongs to a different user. Carts are keyed by session id, so a foreign
// cookie would otherwise expose and check out another user's staged items.
// An empty cart has no owner yet and passes.
func (h *CartHandlers) ownedSession(c echo.Context) (string, error) {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return "", common.SendUnauthorizedError(c)
	}

	session := h.sessionID(c)
	cart, err := h.cartService.Get(ctx, session)
	if err != nil {
		return "", common.SendServerError(c, "Failed to load cart")
	}
	if len(cart.Items) > 0 && cart.UserID != userID {
		return "", common.SendNotFoundError(c, "Cart")
	}
	return session, nil
}

// GetCart handles GET /cart
func (h *CartHandlers) GetCart(c echo.Context) error {
	session, err := h.ownedSession(c)
	if err != nil || session == "" {
		return err
	}
	cart, err := h.cartService.Get(c.Request().Context(), session)
	if err != nil {
		return common.SendServerError(c, "Failed to load cart")
	}
	return c.JSON(http.StatusOK, cart)
}

// AddItem handles POST /cart/items
func (h *CartHandlers) AddItem(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	session, err := h.ownedSession(c)
	if err != nil || session == "" {
		return err
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

	cart, err := h.cartService.AddItem(ctx, session, userID, bookID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubscriptionNotActive):
			return common.SendConflictError(c, "An active subscription is required")
		case errors.Is(err, services.ErrCartFull):
			return common.SendConflictError(c, "Cart is at plan capacity")
		default:
			return common.SendServerError(c, "Failed to add item")
		}
	}
	return c.JSON(http.StatusOK, cart)
}

// RemoveItem handles DELETE /cart/items/:book_id
func (h *CartHandlers) RemoveItem(c echo.Context) error {
	session, err := h.ownedSession(c)
	if err != nil || session == "" {
		return err
	}
	bookID, err := common.ValidateUUID(c.Param("book_id"), "book id")
	if err != nil {
		return common.SendValidationError(c, "book_id", err.Error())
	}

	cart, err := h.cartService.RemoveItem(c.Request().Context(), session, bookID)
	if err != nil {
		if errors.Is(err, services.ErrCartEmpty) {
			return common.SendNotFoundError(c, "Cart")
		}
		return common.SendServerError(c, "Failed to remove item")
	}
	return c.JSON(http.StatusOK, cart)
}

// ClearCart handles DELETE /cart
func (h *CartHandlers) ClearCart(c echo.Context) error {
	session, err := h.ownedSession(c)
	if err != nil || session == "" {
		return err
	}
	if err := h.cartService.Clear(c.Request().Context(), session); err != nil {
		return common.SendServerError(c, "Failed to clear cart")
	}
	return c.NoContent(http.StatusNoContent)
}

// Checkout handles POST /cart/checkout. Items are admitted one by one; the
// response reports per-item outcomes instead of failing the whole batch.
func (h *CartHandlers) Checkout(c echo.Context) error {
	session, err := h.ownedSession(c)
	if err != nil || session == "" {
		return err
	}
	results, err := h.cartService.Checkout(c.Request().Context(), session)
	if err != nil {
		if errors.Is(err, services.ErrCartEmpty) {
			return common.SendClientError(c, "Cart is empty")
		}
		return common.SendServerError(c, "Checkout failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": results,
	})
}
