package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/acappella-workshop/internal/cart"
	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/kv"
	"github.com/iliyamo/acappella-workshop/internal/middleware"
)

// CartHandler serves the server-side cart, one per X-Visitor-ID.
type CartHandler struct {
	Store kv.Store // nil when Redis is unavailable
	Weeks checkout.WeekSource
}

func NewCartHandler(store kv.Store, weeks checkout.WeekSource) *CartHandler {
	return &CartHandler{Store: store, Weeks: weeks}
}

// open returns the visitor's cart or writes an error response.
func (h *CartHandler) open(c echo.Context) (*cart.Cart, error) {
	if h.Store == nil {
		return nil, c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "cart storage unavailable"})
	}
	v := middleware.VisitorID(c)
	if v == "" {
		return nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "X-Visitor-ID header required"})
	}
	return cart.NewWithKey(h.Store, cart.Namespace+":"+v), nil
}

func (h *CartHandler) state(c echo.Context, ct *cart.Cart, status int) error {
	st, err := ct.State(c.Request().Context())
	if err != nil {
		return cartError(c, err)
	}
	if st.Items == nil {
		st.Items = []cart.Item{}
	}
	return c.JSON(status, st)
}

func cartError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, cart.ErrLocationMismatch):
		return c.JSON(http.StatusConflict, echo.Map{"error": "location_mismatch", "message": "the cart already holds weeks from another location"})
	case errors.Is(err, cart.ErrAlreadyInCart):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already_in_cart", "message": "remove the week before changing its payment type"})
	case errors.Is(err, cart.ErrUnknownPromo):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown_promo"})
	case errors.Is(err, cart.ErrInvalidItem):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_item"})
	case errors.Is(err, cart.ErrSchemaVersion):
		return c.JSON(http.StatusConflict, echo.Map{"error": "cart_version", "message": "cart was written by a newer version; clear it"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cart storage failed"})
}

// Get handles GET /api/cart.
func (h *CartHandler) Get(c echo.Context) error {
	ct, err := h.open(c)
	if ct == nil {
		return err
	}
	return h.state(c, ct, http.StatusOK)
}

type addReq struct {
	WeekID      string `json:"weekId"`
	PaymentType string `json:"paymentType"`
}

// Add handles POST /api/cart.  Price, label and location come from the
// week catalogue, never from the client.
func (h *CartHandler) Add(c echo.Context) error {
	ct, err := h.open(c)
	if ct == nil {
		return err
	}
	var req addReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.PaymentType == "" {
		req.PaymentType = "full"
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	w, err := h.Weeks.GetByID(ctx, strings.TrimSpace(req.WeekID))
	if err != nil {
		return repoError(c, err, "week lookup failed")
	}
	if err := ct.Add(ctx, w.ID, req.PaymentType, cart.WeekInfoOf(w), w.Location); err != nil {
		return cartError(c, err)
	}
	return h.state(c, ct, http.StatusOK)
}

// Remove handles DELETE /api/cart/items/:weekId.
func (h *CartHandler) Remove(c echo.Context) error {
	ct, err := h.open(c)
	if ct == nil {
		return err
	}
	if err := ct.Remove(c.Request().Context(), c.Param("weekId")); err != nil {
		return cartError(c, err)
	}
	return h.state(c, ct, http.StatusOK)
}

// Clear handles DELETE /api/cart.
func (h *CartHandler) Clear(c echo.Context) error {
	ct, err := h.open(c)
	if ct == nil {
		return err
	}
	if err := ct.Clear(c.Request().Context()); err != nil {
		return cartError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetPromo handles PUT /api/cart/promo.
func (h *CartHandler) SetPromo(c echo.Context) error {
	ct, err := h.open(c)
	if ct == nil {
		return err
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := ct.SetPromoCode(c.Request().Context(), req.Code); err != nil {
		return cartError(c, err)
	}
	return h.state(c, ct, http.StatusOK)
}

// RemovePromo handles DELETE /api/cart/promo.
func (h *CartHandler) RemovePromo(c echo.Context) error {
	ct, err := h.open(c)
	if ct == nil {
		return err
	}
	if err := ct.RemovePromoCode(c.Request().Context()); err != nil {
		return cartError(c, err)
	}
	return h.state(c, ct, http.StatusOK)
}
