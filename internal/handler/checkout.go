package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/cart"
	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/kv"
	"github.com/iliyamo/acappella-workshop/internal/middleware"
	"github.com/iliyamo/acappella-workshop/internal/model"
)

// UserSource loads accounts by id.
type UserSource interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// OwnedRegistrations loads a registration owned by a user.
type OwnedRegistrations interface {
	GetForUser(ctx context.Context, id, userID uint64) (model.Registration, error)
}

// StudentSource loads students by id.
type StudentSource interface {
	GetByID(ctx context.Context, id uint64) (model.Student, error)
}

// CheckoutHandler turns carts and registration forms into processor
// checkout sessions.  It never mutates the cart; the cart is cleared by
// the client once the payment is confirmed paid.
type CheckoutHandler struct {
	Initiator     *checkout.Initiator
	Weeks         checkout.WeekSource
	Users         UserSource
	Registrations OwnedRegistrations
	Students      StudentSource
	Carts         kv.Store // optional; lets a request check out its server-side cart
	Logger        zerolog.Logger
}

func NewCheckoutHandler(in *checkout.Initiator, weeks checkout.WeekSource, users UserSource, regs OwnedRegistrations, students StudentSource, carts kv.Store, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		Initiator:     in,
		Weeks:         weeks,
		Users:         users,
		Registrations: regs,
		Students:      students,
		Carts:         carts,
		Logger:        logger.With().Str("service", "CheckoutHandler").Logger(),
	}
}

type checkoutReq struct {
	Items         []checkout.Item  `json:"items"`
	PromoCode     string           `json:"promoCode"`
	Contact       checkout.Contact `json:"contact"`
	FormSubmitted bool             `json:"formSubmitted"`
}

func checkoutError(c echo.Context, err error) error {
	var ve *checkout.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "field": ve.Field, "message": ve.Message})
	case errors.Is(err, checkout.ErrProcessor):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "checkout_failed", "message": "could not start checkout; please try again"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout_failed"})
}

// fillFromCart uses the visitor's server-side cart when the body names
// no items.
func (h *CheckoutHandler) fillFromCart(c echo.Context, req *checkoutReq) error {
	if len(req.Items) > 0 || h.Carts == nil {
		return nil
	}
	v := middleware.VisitorID(c)
	if v == "" {
		return nil
	}
	st, err := cart.NewWithKey(h.Carts, cart.Namespace+":"+v).State(c.Request().Context())
	if err != nil {
		return err
	}
	for _, it := range st.Items {
		req.Items = append(req.Items, checkout.Item{WeekID: it.WeekID, PaymentType: it.PaymentType})
	}
	if req.PromoCode == "" {
		req.PromoCode = st.PromoCode
	}
	return nil
}

// CreateSession handles POST /api/create-checkout-session: the public
// cart checkout.  Contact details are required; a bearer token, when
// present, ties the payment to the signed-in parent.
func (h *CheckoutHandler) CreateSession(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.fillFromCart(c, &req); err != nil {
		h.Logger.Warn().Err(err).Msg("reading visitor cart failed")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*dbTimeout)
	defer cancel()

	cr := checkout.Request{
		Kind:      checkout.KindCart,
		Items:     req.Items,
		PromoCode: req.PromoCode,
		Contact:   req.Contact,
	}
	if uid, ok := currentUser(c); ok {
		cr.UserID = uid
		if u, err := h.Users.GetByID(ctx, uid); err == nil {
			cr.CustomerID = u.StripeCustomerID
		}
	}
	res, err := h.Initiator.Start(ctx, cr)
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Checkout handles POST /api/checkout: the signed-in registration
// checkout.  The registration form must have been submitted;
// contact fields default to the account's name and email.
func (h *CheckoutHandler) Checkout(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.fillFromCart(c, &req); err != nil {
		h.Logger.Warn().Err(err).Msg("reading visitor cart failed")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return repoError(c, err, "load user failed")
	}
	if strings.TrimSpace(req.Contact.Email) == "" {
		req.Contact.Email = u.Email
	}
	if strings.TrimSpace(req.Contact.ParentName) == "" {
		req.Contact.ParentName = u.Name
	}
	res, err := h.Initiator.Start(ctx, checkout.Request{
		Kind:                 checkout.KindRegistration,
		Items:                req.Items,
		PromoCode:            req.PromoCode,
		Contact:              req.Contact,
		UserID:               uid,
		CustomerID:           u.StripeCustomerID,
		RequireFormSubmitted: true,
		FormSubmitted:        req.FormSubmitted,
	})
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// BalanceCheckout handles POST /api/balance-checkout for the remaining
// balance of one of the caller's deposit registrations.
func (h *CheckoutHandler) BalanceCheckout(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		RegistrationID uint64 `json:"registrationId"`
	}
	if err := c.Bind(&req); err != nil || req.RegistrationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "registrationId required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*dbTimeout)
	defer cancel()

	reg, err := h.Registrations.GetForUser(ctx, req.RegistrationID, uid)
	if err != nil {
		return repoError(c, err, "load registration failed")
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return repoError(c, err, "load user failed")
	}
	w, err := h.Weeks.GetByID(ctx, reg.WeekID)
	if err != nil {
		return repoError(c, err, "load week failed")
	}
	student := ""
	if s, err := h.Students.GetByID(ctx, reg.StudentID); err == nil {
		student = s.FullName()
	}
	res, err := h.Initiator.StartBalance(ctx, checkout.BalanceRequest{
		UserID:       uid,
		CustomerID:   u.StripeCustomerID,
		Email:        u.Email,
		ParentName:   u.Name,
		Registration: reg,
		Week:         w,
		StudentName:  student,
	})
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// PaymentStatus handles GET /api/payment-status/:sessionId and answers
// {"status": "paid"|"pending"|"expired"}.  When r is set, a paid session
// is reconciled before answering; the reconciler is a no-op for sessions
// already applied, so this catches up on webhook deliveries that failed.
func PaymentStatus(p checkout.Processor, r Reconciler, logger zerolog.Logger) echo.HandlerFunc {
	lg := logger.With().Str("service", "PaymentStatus").Logger()
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Param("sessionId"))
		if id == "" || len(id) > 255 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
		}
		ctx, cancel := dbCtx(c)
		defer cancel()
		s, err := p.GetSession(ctx, id)
		if err != nil {
			lg.Warn().Err(err).Str("session_id", id).Msg("session lookup failed")
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "status_unavailable"})
		}
		status := s.PollStatus()
		if status == checkout.PollPaid && r != nil {
			rctx, rcancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 4*dbTimeout)
			out, err := r.Reconcile(rctx, s)
			rcancel()
			switch {
			case err != nil:
				lg.Error().Err(err).Str("session_id", id).Msg("catch-up reconciliation failed")
			case !out.Duplicate && !out.Skipped:
				lg.Warn().Str("session_id", id).Uint64("user_id", out.UserID).Msg("session reconciled from status check")
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": status})
	}
}
