package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/reconcile"
)

// maxWebhookBody caps the payload read before signature verification.
const maxWebhookBody = 256 << 10

// Reconciler applies a paid checkout session.
type Reconciler interface {
	Reconcile(ctx context.Context, s *checkout.Session) (reconcile.Outcome, error)
}

// WebhookHandler receives processor events on POST /api/webhook.
type WebhookHandler struct {
	Verifier   checkout.WebhookVerifier
	Reconciler Reconciler
	Logger     zerolog.Logger
}

func NewWebhookHandler(v checkout.WebhookVerifier, r Reconciler, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{Verifier: v, Reconciler: r, Logger: logger.With().Str("service", "Webhook").Logger()}
}

// Handle verifies the signature over the raw body and reconciles paid
// checkout sessions.  Bad signatures get 400 and change nothing.  Once
// verified, the event is always acknowledged with 200: reconciliation
// errors are logged with the session id and the transaction is rolled
// back, and re-deliveries of an applied session are no-ops.
func (h *WebhookHandler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil || len(payload) > maxWebhookBody {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	ev, err := h.Verifier.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		h.Logger.Warn().Err(err).Msg("rejected webhook")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	}

	lg := h.Logger.With().Str("event_id", ev.ID).Str("type", ev.Type).Logger()
	if !reconcilable(ev) {
		lg.Debug().Msg("event ignored")
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	// detached from the request so a client disconnect cannot abort the tx
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 4*dbTimeout)
	defer cancel()
	out, err := h.Reconciler.Reconcile(ctx, ev.Session)
	switch {
	case err != nil:
		lg.Error().Err(err).Str("session_id", ev.Session.ID).Msg("reconciliation failed")
	case out.Duplicate:
		lg.Info().Str("session_id", out.SessionID).Msg("session already reconciled")
	case out.Skipped:
		lg.Info().Str("session_id", out.SessionID).Msg("session not paid; skipped")
	default:
		lg.Info().Str("session_id", out.SessionID).Str("kind", out.Kind).Uint64("user_id", out.UserID).Msg("session reconciled")
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func reconcilable(ev *checkout.Event) bool {
	if ev.Session == nil {
		return false
	}
	switch ev.Type {
	case checkout.EventSessionCompleted:
		return ev.Session.Paid()
	case checkout.EventAsyncPaymentSucceeded:
		return true
	}
	return false
}
