package checkout

import (
	"context"
	"errors"
)

// Poll statuses reported to the shopper's client.
const (
	PollPaid    = "paid"
	PollPending = "pending"
	PollExpired = "expired"
)

// Webhook event types the reconciler acts on.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// ErrInvalidSignature is returned by ParseWebhook when the payload was
// not signed with the configured secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// LineItem is one charged line on the hosted payment page.
type LineItem struct {
	Name        string
	Description string
	AmountCents int64
	Quantity    int64
}

// SessionParams describes a session to create.
type SessionParams struct {
	LineItems     []LineItem
	Currency      string
	CustomerEmail string
	CustomerID    string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

// Session is the processor-neutral view of a checkout session.
type Session struct {
	ID              string
	URL             string
	Status          string // open, complete, expired
	PaymentStatus   string // paid, unpaid, no_payment_required
	AmountTotal     int64
	Currency        string
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	PaymentIntentID string
	Metadata        map[string]string
}

// Paid reports whether the processor has captured the money.
func (s *Session) Paid() bool { return s.PaymentStatus == "paid" }

// PollStatus maps the session to the three states the client polls for.
func (s *Session) PollStatus() string {
	switch {
	case s.Paid():
		return PollPaid
	case s.Status == "expired":
		return PollExpired
	default:
		return PollPending
	}
}

// Event is a verified webhook delivery.  Session is set for checkout
// session events and nil otherwise.
type Event struct {
	ID      string
	Type    string
	Session *Session
}

// Processor creates and looks up hosted checkout sessions.
type Processor interface {
	CreateSession(ctx context.Context, p SessionParams) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// WebhookVerifier authenticates raw webhook bodies.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
