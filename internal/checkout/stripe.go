package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProcessor implements Processor and WebhookVerifier with Stripe
// Checkout in payment mode.
type StripeProcessor struct {
	webhookSecret string
	logger        zerolog.Logger
}

// NewStripeProcessor sets the Stripe API key and returns a processor
// with a scoped logger.
func NewStripeProcessor(secretKey, webhookSecret string, logger zerolog.Logger) *StripeProcessor {
	stripe.Key = secretKey
	lg := logger.With().Str("service", "StripeProcessor").Logger()
	return &StripeProcessor{webhookSecret: webhookSecret, logger: lg}
}

// CreateSession creates a one-off payment session with inline prices.
func (s *StripeProcessor) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	currency := p.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(li.Name)}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		lines = append(lines, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(li.AmountCents),
				ProductData: product,
			},
			Quantity: stripe.Int64(qty),
		})
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lines,
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		Metadata:           p.Metadata,
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
		params.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Int("line_items", len(lines)).Msg("Failed to create Stripe checkout session")
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return fromStripe(sess), nil
}

// GetSession fetches a session by id.
func (s *StripeProcessor) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := checkoutsession.Get(id, params)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to fetch Stripe checkout session")
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return fromStripe(sess), nil
}

// ParseWebhook verifies the Stripe-Signature header against the raw
// body.  Events whose API version differs from the library's are still
// accepted; only the fields read below are relied on.
func (s *StripeProcessor) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if s.webhookSecret == "" || signature == "" {
		return nil, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if strings.HasPrefix(out.Type, "checkout.session.") && ev.Data != nil {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = fromStripe(&cs)
	}
	return out, nil
}

func fromStripe(cs *stripe.CheckoutSession) *Session {
	s := &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		CustomerEmail: cs.CustomerEmail,
		Metadata:      cs.Metadata,
	}
	if cs.Customer != nil {
		s.CustomerID = cs.Customer.ID
	}
	if cs.CustomerDetails != nil {
		if cs.CustomerDetails.Email != "" {
			s.CustomerEmail = cs.CustomerDetails.Email
		}
		s.CustomerName = cs.CustomerDetails.Name
	}
	if cs.PaymentIntent != nil {
		s.PaymentIntentID = cs.PaymentIntent.ID
	}
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
	return s
}
