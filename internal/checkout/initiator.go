// Package checkout turns a cart (or a single registration's balance)
// into a hosted payment session.  Nothing is persisted here: the
// registration rows are written later by the webhook reconciler once
// the processor reports the session paid.
package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/pricing"
)

// Flow kinds, stored in session metadata under "kind".
const (
	KindCart         = "cart"
	KindRegistration = "registration"
	KindBalance      = "balance"
)

// Metadata keys written on every session.
const (
	MetaKind           = "kind"
	MetaItems          = "items"
	MetaUserID         = "user_id"
	MetaPromoCode      = "promo_code"
	MetaParentName     = "parent_name"
	MetaChildName      = "child_name"
	MetaRegistrationID = "registration_id"
)

// ErrProcessor wraps any failure of the payment processor call.
var ErrProcessor = errors.New("checkout_failed")

// ValidationError is a precondition failure.  No processor call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// Item is one requested week.
type Item struct {
	WeekID      string `json:"weekId" validate:"required"`
	PaymentType string `json:"paymentType" validate:"required,oneof=full deposit"`
	StudentName string `json:"studentName,omitempty" validate:"max=120"`
}

// Contact is who is paying and for which child.
type Contact struct {
	ParentName string `json:"parentName" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email"`
	ChildName  string `json:"childName" validate:"required,max=120"`
}

// Request starts a cart or registration checkout.
type Request struct {
	Kind                 string
	Items                []Item
	PromoCode            string
	Contact              Contact
	UserID               uint64
	CustomerID           string
	RequireFormSubmitted bool
	FormSubmitted        bool
}

// BalanceRequest starts a checkout for the remaining balance of one
// registration.  The caller has already checked ownership.
type BalanceRequest struct {
	UserID       uint64
	CustomerID   string
	Email        string
	ParentName   string
	Registration model.Registration
	Week         model.Week
	StudentName  string
}

// Result is what the client needs to redirect the shopper.
type Result struct {
	SessionID string        `json:"id"`
	URL       string        `json:"url"`
	Quote     pricing.Quote `json:"quote"`
}

// MetaItem is the per-line record carried in session metadata.
type MetaItem struct {
	WeekID      string `json:"weekId"`
	StudentName string `json:"studentName"`
	PaymentType string `json:"paymentType"`
}

// WeekSource resolves week ids.  Unknown ids return sql.ErrNoRows.
type WeekSource interface {
	GetByID(ctx context.Context, id string) (model.Week, error)
}

// Initiator validates checkout requests and opens processor sessions.
type Initiator struct {
	processor  Processor
	weeks      WeekSource
	validate   *validator.Validate
	successURL string
	cancelURL  string
	logger     zerolog.Logger
}

// NewInitiator wires an Initiator.  successURL may contain the
// processor placeholder {CHECKOUT_SESSION_ID}.
func NewInitiator(p Processor, weeks WeekSource, v *validator.Validate, successURL, cancelURL string, logger zerolog.Logger) *Initiator {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Initiator{
		processor:  p,
		weeks:      weeks,
		validate:   v,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger.With().Str("service", "CheckoutInitiator").Logger(),
	}
}

type line struct {
	item Item
	week model.Week
	base int64
}

// Start validates req and creates a session.  Validation failures are
// *ValidationError; processor failures wrap ErrProcessor.
func (in *Initiator) Start(ctx context.Context, req Request) (*Result, error) {
	lines, err := in.check(ctx, req)
	if err != nil {
		return nil, err
	}

	var policy *pricing.Policy
	promo := ""
	if req.PromoCode != "" {
		if p, ok := pricing.Lookup(req.PromoCode); ok {
			policy = &p
			promo = p.Code
		} else {
			in.logger.Info().Str("promo_code", req.PromoCode).Msg("Ignoring unknown promo code at checkout")
		}
	}

	bases := make([]int64, len(lines))
	for i, l := range lines {
		bases[i] = l.base
	}
	quote := pricing.QuoteFor(bases, policy)
	shares := pricing.Allocate(quote.TotalCents, bases)

	items := make([]LineItem, len(lines))
	meta := make([]MetaItem, len(lines))
	for i, l := range lines {
		student := strings.TrimSpace(l.item.StudentName)
		if student == "" {
			student = strings.TrimSpace(req.Contact.ChildName)
		}
		name := l.week.Label
		if l.item.PaymentType == model.PaymentTypeDeposit {
			name += " (deposit)"
		}
		items[i] = LineItem{Name: name, Description: student, AmountCents: shares[i], Quantity: 1}
		meta[i] = MetaItem{WeekID: l.week.ID, StudentName: student, PaymentType: l.item.PaymentType}
	}
	metaItems, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = KindCart
	}
	md := map[string]string{
		MetaKind:       kind,
		MetaItems:      string(metaItems),
		MetaParentName: strings.TrimSpace(req.Contact.ParentName),
		MetaChildName:  strings.TrimSpace(req.Contact.ChildName),
	}
	if req.UserID != 0 {
		md[MetaUserID] = strconv.FormatUint(req.UserID, 10)
	}
	if promo != "" {
		md[MetaPromoCode] = promo
	}

	sess, err := in.processor.CreateSession(ctx, SessionParams{
		LineItems:     items,
		CustomerEmail: strings.ToLower(strings.TrimSpace(req.Contact.Email)),
		CustomerID:    req.CustomerID,
		Metadata:      md,
		SuccessURL:    in.successURL,
		CancelURL:     in.cancelURL,
	})
	if err != nil {
		in.logger.Error().Err(err).Str("kind", kind).Int("items", len(items)).Msg("Checkout session creation failed")
		return nil, fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	in.logger.Info().Str("session_id", sess.ID).Str("kind", kind).Int64("total_cents", quote.TotalCents).Msg("Checkout session created")
	return &Result{SessionID: sess.ID, URL: sess.URL, Quote: quote}, nil
}

// check enforces every precondition before any network call.
func (in *Initiator) check(ctx context.Context, req Request) ([]line, error) {
	if len(req.Items) == 0 {
		return nil, invalid("items", "cart is empty")
	}
	if req.RequireFormSubmitted && !req.FormSubmitted {
		return nil, invalid("formSubmitted", "registration form must be submitted first")
	}
	if err := in.validate.Struct(req.Contact); err != nil {
		return nil, fromValidator(err)
	}
	if strings.TrimSpace(req.Contact.ParentName) == "" || strings.TrimSpace(req.Contact.ChildName) == "" {
		return nil, invalid("contact", "names must not be blank")
	}

	lines := make([]line, 0, len(req.Items))
	seen := map[string]bool{}
	location := ""
	for _, it := range req.Items {
		if err := in.validate.Struct(it); err != nil {
			return nil, fromValidator(err)
		}
		key := it.WeekID + "|" + strings.ToLower(strings.TrimSpace(it.StudentName))
		if seen[key] {
			return nil, invalid("items", "duplicate week "+it.WeekID)
		}
		seen[key] = true

		w, err := in.weeks.GetByID(ctx, it.WeekID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid("items", "unknown week "+it.WeekID)
		}
		if err != nil {
			return nil, err
		}
		if location == "" {
			location = w.Location
		} else if w.Location != location {
			return nil, invalid("items", "all weeks must be at one location")
		}
		lines = append(lines, line{item: it, week: w, base: w.ChargeCents(it.PaymentType)})
	}
	return lines, nil
}

// StartBalance opens a session for the outstanding balance of one
// registration.
func (in *Initiator) StartBalance(ctx context.Context, req BalanceRequest) (*Result, error) {
	reg := req.Registration
	if reg.BalanceDueCents <= 0 {
		return nil, invalid("registration", "nothing left to pay")
	}
	if reg.Status == model.StatusCancelled || reg.Status == model.StatusRefunded {
		return nil, invalid("registration", "registration is "+reg.Status)
	}
	if err := in.validate.Var(req.Email, "required,email"); err != nil {
		return nil, invalid("email", "a valid email is required")
	}

	meta, _ := json.Marshal([]MetaItem{{WeekID: reg.WeekID, StudentName: req.StudentName, PaymentType: reg.PaymentType}})
	md := map[string]string{
		MetaKind:           KindBalance,
		MetaItems:          string(meta),
		MetaUserID:         strconv.FormatUint(req.UserID, 10),
		MetaRegistrationID: strconv.FormatUint(reg.ID, 10),
		MetaParentName:     req.ParentName,
		MetaChildName:      req.StudentName,
	}
	sess, err := in.processor.CreateSession(ctx, SessionParams{
		LineItems: []LineItem{{
			Name:        req.Week.Label + " (balance)",
			Description: req.StudentName,
			AmountCents: reg.BalanceDueCents,
			Quantity:    1,
		}},
		CustomerEmail: strings.ToLower(strings.TrimSpace(req.Email)),
		CustomerID:    req.CustomerID,
		Metadata:      md,
		SuccessURL:    in.successURL,
		CancelURL:     in.cancelURL,
	})
	if err != nil {
		in.logger.Error().Err(err).Uint64("registration_id", reg.ID).Msg("Balance checkout session creation failed")
		return nil, fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	q := pricing.Quote{SubtotalCents: reg.BalanceDueCents, TotalCents: reg.BalanceDueCents}
	return &Result{SessionID: sess.ID, URL: sess.URL, Quote: q}, nil
}

// ParseMetaItems decodes the items metadata of a session.
func ParseMetaItems(s string) ([]MetaItem, error) {
	var items []MetaItem
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("decode items metadata: %w", err)
	}
	return items, nil
}

func fromValidator(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			return invalid(field, "is required")
		case "email":
			return invalid(field, "must be a valid email address")
		case "oneof":
			return invalid(field, "must be one of: "+fe.Param())
		default:
			return invalid(field, "is invalid")
		}
	}
	return invalid("", err.Error())
}
