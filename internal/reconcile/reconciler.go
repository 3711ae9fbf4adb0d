// Package reconcile turns a paid checkout session into durable user,
// student, registration and payment rows.  Every delivery of the same
// session is applied at most once: the payment row keyed by the
// session id is inserted first, inside the same transaction as the
// registrations, so a concurrent or repeated delivery either sees the
// row or fails on its unique index and rolls back.
package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/pricing"
	"github.com/iliyamo/acappella-workshop/internal/queue"
)

var (
	// ErrDuplicate must be returned by Tx.CreatePayment when a payment
	// for the session already exists.
	ErrDuplicate = errors.New("payment already recorded")
	// ErrNoPurchaser means neither a user id nor an email was available.
	ErrNoPurchaser = errors.New("cannot determine purchaser")
	// ErrNoItems means the session metadata carried no items.
	ErrNoItems = errors.New("session has no items")
)

// Tx is the set of writes the reconciler performs atomically.  Lookups
// that find nothing return sql.ErrNoRows.
type Tx interface {
	PaymentExists(ctx context.Context, sessionID string) (bool, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	UserByID(ctx context.Context, id uint64) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, email, name string) (uint64, error)
	FindStudent(ctx context.Context, userID uint64, first, last string) (model.Student, error)
	CreateStudent(ctx context.Context, s *model.Student) error
	Week(ctx context.Context, id string) (model.Week, error)
	CreateRegistration(ctx context.Context, r *model.Registration) error
	RegistrationForUpdate(ctx context.Context, id uint64) (model.Registration, error)
	UpdateRegistrationPayment(ctx context.Context, r *model.Registration) error
	Commit() error
	Rollback() error
}

// Ledger opens reconciliation transactions.
type Ledger interface {
	Begin(ctx context.Context) (Tx, error)
}

// Auditor appends audit log entries.
type Auditor interface {
	Record(ctx context.Context, entry model.AuditLog) error
}

// CustomerLinker stores the processor customer id on a user.
type CustomerLinker interface {
	SetStripeCustomerID(ctx context.Context, userID uint64, customerID string) error
}

// Publisher announces committed payments.
type Publisher interface {
	PublishRegistrationPaid(ctx context.Context, ev queue.RegistrationPaidEvent) error
}

// Outcome describes what a reconciliation did.
type Outcome struct {
	SessionID string
	Kind      string
	UserID    uint64
	Duplicate bool
	Skipped   bool
	Event     queue.RegistrationPaidEvent
}

// Reconciler applies paid sessions.  Auditor, CustomerLinker and
// Publisher are optional; their failures are logged, never returned,
// because they run after the commit.
type Reconciler struct {
	ledger    Ledger
	audit     Auditor
	customers CustomerLinker
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// New builds a Reconciler.
func New(ledger Ledger, audit Auditor, customers CustomerLinker, publisher Publisher, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		ledger:    ledger,
		audit:     audit,
		customers: customers,
		publisher: publisher,
		logger:    logger.With().Str("service", "Reconciler").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile applies a session.  Unpaid sessions are skipped.  An
// already-applied session yields Outcome.Duplicate and no writes.
func (r *Reconciler) Reconcile(ctx context.Context, s *checkout.Session) (Outcome, error) {
	out := Outcome{SessionID: s.ID, Kind: s.Metadata[checkout.MetaKind]}
	if out.Kind == "" {
		out.Kind = checkout.KindCart
	}
	if !s.Paid() {
		out.Skipped = true
		return out, nil
	}

	tx, err := r.ledger.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	exists, err := tx.PaymentExists(ctx, s.ID)
	if err != nil {
		return out, err
	}
	if exists {
		out.Duplicate = true
		return out, nil
	}

	var ev queue.RegistrationPaidEvent
	if out.Kind == checkout.KindBalance {
		ev, err = r.applyBalance(ctx, tx, s)
	} else {
		ev, err = r.applyItems(ctx, tx, s)
	}
	if errors.Is(err, ErrDuplicate) {
		out.Duplicate = true
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if err := tx.Commit(); err != nil {
		return out, fmt.Errorf("commit: %w", err)
	}
	committed = true

	out.UserID = ev.UserID
	out.Event = ev
	r.afterCommit(ctx, s, ev)
	return out, nil
}

func (r *Reconciler) applyItems(ctx context.Context, tx Tx, s *checkout.Session) (queue.RegistrationPaidEvent, error) {
	var ev queue.RegistrationPaidEvent
	items, err := checkout.ParseMetaItems(s.Metadata[checkout.MetaItems])
	if err != nil {
		return ev, err
	}
	if len(items) == 0 {
		return ev, ErrNoItems
	}

	user, err := r.purchaser(ctx, tx, s)
	if err != nil {
		return ev, err
	}
	pay, err := r.recordPayment(ctx, tx, s, user.ID)
	if err != nil {
		return ev, err
	}

	weeks := make([]model.Week, len(items))
	bases := make([]int64, len(items))
	for i, it := range items {
		w, err := tx.Week(ctx, it.WeekID)
		if err != nil {
			return ev, fmt.Errorf("week %s: %w", it.WeekID, err)
		}
		weeks[i] = w
		bases[i] = w.ChargeCents(it.PaymentType)
	}
	shares := pricing.Allocate(s.AmountTotal, bases)

	ev = r.newEvent(s, user, pay)
	students := map[string]model.Student{}
	for i, it := range items {
		name := strings.TrimSpace(it.StudentName)
		if name == "" {
			name = strings.TrimSpace(s.Metadata[checkout.MetaChildName])
		}
		key := strings.ToLower(name)
		st, ok := students[key]
		if !ok {
			st, err = r.student(ctx, tx, user.ID, name)
			if err != nil {
				return ev, err
			}
			students[key] = st
		}

		reg := model.Registration{
			UserID:            user.ID,
			StudentID:         st.ID,
			WeekID:            weeks[i].ID,
			PaymentType:       it.PaymentType,
			AmountPaidCents:   shares[i],
			PromoCode:         s.Metadata[checkout.MetaPromoCode],
			CheckoutSessionID: s.ID,
			PaymentIntentID:   s.PaymentIntentID,
		}
		if it.PaymentType == model.PaymentTypeDeposit {
			reg.BalanceDueCents = max(0, weeks[i].PriceCents-shares[i])
		}
		reg.Status = model.StatusPaid
		if reg.BalanceDueCents > 0 {
			reg.Status = model.StatusDepositPaid
		}
		if err := tx.CreateRegistration(ctx, &reg); err != nil {
			return ev, fmt.Errorf("create registration: %w", err)
		}
		ev.Registrations = append(ev.Registrations, line(reg, st.FullName(), weeks[i].Label))
	}
	return ev, nil
}

func (r *Reconciler) applyBalance(ctx context.Context, tx Tx, s *checkout.Session) (queue.RegistrationPaidEvent, error) {
	var ev queue.RegistrationPaidEvent
	regID, err := strconv.ParseUint(s.Metadata[checkout.MetaRegistrationID], 10, 64)
	if err != nil {
		return ev, fmt.Errorf("balance session without registration id: %w", err)
	}
	reg, err := tx.RegistrationForUpdate(ctx, regID)
	if err != nil {
		return ev, fmt.Errorf("registration %d: %w", regID, err)
	}
	if uid, err := strconv.ParseUint(s.Metadata[checkout.MetaUserID], 10, 64); err == nil && uid != reg.UserID {
		return ev, fmt.Errorf("registration %d is not owned by user %d", regID, uid)
	}
	user, err := tx.UserByID(ctx, reg.UserID)
	if err != nil {
		return ev, fmt.Errorf("user %d: %w", reg.UserID, err)
	}
	pay, err := r.recordPayment(ctx, tx, s, user.ID)
	if err != nil {
		return ev, err
	}

	reg.AmountPaidCents += s.AmountTotal
	reg.BalanceDueCents = max(0, reg.BalanceDueCents-s.AmountTotal)
	if reg.BalanceDueCents == 0 {
		reg.Status = model.StatusPaid
	}
	reg.PaymentIntentID = s.PaymentIntentID
	if err := tx.UpdateRegistrationPayment(ctx, &reg); err != nil {
		return ev, fmt.Errorf("update registration: %w", err)
	}

	ev = r.newEvent(s, user, pay)
	label := reg.WeekID
	if w, err := tx.Week(ctx, reg.WeekID); err == nil {
		label = w.Label
	}
	ev.Registrations = append(ev.Registrations, line(reg, s.Metadata[checkout.MetaChildName], label))
	return ev, nil
}

// purchaser resolves the paying user: metadata user id first, then the
// session email, creating a passwordless parent account as a last step.
func (r *Reconciler) purchaser(ctx context.Context, tx Tx, s *checkout.Session) (model.User, error) {
	if raw := s.Metadata[checkout.MetaUserID]; raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			u, err := tx.UserByID(ctx, id)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return model.User{}, err
			}
			r.logger.Warn().Uint64("user_id", id).Str("session_id", s.ID).Msg("Metadata user not found; falling back to email")
		}
	}
	email := strings.ToLower(strings.TrimSpace(s.CustomerEmail))
	if email == "" {
		return model.User{}, ErrNoPurchaser
	}
	u, err := tx.UserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, err
	}
	name := strings.TrimSpace(s.Metadata[checkout.MetaParentName])
	if name == "" {
		name = s.CustomerName
	}
	id, err := tx.CreateUser(ctx, email, name)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return model.User{ID: id, Email: email, Name: name, Role: model.RoleParent, IsActive: true}, nil
}

// student finds the purchaser's student by case-insensitive name or
// creates one.
func (r *Reconciler) student(ctx context.Context, tx Tx, userID uint64, name string) (model.Student, error) {
	first, last := SplitName(name)
	st, err := tx.FindStudent(ctx, userID, first, last)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Student{}, err
	}
	st = model.Student{UserID: userID, FirstName: first, LastName: last}
	if err := tx.CreateStudent(ctx, &st); err != nil {
		return model.Student{}, fmt.Errorf("create student: %w", err)
	}
	return st, nil
}

func (r *Reconciler) recordPayment(ctx context.Context, tx Tx, s *checkout.Session, userID uint64) (model.Payment, error) {
	currency := s.Currency
	if currency == "" {
		currency = "usd"
	}
	p := model.Payment{
		UserID:            userID,
		AmountCents:       s.AmountTotal,
		Currency:          currency,
		CheckoutSessionID: s.ID,
		PaymentIntentID:   s.PaymentIntentID,
		Status:            "succeeded",
	}
	if err := tx.CreatePayment(ctx, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (r *Reconciler) newEvent(s *checkout.Session, u model.User, p model.Payment) queue.RegistrationPaidEvent {
	name := s.Metadata[checkout.MetaParentName]
	if name == "" {
		name = u.Name
	}
	kind := s.Metadata[checkout.MetaKind]
	if kind == "" {
		kind = checkout.KindCart
	}
	return queue.RegistrationPaidEvent{
		SessionID:   s.ID,
		Kind:        kind,
		UserID:      u.ID,
		Email:       u.Email,
		ParentName:  name,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		PromoCode:   s.Metadata[checkout.MetaPromoCode],
		PaidAt:      r.now().Format(time.RFC3339),
	}
}

func (r *Reconciler) afterCommit(ctx context.Context, s *checkout.Session, ev queue.RegistrationPaidEvent) {
	lg := r.logger.With().Str("session_id", s.ID).Uint64("user_id", ev.UserID).Logger()
	if r.audit != nil {
		detail, _ := json.Marshal(map[string]any{
			"kind":          ev.Kind,
			"amount_cents":  ev.AmountCents,
			"registrations": len(ev.Registrations),
		})
		err := r.audit.Record(ctx, model.AuditLog{
			Action:   "payment.reconciled",
			Entity:   "checkout_session",
			EntityID: s.ID,
			Detail:   string(detail),
		})
		if err != nil {
			lg.Error().Err(err).Msg("Failed to write audit log")
		}
	}
	if r.customers != nil && s.CustomerID != "" {
		if err := r.customers.SetStripeCustomerID(ctx, ev.UserID, s.CustomerID); err != nil {
			lg.Error().Err(err).Msg("Failed to link Stripe customer")
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishRegistrationPaid(ctx, ev); err != nil {
			lg.Warn().Err(err).Msg("Failed to publish registration.paid")
		}
	}
	lg.Info().Str("kind", ev.Kind).Int64("amount_cents", ev.AmountCents).Int("registrations", len(ev.Registrations)).Msg("Checkout reconciled")
}

func line(reg model.Registration, student, label string) queue.RegistrationLine {
	return queue.RegistrationLine{
		RegistrationID:  reg.ID,
		StudentName:     student,
		WeekID:          reg.WeekID,
		WeekLabel:       label,
		PaymentType:     reg.PaymentType,
		Status:          reg.Status,
		AmountPaidCents: reg.AmountPaidCents,
		BalanceDueCents: reg.BalanceDueCents,
	}
}

// SplitName splits "Sam Lee Doe" into ("Sam", "Lee Doe").
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
