package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/acappella-workshop/internal/model"
)

// RegistrationRepo stores enrollments of students in weeks.  Rows are
// written by the webhook reconciler (inside its transaction) and by
// admins; parents only read their own.
type RegistrationRepo struct {
	db *sql.DB
}

// NewRegistrationRepo returns a new RegistrationRepo bound to the given database.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

const regCols = `r.id, r.user_id, r.student_id, r.week_id, r.status, r.payment_type, r.amount_paid_cents,
 r.balance_due_cents, r.promo_code, r.checkout_session_id, r.payment_intent_id, r.created_at, r.updated_at`

const detailFrom = ` FROM registrations r
 JOIN students s ON s.id = r.student_id
 JOIN weeks w ON w.id = r.week_id`

func scanReg(sc interface{ Scan(...any) error }, extra ...any) (model.Registration, error) {
	var (
		reg                   model.Registration
		promo, session, intent sql.NullString
	)
	dest := []any{&reg.ID, &reg.UserID, &reg.StudentID, &reg.WeekID, &reg.Status, &reg.PaymentType,
		&reg.AmountPaidCents, &reg.BalanceDueCents, &promo, &session, &intent, &reg.CreatedAt, &reg.UpdatedAt}
	err := sc.Scan(append(dest, extra...)...)
	reg.PromoCode = promo.String
	reg.CheckoutSessionID = session.String
	reg.PaymentIntentID = intent.String
	return reg, err
}

func scanDetails(rows *sql.Rows) ([]model.RegistrationDetail, error) {
	defer rows.Close()
	out := []model.RegistrationDetail{}
	for rows.Next() {
		var (
			d           model.RegistrationDetail
			first, last string
		)
		reg, err := scanReg(rows, &first, &last, &d.WeekLabel, &d.Location)
		if err != nil {
			return nil, err
		}
		d.Registration = reg
		d.StudentName = model.Student{FirstName: first, LastName: last}.FullName()
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create inserts a registration and fills its ID.
func (r *RegistrationRepo) Create(ctx context.Context, reg *model.Registration) error {
	return insertRegistration(ctx, r.db, reg)
}

// CreateTx is Create inside tx.
func (r *RegistrationRepo) CreateTx(ctx context.Context, tx *sql.Tx, reg *model.Registration) error {
	return insertRegistration(ctx, tx, reg)
}

func insertRegistration(ctx context.Context, q querier, reg *model.Registration) error {
	res, err := q.ExecContext(ctx, `INSERT INTO registrations
 (user_id, student_id, week_id, status, payment_type, amount_paid_cents, balance_due_cents, promo_code, checkout_session_id, payment_intent_id)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.UserID, reg.StudentID, reg.WeekID, reg.Status, reg.PaymentType, reg.AmountPaidCents, reg.BalanceDueCents,
		nullStr(reg.PromoCode), nullStr(reg.CheckoutSessionID), nullStr(reg.PaymentIntentID))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	reg.ID = uint64(id)
	return nil
}

// GetByID returns one registration or sql.ErrNoRows.
func (r *RegistrationRepo) GetByID(ctx context.Context, id uint64) (model.Registration, error) {
	return scanReg(r.db.QueryRowContext(ctx, "SELECT "+regCols+" FROM registrations r WHERE r.id = ?", id))
}

// GetForUser loads a registration owned by userID, or ErrForbidden.
func (r *RegistrationRepo) GetForUser(ctx context.Context, id, userID uint64) (model.Registration, error) {
	reg, err := r.GetByID(ctx, id)
	if err != nil {
		return reg, err
	}
	if reg.UserID != userID {
		return model.Registration{}, ErrForbidden
	}
	return reg, nil
}

// GetForUpdateTx locks a registration row for the rest of tx.
func (r *RegistrationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Registration, error) {
	return scanReg(tx.QueryRowContext(ctx, "SELECT "+regCols+" FROM registrations r WHERE r.id = ? FOR UPDATE", id))
}

// UpdatePaymentTx writes the money fields and status of reg.
func (r *RegistrationRepo) UpdatePaymentTx(ctx context.Context, tx *sql.Tx, reg *model.Registration) error {
	return updatePayment(ctx, tx, reg)
}

// UpdatePayment is UpdatePaymentTx outside a transaction (admin edits).
func (r *RegistrationRepo) UpdatePayment(ctx context.Context, reg *model.Registration) error {
	return updatePayment(ctx, r.db, reg)
}

func updatePayment(ctx context.Context, q querier, reg *model.Registration) error {
	res, err := q.ExecContext(ctx,
		"UPDATE registrations SET status = ?, amount_paid_cents = ?, balance_due_cents = ?, payment_intent_id = ? WHERE id = ?",
		reg.Status, reg.AmountPaidCents, reg.BalanceDueCents, nullStr(reg.PaymentIntentID), reg.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 for unchanged rows too; confirm existence
		var one int
		return q.QueryRowContext(ctx, "SELECT 1 FROM registrations WHERE id = ?", reg.ID).Scan(&one)
	}
	return nil
}

// ListByUser returns a parent's registrations, newest first.
func (r *RegistrationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.RegistrationDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+regCols+", s.first_name, s.last_name, w.label, w.location"+detailFrom+
			" WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC", userID)
	if err != nil {
		return nil, err
	}
	return scanDetails(rows)
}

// ListAll returns every registration ordered by week start, for the
// admin overview.
func (r *RegistrationRepo) ListAll(ctx context.Context) ([]model.RegistrationDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+regCols+", s.first_name, s.last_name, w.label, w.location"+detailFrom+
			" ORDER BY w.starts_on, w.id, s.last_name, s.first_name")
	if err != nil {
		return nil, err
	}
	return scanDetails(rows)
}

// Roster returns the active (not cancelled or refunded) registrations
// of a week ordered by student name.
func (r *RegistrationRepo) Roster(ctx context.Context, weekID string) ([]model.RegistrationDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+regCols+", s.first_name, s.last_name, w.label, w.location"+detailFrom+
			" WHERE r.week_id = ? AND r.status NOT IN ('cancelled','refunded') ORDER BY s.last_name, s.first_name", weekID)
	if err != nil {
		return nil, err
	}
	return scanDetails(rows)
}

// CountActiveForWeek counts seats taken in a week.
func (r *RegistrationRepo) CountActiveForWeek(ctx context.Context, weekID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM registrations WHERE week_id = ? AND status NOT IN ('cancelled','refunded')", weekID).Scan(&n)
	return n, err
}
