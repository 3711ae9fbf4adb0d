package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/acappella-workshop/internal/model"
)

// PaymentRepo stores one row per paid checkout session.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// ExistsForSessionTx reports whether the session was already recorded.
func (r *PaymentRepo) ExistsForSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM payments WHERE checkout_session_id = ? LIMIT 1", sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CreateTx inserts p.  A second payment for the same session fails
// with ErrConflict on the unique index.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO payments (user_id, amount_cents, currency, checkout_session_id, payment_intent_id, status) VALUES (?, ?, ?, ?, ?, ?)",
		p.UserID, p.AmountCents, p.Currency, p.CheckoutSessionID, nullStr(p.PaymentIntentID), p.Status)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// ListByUser returns a parent's payments, newest first.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount_cents, currency, checkout_session_id, payment_intent_id, status, created_at
 FROM payments WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		var (
			p  model.Payment
			pi sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.AmountCents, &p.Currency, &p.CheckoutSessionID, &pi, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.PaymentIntentID = pi.String
		out = append(out, p)
	}
	return out, rows.Err()
}
