package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/acappella-workshop/internal/model"
)

// WeekRepo reads the camp week reference data.
type WeekRepo struct {
	db *sql.DB
}

// NewWeekRepo returns a new WeekRepo bound to the given database.
func NewWeekRepo(db *sql.DB) *WeekRepo { return &WeekRepo{db: db} }

const weekCols = "id, location, label, DATE_FORMAT(starts_on, '%Y-%m-%d'), price_cents, deposit_cents, capacity"

func scanWeek(sc interface{ Scan(...any) error }) (model.Week, error) {
	var w model.Week
	err := sc.Scan(&w.ID, &w.Location, &w.Label, &w.StartsOn, &w.PriceCents, &w.DepositCents, &w.Capacity)
	return w, err
}

// Seed upserts the given weeks.  Prices and labels of existing rows are
// refreshed so a redeploy with new prices takes effect.
func (r *WeekRepo) Seed(ctx context.Context, weeks []model.Week) error {
	const q = `INSERT INTO weeks (id, location, label, starts_on, price_cents, deposit_cents, capacity)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE location = VALUES(location), label = VALUES(label), starts_on = VALUES(starts_on),
  price_cents = VALUES(price_cents), deposit_cents = VALUES(deposit_cents), capacity = VALUES(capacity)`
	for _, w := range weeks {
		if _, err := r.db.ExecContext(ctx, q, w.ID, w.Location, w.Label, w.StartsOn, w.PriceCents, w.DepositCents, w.Capacity); err != nil {
			return err
		}
	}
	return nil
}

// List returns all weeks, optionally filtered by location, in date order.
func (r *WeekRepo) List(ctx context.Context, location string) ([]model.Week, error) {
	q := "SELECT " + weekCols + " FROM weeks"
	var args []any
	if location != "" {
		q += " WHERE location = ?"
		args = append(args, location)
	}
	q += " ORDER BY starts_on, id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Week{}
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetByID returns one week or sql.ErrNoRows.
func (r *WeekRepo) GetByID(ctx context.Context, id string) (model.Week, error) {
	return scanWeek(r.db.QueryRowContext(ctx, "SELECT "+weekCols+" FROM weeks WHERE id = ?", id))
}

// GetByIDTx is GetByID inside tx.
func (r *WeekRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (model.Week, error) {
	return scanWeek(tx.QueryRowContext(ctx, "SELECT "+weekCols+" FROM weeks WHERE id = ?", id))
}
