package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const userCols = "id,email,name,password_hash,google_id,role,stripe_customer_id,is_active,created_at,updated_at"

func normEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u                   model.User
		hash, gid, customer sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &hash, &gid, &u.Role, &customer, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.PasswordHash = hash.String
	u.GoogleID = gid.String
	u.StripeCustomerID = customer.String
	return u, err
}

// Create inserts a password user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, name, password, role string, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	return insertUser(ctx, r.DB, normEmail(email), name, hash, "", role)
}

// CreateGoogle inserts a user signing up through Google.
func (r *UserRepo) CreateGoogle(ctx context.Context, email, name, googleID string) (uint64, error) {
	return insertUser(ctx, r.DB, normEmail(email), name, "", googleID, model.RoleParent)
}

// CreatePasswordlessTx inserts a parent created by a guest checkout.
func (r *UserRepo) CreatePasswordlessTx(ctx context.Context, tx *sql.Tx, email, name string) (uint64, error) {
	return insertUser(ctx, tx, normEmail(email), name, "", "", model.RoleParent)
}

func insertUser(ctx context.Context, q querier, email, name, hash, googleID, role string) (uint64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO users (email, name, password_hash, google_id, role) VALUES (?,?,?,?,?)",
		email, name, nullStr(hash), nullStr(googleID), role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", normEmail(email)))
}

// GetByEmailTx is GetByEmail inside tx.
func (r *UserRepo) GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", normEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByIDTx is GetByID inside tx.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByGoogleID fetches a user by linked Google subject.
func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE google_id=? LIMIT 1", googleID))
}

// LinkGoogle attaches a Google subject to an existing account.
func (r *UserRepo) LinkGoogle(ctx context.Context, id uint64, googleID string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET google_id=? WHERE id=?", googleID, id)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// UpdateName changes the display name.
func (r *UserRepo) UpdateName(ctx context.Context, id uint64, name string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET name=? WHERE id=?", strings.TrimSpace(name), id)
	return err
}

// SetStripeCustomerID links a processor customer.  An existing link is kept.
func (r *UserRepo) SetStripeCustomerID(ctx context.Context, id uint64, customerID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET stripe_customer_id=? WHERE id=? AND stripe_customer_id IS NULL",
		customerID, id)
	return err
}

// EnsureAdmin creates the admin account or promotes and re-keys an
// existing one with the same email.
func (r *UserRepo) EnsureAdmin(ctx context.Context, email, password string, cost int) (uint64, error) {
	email = normEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	u, err := r.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return insertUser(ctx, r.DB, email, "Administrator", hash, "", model.RoleAdmin)
	case err != nil:
		return 0, err
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, password_hash=?, is_active=1 WHERE id=?",
		model.RoleAdmin, hash, u.ID)
	return u.ID, err
}
