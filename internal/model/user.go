package model

import "time"

// Role names stored in users.role.  A parent (or guardian) owns students
// and registrations; an admin sees every registration and roster.
const (
	RoleParent = "PARENT"
	RoleAdmin  = "ADMIN"
)

// User represents an account holder as stored in the `users` table.
// A user signs up either with a password or through Google; both
// paths share the unique email column so that a Google login with a
// known email links onto the existing account instead of creating a
// second one.  Users created by the payment webhook for guest
// checkouts have neither a password nor a Google id until they claim
// the account.
//
// Fields:
//  ID               – primary key identifier of the user.
//  Email            – unique, lower-cased email address.
//  Name             – display name of the parent/guardian.
//  PasswordHash     – bcrypt hash; empty for OAuth-only or guest users.
//  GoogleID         – Google subject id when linked.
//  Role             – PARENT or ADMIN.
//  StripeCustomerID – linked payment-processor customer id.
//  IsActive         – whether the account is active.
//  CreatedAt        – timestamp of creation.
//  UpdatedAt        – timestamp of last update.
type User struct {
	ID               uint64    // users.id
	Email            string    // users.email
	Name             string    // users.name
	PasswordHash     string    // users.password_hash (nullable)
	GoogleID         string    // users.google_id (nullable)
	Role             string    // users.role
	StripeCustomerID string    // users.stripe_customer_id (nullable)
	IsActive         bool      // users.is_active
	CreatedAt        time.Time // users.created_at
	UpdatedAt        time.Time // users.updated_at
}

// HasPassword reports whether the user can log in with a password.
func (u User) HasPassword() bool { return u.PasswordHash != "" }

// RefreshToken models an entry in the `refresh_tokens` table.  The
// table is the durable session store: each row is one signed-in
// device.  The plain token is not stored; only its SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
