// Package queue defines message payloads exchanged over the message broker.
package queue

// RegistrationPaidQueue is the durable queue paid checkouts are announced on.
const RegistrationPaidQueue = "registration.paid"

// RegistrationDeadQueue holds events the consumer gave up on, kept for
// manual replay.
const RegistrationDeadQueue = "registration.paid.dead"

// RegistrationPaidEvent is published after the webhook reconciler commits
// a paid checkout.  It carries everything the confirmation email needs
// so the consumer never queries the primary database.
type RegistrationPaidEvent struct {
	SessionID     string             `json:"session_id"`
	Kind          string             `json:"kind"`           // cart, registration or balance
	UserID        uint64             `json:"user_id"`
	Email         string             `json:"email"`
	ParentName    string             `json:"parent_name"`
	AmountCents   int64              `json:"amount_cents"`
	Currency      string             `json:"currency"`
	PromoCode     string             `json:"promo_code,omitempty"`
	Registrations []RegistrationLine `json:"registrations"`
	PaidAt        string             `json:"paid_at"` // RFC3339, UTC
}

// RegistrationLine summarises one registration touched by the payment.
type RegistrationLine struct {
	RegistrationID  uint64 `json:"registration_id"`
	StudentName     string `json:"student_name"`
	WeekID          string `json:"week_id"`
	WeekLabel       string `json:"week_label"`
	PaymentType     string `json:"payment_type"`
	Status          string `json:"status"`
	AmountPaidCents int64  `json:"amount_paid_cents"`
	BalanceDueCents int64  `json:"balance_due_cents"`
}
