package model

import "time"

// Registration statuses.
const (
	StatusPending     = "pending"
	StatusDepositPaid = "deposit_paid"
	StatusPaid        = "paid"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
)

// Payment types.
const (
	PaymentTypeFull    = "full"
	PaymentTypeDeposit = "deposit"
)

// ValidStatus reports whether s is a known registration status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusDepositPaid, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// ValidPaymentType reports whether p is full or deposit.
func ValidPaymentType(p string) bool {
	return p == PaymentTypeFull || p == PaymentTypeDeposit
}

// Registration records a student's enrollment in a week.  For deposit
// registrations AmountPaidCents + BalanceDueCents equals the week's
// full price; for full payments BalanceDueCents is zero.
//
// Fields:
//  ID                – primary key identifier.
//  UserID            – parent who paid.
//  StudentID         – enrolled student.
//  WeekID            – camp week.
//  Status            – pending, deposit_paid, paid, cancelled, refunded.
//  PaymentType       – full or deposit.
//  AmountPaidCents   – sum actually charged for this registration.
//  BalanceDueCents   – remaining amount owed.
//  PromoCode         – promo applied at checkout, if any.
//  CheckoutSessionID – processor session that created the registration.
//  PaymentIntentID   – processor payment intent of that session.
type Registration struct {
	ID                uint64    `json:"id"`
	UserID            uint64    `json:"user_id"`
	StudentID         uint64    `json:"student_id"`
	WeekID            string    `json:"week_id"`
	Status            string    `json:"status"`
	PaymentType       string    `json:"payment_type"`
	AmountPaidCents   int64     `json:"amount_paid_cents"`
	BalanceDueCents   int64     `json:"balance_due_cents"`
	PromoCode         string    `json:"promo_code,omitempty"`
	CheckoutSessionID string    `json:"checkout_session_id,omitempty"`
	PaymentIntentID   string    `json:"payment_intent_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RegistrationDetail is a registration joined with its student and week
// for list views.
type RegistrationDetail struct {
	Registration
	StudentName string `json:"student_name"`
	WeekLabel   string `json:"week_label"`
	Location    string `json:"location"`
}
