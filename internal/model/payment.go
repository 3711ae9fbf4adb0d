package model

import "time"

// Payment is one completed charge.  Exactly one row exists per
// processor checkout session; the unique session id makes webhook
// re-deliveries idempotent.
type Payment struct {
	ID                uint64    `json:"id"`
	UserID            uint64    `json:"user_id"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	PaymentIntentID   string    `json:"payment_intent_id"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuditLog is an append-only record of a state change made by an admin
// or by the webhook reconciler.
type AuditLog struct {
	ID          uint64    `json:"id"`
	ActorUserID *uint64   `json:"actor_user_id,omitempty"`
	Action      string    `json:"action"`
	Entity      string    `json:"entity"`
	EntityID    string    `json:"entity_id"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}
