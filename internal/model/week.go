package model

// Location tags.  Week ids are prefixed with the tag, e.g. "lex-wk1".
const (
	LocationLexington       = "lex"
	LocationNewtonWellesley = "nw"
	LocationBoston          = "bos"
)

// Week is a fixed camp session.  Weeks are reference data seeded at
// start-up and never edited through the API.
//
// Fields:
//  ID           – stable string id, e.g. "lex-wk1".
//  Location     – location tag (lex, nw, bos).
//  Label        – human readable date range.
//  StartsOn     – first day of the week, YYYY-MM-DD.
//  PriceCents   – full price of the week.
//  DepositCents – amount charged for a deposit-type registration.
//  Capacity     – maximum number of students.
type Week struct {
	ID           string `json:"id"`
	Location     string `json:"location"`
	Label        string `json:"label"`
	StartsOn     string `json:"starts_on"`
	PriceCents   int64  `json:"price_cents"`
	DepositCents int64  `json:"deposit_cents"`
	Capacity     int    `json:"capacity"`
}

// ChargeCents returns what a checkout charges for this week given the
// payment type, before any promo discount.
func (w Week) ChargeCents(paymentType string) int64 {
	if paymentType == PaymentTypeDeposit {
		return w.DepositCents
	}
	return w.PriceCents
}

// Seed is the reference set of weeks inserted on start-up.
var Seed = []Week{
	{ID: "lex-wk1", Location: LocationLexington, Label: "Lexington · June 22–26", StartsOn: "2026-06-22", PriceCents: 50000, DepositCents: 15000, Capacity: 40},
	{ID: "lex-wk2", Location: LocationLexington, Label: "Lexington · July 6–10", StartsOn: "2026-07-06", PriceCents: 50000, DepositCents: 15000, Capacity: 40},
	{ID: "lex-wk3", Location: LocationLexington, Label: "Lexington · July 20–24", StartsOn: "2026-07-20", PriceCents: 50000, DepositCents: 15000, Capacity: 40},
	{ID: "nw-wk1", Location: LocationNewtonWellesley, Label: "Newton-Wellesley · June 29–July 3", StartsOn: "2026-06-29", PriceCents: 52500, DepositCents: 15000, Capacity: 36},
	{ID: "nw-wk2", Location: LocationNewtonWellesley, Label: "Newton-Wellesley · July 13–17", StartsOn: "2026-07-13", PriceCents: 52500, DepositCents: 15000, Capacity: 36},
	{ID: "bos-wk1", Location: LocationBoston, Label: "Boston · July 27–31", StartsOn: "2026-07-27", PriceCents: 55000, DepositCents: 20000, Capacity: 30},
	{ID: "bos-wk2", Location: LocationBoston, Label: "Boston · August 3–7", StartsOn: "2026-08-03", PriceCents: 55000, DepositCents: 20000, Capacity: 30},
}
