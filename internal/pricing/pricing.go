package pricing

import (
	"github.com/shopspring/decimal"
)

// Quote is the breakdown shown to the shopper.
type Quote struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// Discount returns the discount policy p grants on subtotal.  Percent
// discounts round half-up to the cent.  The result never exceeds the
// subtotal, so totals are never negative.
func Discount(subtotal int64, p *Policy) int64 {
	if p == nil || subtotal <= 0 {
		return 0
	}
	var d int64
	switch p.Kind {
	case KindPercent:
		d = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(p.PercentOff)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case KindFixedTotal:
		d = subtotal - p.FixedTotalCents
	}
	if d < 0 {
		d = 0
	}
	if d > subtotal {
		d = subtotal
	}
	return d
}

// QuoteFor sums amounts and applies p.
func QuoteFor(amounts []int64, p *Policy) Quote {
	var sub int64
	for _, a := range amounts {
		if a > 0 {
			sub += a
		}
	}
	d := Discount(sub, p)
	return Quote{SubtotalCents: sub, DiscountCents: d, TotalCents: sub - d}
}

// Allocate splits total across parts in proportion to weights.  Each
// share is floored and the remainder lands on the last part with a
// positive weight, so the shares always sum to total.  When every
// weight is zero the total is split evenly.
func Allocate(total int64, weights []int64) []int64 {
	out := make([]int64, len(weights))
	if len(weights) == 0 || total <= 0 {
		return out
	}
	var sum int64
	last := -1
	for i, w := range weights {
		if w > 0 {
			sum += w
			last = i
		}
	}
	if sum == 0 {
		each := total / int64(len(weights))
		for i := range out {
			out[i] = each
		}
		out[len(out)-1] += total - each*int64(len(weights))
		return out
	}
	t := decimal.NewFromInt(total)
	s := decimal.NewFromInt(sum)
	var given int64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		share := t.Mul(decimal.NewFromInt(w)).Div(s).Floor().IntPart()
		out[i] = share
		given += share
	}
	out[last] += total - given
	return out
}
