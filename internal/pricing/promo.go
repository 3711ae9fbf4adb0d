// Package pricing turns cart lines and promo codes into charged amounts.
// Everything here is pure: no I/O, no clocks, integer cents in and out.
package pricing

import (
	"strings"
	"sync"
)

// Policy kinds.
const (
	KindPercent    = "percent"
	KindFixedTotal = "fixed_total"
)

// Policy is the discount a promo code grants.  A percent policy takes
// PercentOff percent off the subtotal; a fixed_total policy replaces
// the whole cart total with FixedTotalCents.
type Policy struct {
	Code            string `json:"code"`
	Kind            string `json:"kind"`
	PercentOff      int64  `json:"percent_off,omitempty"`
	FixedTotalCents int64  `json:"fixed_total_cents,omitempty"`
}

var (
	mu    sync.RWMutex
	table = map[string]Policy{
		"SHOP": {Code: "SHOP", Kind: KindPercent, PercentOff: 20},
	}
)

// Normalize upper-cases and trims a shopper-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Lookup returns the policy for code.  Unknown and empty codes report false.
func Lookup(code string) (Policy, bool) {
	code = Normalize(code)
	if code == "" {
		return Policy{}, false
	}
	mu.RLock()
	defer mu.RUnlock()
	p, ok := table[code]
	return p, ok
}

// RegisterFixedTotal adds a code that collapses any cart to a flat
// total.  It exists for staging smoke tests and is only called when
// PROMO_TEST_OVERRIDE_CODE is configured.
func RegisterFixedTotal(code string, totalCents int64) {
	code = Normalize(code)
	if code == "" || totalCents < 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	table[code] = Policy{Code: code, Kind: KindFixedTotal, FixedTotalCents: totalCents}
}

// unregister removes a code; used by tests.
func unregister(code string) {
	mu.Lock()
	defer mu.Unlock()
	delete(table, Normalize(code))
}
