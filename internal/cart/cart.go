// Package cart is the shopper's in-progress selection of camp weeks.
// The cart lives in a kv.Store under a fixed key and survives restarts
// of whatever process holds it (the campctl client or, for the web
// API, a Redis-backed store keyed by visitor).
package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/iliyamo/acappella-workshop/internal/kv"
	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/pricing"
)

// Namespace is the key the cart document is stored under.
const Namespace = "acw_cart"

// SchemaVersion is the version written by this package.
const SchemaVersion = 1

var (
	// ErrLocationMismatch is returned when adding a week from another
	// location than the items already in the cart.
	ErrLocationMismatch = errors.New("location_mismatch")
	// ErrAlreadyInCart is returned when the week is present with a
	// different payment type.
	ErrAlreadyInCart = errors.New("already_in_cart")
	// ErrUnknownPromo is returned for codes missing from the promo table.
	ErrUnknownPromo = errors.New("unknown_promo")
	// ErrInvalidItem is returned for malformed add requests.
	ErrInvalidItem = errors.New("invalid_item")
	// ErrSchemaVersion is returned when the stored document was written
	// by an unknown version.
	ErrSchemaVersion = errors.New("cart: unsupported schema version")
)

// WeekInfo is the display data a caller passes when adding a week.
type WeekInfo struct {
	Label        string `json:"label"`
	PriceCents   int64  `json:"price_cents"`
	DepositCents int64  `json:"deposit_cents"`
}

// WeekInfoOf builds WeekInfo from a stored week.
func WeekInfoOf(w model.Week) WeekInfo {
	return WeekInfo{Label: w.Label, PriceCents: w.PriceCents, DepositCents: w.DepositCents}
}

// Item is one selected week.  UnitPriceCents is what the checkout will
// charge for it before promo discounts: the full price or the deposit.
type Item struct {
	WeekID         string `json:"weekId"`
	Label          string `json:"label"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	PaymentType    string `json:"paymentType"`
	Location       string `json:"location"`
}

// State is a read-only snapshot of the cart.
type State struct {
	Items     []Item        `json:"items"`
	PromoCode string        `json:"promo_code,omitempty"`
	Quote     pricing.Quote `json:"quote"`
}

type document struct {
	V     int    `json:"v"`
	Items []Item `json:"items"`
	Promo string `json:"promo,omitempty"`
}

// Cart reads and mutates the stored document.  Each mutation is a
// read-modify-write under the Cart's mutex; two Carts over the same
// store and key are not synchronized with each other.
type Cart struct {
	store kv.Store
	key   string

	mu        sync.Mutex
	listeners []func()
}

// New returns a Cart stored under Namespace.
func New(store kv.Store) *Cart { return NewWithKey(store, Namespace) }

// NewWithKey returns a Cart stored under key.
func NewWithKey(store kv.Store, key string) *Cart {
	return &Cart{store: store, key: key}
}

// OnChange registers fn to be called after every successful mutation.
func (c *Cart) OnChange(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Cart) notify() {
	c.mu.Lock()
	ls := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

func (c *Cart) load(ctx context.Context) (document, error) {
	b, err := c.store.Get(ctx, c.key)
	if errors.Is(err, kv.ErrNotFound) {
		return document{V: SchemaVersion}, nil
	}
	if err != nil {
		return document{}, err
	}
	return decode(b)
}

// decode parses a stored document.  The unversioned legacy format, a
// bare JSON array of items, is migrated to the current version.
func decode(b []byte) (document, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return document{V: SchemaVersion}, nil
	}
	if b[0] == '[' {
		var items []Item
		if err := json.Unmarshal(b, &items); err != nil {
			return document{}, fmt.Errorf("cart: decode legacy items: %w", err)
		}
		return document{V: SchemaVersion, Items: items}, nil
	}
	var d document
	if err := json.Unmarshal(b, &d); err != nil {
		return document{}, fmt.Errorf("cart: decode: %w", err)
	}
	if d.V != SchemaVersion {
		return document{}, fmt.Errorf("%w: %d", ErrSchemaVersion, d.V)
	}
	return d, nil
}

func (c *Cart) save(ctx context.Context, d document) error {
	d.V = SchemaVersion
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.key, b)
}

// mutate runs fn against the current document and persists the result
// only when fn succeeds.
func (c *Cart) mutate(ctx context.Context, fn func(*document) error) error {
	c.mu.Lock()
	d, err := c.load(ctx)
	if err == nil {
		err = fn(&d)
	}
	if err == nil {
		err = c.save(ctx, d)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// Add puts a week in the cart.  All items must share one location; a
// week can be present with only one payment type at a time.  Adding
// the same week with the same payment type again is a no-op.
func (c *Cart) Add(ctx context.Context, weekID, paymentType string, info WeekInfo, location string) error {
	weekID = strings.TrimSpace(weekID)
	location = strings.TrimSpace(location)
	if weekID == "" || location == "" || !model.ValidPaymentType(paymentType) {
		return ErrInvalidItem
	}
	price := info.PriceCents
	if paymentType == model.PaymentTypeDeposit {
		price = info.DepositCents
	}
	if price < 0 {
		return ErrInvalidItem
	}
	return c.mutate(ctx, func(d *document) error {
		for _, it := range d.Items {
			if it.Location != location {
				return ErrLocationMismatch
			}
		}
		for _, it := range d.Items {
			if it.WeekID != weekID {
				continue
			}
			if it.PaymentType != paymentType {
				return ErrAlreadyInCart
			}
			return nil
		}
		d.Items = append(d.Items, Item{
			WeekID:         weekID,
			Label:          info.Label,
			UnitPriceCents: price,
			PaymentType:    paymentType,
			Location:       location,
		})
		return nil
	})
}

// Remove drops a week.  Removing an absent week is not an error.
func (c *Cart) Remove(ctx context.Context, weekID string) error {
	return c.mutate(ctx, func(d *document) error {
		kept := d.Items[:0]
		for _, it := range d.Items {
			if it.WeekID != weekID {
				kept = append(kept, it)
			}
		}
		d.Items = kept
		return nil
	})
}

// Clear empties the cart and drops the promo code.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	err := c.store.Delete(ctx, c.key)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// SetPromoCode applies code.  Unknown codes leave the cart unchanged.
func (c *Cart) SetPromoCode(ctx context.Context, code string) error {
	p, ok := pricing.Lookup(code)
	if !ok {
		return ErrUnknownPromo
	}
	return c.mutate(ctx, func(d *document) error {
		d.Promo = p.Code
		return nil
	})
}

// RemovePromoCode drops the promo code.
func (c *Cart) RemovePromoCode(ctx context.Context) error {
	return c.mutate(ctx, func(d *document) error {
		d.Promo = ""
		return nil
	})
}

// Items returns the selected weeks in insertion order.
func (c *Cart) Items(ctx context.Context) ([]Item, error) {
	s, err := c.State(ctx)
	return s.Items, err
}

// Count returns the number of items.
func (c *Cart) Count(ctx context.Context) (int, error) {
	items, err := c.Items(ctx)
	return len(items), err
}

// PromoCode returns the applied code, or "".
func (c *Cart) PromoCode(ctx context.Context) (string, error) {
	s, err := c.State(ctx)
	return s.PromoCode, err
}

// Subtotal is the sum of item prices.
func (c *Cart) Subtotal(ctx context.Context) (int64, error) {
	s, err := c.State(ctx)
	return s.Quote.SubtotalCents, err
}

// Discount is what the applied promo takes off the subtotal.
func (c *Cart) Discount(ctx context.Context) (int64, error) {
	s, err := c.State(ctx)
	return s.Quote.DiscountCents, err
}

// Total is Subtotal minus Discount; never negative.
func (c *Cart) Total(ctx context.Context) (int64, error) {
	s, err := c.State(ctx)
	return s.Quote.TotalCents, err
}

// State loads a consistent snapshot of items, promo and quote.  A
// stored promo code that is no longer in the table is ignored.
func (c *Cart) State(ctx context.Context) (State, error) {
	c.mu.Lock()
	d, err := c.load(ctx)
	c.mu.Unlock()
	if err != nil {
		return State{Items: []Item{}}, err
	}
	items := d.Items
	if items == nil {
		items = []Item{}
	}
	amounts := make([]int64, 0, len(items))
	for _, it := range items {
		amounts = append(amounts, it.UnitPriceCents)
	}
	var policy *pricing.Policy
	promo := ""
	if p, ok := pricing.Lookup(d.Promo); ok {
		policy = &p
		promo = p.Code
	}
	return State{Items: items, PromoCode: promo, Quote: pricing.QuoteFor(amounts, policy)}, nil
}
