package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/acappella-workshop/internal/kv"
	"github.com/iliyamo/acappella-workshop/internal/model"
)

var (
	lexWk1 = WeekInfo{Label: "Lexington wk1", PriceCents: 50000, DepositCents: 15000}
	lexWk2 = WeekInfo{Label: "Lexington wk2", PriceCents: 50000, DepositCents: 15000}
	nwWk1  = WeekInfo{Label: "Newton wk1", PriceCents: 52500, DepositCents: 15000}
)

func TestAdd_RejectsOtherLocation(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex"))

	err := c.Add(ctx, "nw-wk1", model.PaymentTypeFull, nwWk1, "nw")
	require.ErrorIs(t, err, ErrLocationMismatch)

	items, err := c.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "lex-wk1", items[0].WeekID)
}

func TestAdd_SameWeekTwice(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex"))
	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex"))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = c.Add(ctx, "lex-wk1", model.PaymentTypeDeposit, lexWk1, "lex")
	assert.ErrorIs(t, err, ErrAlreadyInCart)
}

func TestAdd_InvalidPaymentType(t *testing.T) {
	c := New(kv.NewMemory())
	err := c.Add(context.Background(), "lex-wk1", "installments", lexWk1, "lex")
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestTotals_WithShopPromo(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex"))
	require.NoError(t, c.SetPromoCode(ctx, "shop"))

	s, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SHOP", s.PromoCode)
	assert.Equal(t, int64(50000), s.Quote.SubtotalCents)
	assert.Equal(t, int64(10000), s.Quote.DiscountCents)
	assert.Equal(t, int64(40000), s.Quote.TotalCents)
}

func TestDepositUsesDepositPrice(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeDeposit, lexWk1, "lex"))
	require.NoError(t, c.Add(ctx, "lex-wk2", model.PaymentTypeFull, lexWk2, "lex"))

	total, err := c.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(65000), total)
}

func TestSetPromoCode_UnknownLeavesCartUnchanged(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex"))

	assert.ErrorIs(t, c.SetPromoCode(ctx, "BOGUS"), ErrUnknownPromo)
	code, err := c.PromoCode(ctx)
	require.NoError(t, err)
	assert.Empty(t, code)
	total, _ := c.Total(ctx)
	assert.Equal(t, int64(50000), total)
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex"))
	require.NoError(t, c.Add(ctx, "lex-wk2", model.PaymentTypeFull, lexWk2, "lex"))
	require.NoError(t, c.SetPromoCode(ctx, "SHOP"))

	require.NoError(t, c.Remove(ctx, "lex-wk1"))
	require.NoError(t, c.Remove(ctx, "missing"))
	items, _ := c.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "lex-wk2", items[0].WeekID)

	require.NoError(t, c.Clear(ctx))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	code, _ := c.PromoCode(ctx)
	assert.Empty(t, code)

	// an emptied cart accepts any location again
	require.NoError(t, c.Add(ctx, "nw-wk1", model.PaymentTypeFull, nwWk1, "nw"))
}

func TestOnChange_FiresOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	calls := 0
	c.OnChange(func() { calls++ })

	require.NoError(t, c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex"))
	_ = c.Add(ctx, "nw-wk1", model.PaymentTypeFull, nwWk1, "nw")
	_ = c.SetPromoCode(ctx, "BOGUS")
	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, 2, calls)
}

func TestLegacyArrayIsMigrated(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	legacy := `[{"weekId":"lex-wk1","label":"L1","unitPriceCents":50000,"paymentType":"full","location":"lex"}]`
	require.NoError(t, store.Set(ctx, Namespace, []byte(legacy)))

	c := New(store)
	items, err := c.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, c.Add(ctx, "lex-wk2", model.PaymentTypeFull, lexWk2, "lex"))
	raw, err := store.Get(ctx, Namespace)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"v":1`)
}

func TestUnknownVersionIsRefused(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, Namespace, []byte(`{"v":7,"items":[]}`)))

	c := New(store)
	_, err := c.Items(ctx)
	assert.ErrorIs(t, err, ErrSchemaVersion)
	err = c.Add(ctx, "lex-wk1", model.PaymentTypeFull, lexWk1, "lex")
	assert.ErrorIs(t, err, ErrSchemaVersion)

	raw, _ := store.Get(ctx, Namespace)
	assert.JSONEq(t, `{"v":7,"items":[]}`, string(raw))
}

func TestEmptyCart(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory())
	s, err := c.State(ctx)
	require.NoError(t, err)
	assert.NotNil(t, s.Items)
	assert.Zero(t, s.Quote.TotalCents)
}
