package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/acappella-workshop/internal/cart"
	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/kv"
	"github.com/iliyamo/acappella-workshop/internal/model"
)

func TestVisitorIDIsStable(t *testing.T) {
	ctx := context.Background()
	s := kv.NewFile(filepath.Join(t.TempDir(), "state.json"))
	first, err := loadVisitorID(ctx, s)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	again, err := loadVisitorID(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$500.00", money(50000))
	assert.Equal(t, "$0.05", money(5))
}

func testApp(t *testing.T, api string) *app {
	a := &app{apiURL: api, statePath: filepath.Join(t.TempDir(), "state.json")}
	require.NoError(t, a.open(context.Background()))
	return a
}

func TestCheckoutRequestFromCart(t *testing.T) {
	ctx := context.Background()
	a := testApp(t, "http://unused")
	w := model.Seed[0]
	require.NoError(t, a.cart.Add(ctx, w.ID, model.PaymentTypeDeposit, cart.WeekInfoOf(w), w.Location))

	req, err := checkoutRequest(ctx, a, checkout.Contact{ParentName: "Pat Doe", Email: "pat@example.com", ChildName: " Sam Doe "})
	require.NoError(t, err)
	require.Len(t, req.Items, 1)
	assert.Equal(t, w.ID, req.Items[0].WeekID)
	assert.Equal(t, model.PaymentTypeDeposit, req.Items[0].PaymentType)
	assert.Equal(t, "Sam Doe", req.Items[0].StudentName)
	assert.True(t, req.FormSubmitted)

	require.NoError(t, a.cart.Clear(ctx))
	_, err = checkoutRequest(ctx, a, checkout.Contact{})
	assert.EqualError(t, err, "cart is empty")
}

func TestWatchClearsCartWhenPaid(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "10ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "5")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"paid"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	a := testApp(t, srv.URL)
	w := model.Seed[0]
	require.NoError(t, a.cart.Add(ctx, w.ID, model.PaymentTypeFull, cart.WeekInfoOf(w), w.Location))

	var out bytes.Buffer
	require.NoError(t, watch(ctx, a, "cs_1", strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "payment received")
	n, err := a.cart.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWatchExpired(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "10ms")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"expired"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := watch(context.Background(), testApp(t, srv.URL), "cs_2", strings.NewReader(""), &out)
	assert.EqualError(t, err, "checkout incomplete")
	assert.Contains(t, out.String(), "expired")
}
