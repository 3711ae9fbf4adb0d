package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/poller"
)

func TestStatusSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payment-status/cs_1", r.URL.Path)
		assert.Equal(t, "v-1", r.Header.Get("X-Visitor-ID"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"paid"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "v-1")
	c.Token = "tok"
	var chk poller.Checker = c
	s, err := chk.Status(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "paid", s)
}

func TestCreateSessionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body CheckoutRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Items, 1) {
			assert.Equal(t, "lex-wk1", body.Items[0].WeekID)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"validation_failed","field":"email","message":"must be a valid email"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "v").CreateSession(context.Background(), CheckoutRequest{
		Items: []checkout.Item{{WeekID: "lex-wk1", PaymentType: "full"}},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_failed", apiErr.Code)
	assert.Equal(t, "email", apiErr.Field)
}

func TestCreateSessionOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cs_2","url":"https://pay/cs_2","quote":{"subtotal_cents":50000,"discount_cents":0,"total_cents":50000}}`))
	}))
	defer srv.Close()
	res, err := New(srv.URL, "v").CreateSession(context.Background(), CheckoutRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cs_2", res.SessionID)
	assert.Equal(t, int64(50000), res.Quote.TotalCents)
}
