// Package apiclient is the HTTP client campctl uses to talk to the
// registration API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/model"
)

// APIError is a non-2xx answer.  Code is the "error" field of the body.
type APIError struct {
	Status  int
	Code    string
	Field   string
	Message string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api: %d %s", e.Status, e.Code)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Client calls the API on behalf of one visitor and, optionally, one
// signed-in user.
type Client struct {
	BaseURL   string
	VisitorID string
	Token     string // bearer access token; empty for guests
	HTTP      *http.Client
}

// New returns a Client with a 15s timeout.
func New(baseURL, visitorID string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		VisitorID: visitorID,
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.VisitorID != "" {
		req.Header.Set("X-Visitor-ID", c.VisitorID)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Field   string `json:"field"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		return &APIError{Status: res.StatusCode, Code: e.Error, Field: e.Field, Message: e.Message}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Weeks lists the catalogue, optionally for one location.
func (c *Client) Weeks(ctx context.Context, location string) ([]model.Week, error) {
	path := "/api/weeks"
	if location != "" {
		path += "?location=" + url.QueryEscape(location)
	}
	var out []model.Week
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Week loads one week.
func (c *Client) Week(ctx context.Context, id string) (model.Week, error) {
	var w model.Week
	return w, c.do(ctx, http.MethodGet, "/api/weeks/"+url.PathEscape(id), nil, &w)
}

// CheckoutRequest is the body of the checkout endpoints.
type CheckoutRequest struct {
	Items         []checkout.Item  `json:"items"`
	PromoCode     string           `json:"promoCode,omitempty"`
	Contact       checkout.Contact `json:"contact"`
	FormSubmitted bool             `json:"formSubmitted,omitempty"`
}

// CreateSession starts a guest (or optionally signed-in) checkout.
func (c *Client) CreateSession(ctx context.Context, req CheckoutRequest) (checkout.Result, error) {
	var out checkout.Result
	return out, c.do(ctx, http.MethodPost, "/api/create-checkout-session", req, &out)
}

// Checkout starts the signed-in cart checkout.
func (c *Client) Checkout(ctx context.Context, req CheckoutRequest) (checkout.Result, error) {
	var out checkout.Result
	return out, c.do(ctx, http.MethodPost, "/api/checkout", req, &out)
}

// Status returns paid, pending or expired for a session.  It satisfies
// the poller's Checker.
func (c *Client) Status(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/payment-status/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Visit records the visitor for today's unique visit count.
func (c *Client) Visit(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/visit", nil, nil)
}
