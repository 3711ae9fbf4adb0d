package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/kv"
	"github.com/iliyamo/acappella-workshop/internal/middleware"
	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/reconcile"
	"github.com/iliyamo/acappella-workshop/internal/repository"
)

type seedWeeks struct{}

func (seedWeeks) GetByID(_ context.Context, id string) (model.Week, error) {
	for _, w := range model.Seed {
		if w.ID == id {
			return w, nil
		}
	}
	return model.Week{}, sql.ErrNoRows
}

func (seedWeeks) List(_ context.Context, location string) ([]model.Week, error) {
	out := []model.Week{}
	for _, w := range model.Seed {
		if location == "" || w.Location == location {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeProcessor struct {
	calls   []checkout.SessionParams
	err     error
	session *checkout.Session
}

func (f *fakeProcessor) CreateSession(_ context.Context, p checkout.SessionParams) (*checkout.Session, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.Session{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil
}

func (f *fakeProcessor) GetSession(_ context.Context, id string) (*checkout.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeUsers map[uint64]model.User

func (f fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return model.User{}, sql.ErrNoRows
}

type fakeRegs map[uint64]model.Registration

func (f fakeRegs) GetForUser(_ context.Context, id, userID uint64) (model.Registration, error) {
	r, ok := f[id]
	if !ok {
		return r, sql.ErrNoRows
	}
	if r.UserID != userID {
		return model.Registration{}, repository.ErrForbidden
	}
	return r, nil
}

type fakeStudents map[uint64]model.Student

func (f fakeStudents) GetByID(_ context.Context, id uint64) (model.Student, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return model.Student{}, sql.ErrNoRows
}

func newCheckoutHandler(p checkout.Processor, carts kv.Store) *CheckoutHandler {
	in := checkout.NewInitiator(p, seedWeeks{}, nil, "https://site/ok", "https://site/cart", zerolog.Nop())
	users := fakeUsers{7: {ID: 7, Email: "pat@example.com", Name: "Pat Doe", StripeCustomerID: "cus_7"}}
	regs := fakeRegs{
		1: {ID: 1, UserID: 7, StudentID: 3, WeekID: "lex-wk1", PaymentType: "deposit", Status: model.StatusDepositPaid, AmountPaidCents: 15000, BalanceDueCents: 35000},
		2: {ID: 2, UserID: 8, StudentID: 4, WeekID: "lex-wk1", PaymentType: "deposit", Status: model.StatusDepositPaid, BalanceDueCents: 35000},
	}
	students := fakeStudents{3: {ID: 3, UserID: 7, FirstName: "Sam", LastName: "Doe"}}
	return NewCheckoutHandler(in, seedWeeks{}, users, regs, students, carts, zerolog.Nop())
}

// do runs h with a JSON body; uid != 0 marks the request authenticated.
func do(h echo.HandlerFunc, method, target, body string, uid uint64, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, f := range setup {
		f(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != 0 {
		c.Set(middleware.CtxUserID, uid)
		c.Set(middleware.CtxRole, model.RoleParent)
	}
	_ = h(c)
	return rec
}

func withParam(h echo.HandlerFunc, name, value string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.SetParamNames(name)
		c.SetParamValues(value)
		return h(c)
	}
}

func visitor(id string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(middleware.VisitorHeader, id) }
}

const contactJSON = `"contact":{"parentName":"Pat Doe","email":"pat@example.com","childName":"Sam Doe"}`

func TestCreateSession(t *testing.T) {
	fp := &fakeProcessor{}
	h := newCheckoutHandler(fp, nil)

	rec := do(h.CreateSession, http.MethodPost, "/api/create-checkout-session",
		`{"items":[{"weekId":"lex-wk1","paymentType":"full"}],"promoCode":"SHOP",`+contactJSON+`}`, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"cs_test_1","url":"https://pay.example/cs_test_1","quote":{"subtotal_cents":50000,"discount_cents":10000,"total_cents":40000}}`, rec.Body.String())
	require.Len(t, fp.calls, 1)
	assert.Equal(t, checkout.KindCart, fp.calls[0].Metadata[checkout.MetaKind])
	assert.Empty(t, fp.calls[0].Metadata[checkout.MetaUserID])
}

func TestCreateSession_SignedInCarriesUser(t *testing.T) {
	fp := &fakeProcessor{}
	h := newCheckoutHandler(fp, nil)
	rec := do(h.CreateSession, http.MethodPost, "/", `{"items":[{"weekId":"nw-wk1","paymentType":"deposit"}],`+contactJSON+`}`, 7)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", fp.calls[0].Metadata[checkout.MetaUserID])
	assert.Equal(t, "cus_7", fp.calls[0].CustomerID)
}

func TestCreateSession_ValidationMakesNoCall(t *testing.T) {
	cases := map[string]string{
		"empty":         `{"items":[],` + contactJSON + `}`,
		"bad email":     `{"items":[{"weekId":"lex-wk1","paymentType":"full"}],"contact":{"parentName":"P","email":"nope","childName":"S"}}`,
		"unknown week":  `{"items":[{"weekId":"xyz","paymentType":"full"}],` + contactJSON + `}`,
		"mixed":         `{"items":[{"weekId":"lex-wk1","paymentType":"full"},{"weekId":"bos-wk1","paymentType":"full"}],` + contactJSON + `}`,
		"missing child": `{"items":[{"weekId":"lex-wk1","paymentType":"full"}],"contact":{"parentName":"P","email":"p@example.com"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fp := &fakeProcessor{}
			rec := do(newCheckoutHandler(fp, nil).CreateSession, http.MethodPost, "/", body, 0)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "validation_failed")
			assert.Empty(t, fp.calls)
		})
	}
}

func TestCreateSession_ProcessorFailure(t *testing.T) {
	fp := &fakeProcessor{err: errors.New("stripe down")}
	rec := do(newCheckoutHandler(fp, nil).CreateSession, http.MethodPost, "/",
		`{"items":[{"weekId":"lex-wk1","paymentType":"full"}],`+contactJSON+`}`, 0)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "checkout_failed")
}

func TestCheckout_UsesServerCartAndRequiresForm(t *testing.T) {
	store := kv.NewMemory()
	ch := NewCartHandler(store, seedWeeks{})
	rec := do(ch.Add, http.MethodPost, "/api/cart", `{"weekId":"lex-wk2","paymentType":"full"}`, 0, visitor("v1"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(ch.SetPromo, http.MethodPut, "/api/cart/promo", `{"code":"shop"}`, 0, visitor("v1"))
	require.Equal(t, http.StatusOK, rec.Code)

	fp := &fakeProcessor{}
	h := newCheckoutHandler(fp, store)

	rec = do(h.Checkout, http.MethodPost, "/api/checkout", `{"contact":{"childName":"Sam Doe"}}`, 7, visitor("v1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "formSubmitted")
	assert.Empty(t, fp.calls)

	rec = do(h.Checkout, http.MethodPost, "/api/checkout", `{"formSubmitted":true,"contact":{"childName":"Sam Doe"}}`, 7, visitor("v1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, fp.calls, 1)
	assert.Equal(t, "pat@example.com", fp.calls[0].CustomerEmail)
	assert.Equal(t, "SHOP", fp.calls[0].Metadata[checkout.MetaPromoCode])
	assert.Equal(t, checkout.KindRegistration, fp.calls[0].Metadata[checkout.MetaKind])
	assert.Equal(t, int64(40000), fp.calls[0].LineItems[0].AmountCents)

	// cart is untouched until payment is confirmed
	rec = do(ch.Get, http.MethodGet, "/api/cart", "", 0, visitor("v1"))
	assert.Contains(t, rec.Body.String(), "lex-wk2")

	assert.Equal(t, http.StatusUnauthorized, do(h.Checkout, http.MethodPost, "/", `{}`, 0).Code)
}

func TestBalanceCheckout(t *testing.T) {
	fp := &fakeProcessor{}
	h := newCheckoutHandler(fp, nil)

	rec := do(h.BalanceCheckout, http.MethodPost, "/", `{"registrationId":1}`, 7)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, fp.calls, 1)
	assert.Equal(t, int64(35000), fp.calls[0].LineItems[0].AmountCents)
	assert.Equal(t, checkout.KindBalance, fp.calls[0].Metadata[checkout.MetaKind])
	assert.Equal(t, "1", fp.calls[0].Metadata[checkout.MetaRegistrationID])
	assert.Equal(t, "Sam Doe", fp.calls[0].Metadata[checkout.MetaChildName])

	assert.Equal(t, http.StatusForbidden, do(h.BalanceCheckout, http.MethodPost, "/", `{"registrationId":2}`, 7).Code)
	assert.Equal(t, http.StatusNotFound, do(h.BalanceCheckout, http.MethodPost, "/", `{"registrationId":99}`, 7).Code)
	assert.Equal(t, http.StatusBadRequest, do(h.BalanceCheckout, http.MethodPost, "/", `{}`, 7).Code)
}

func TestPaymentStatus(t *testing.T) {
	for _, tc := range []struct {
		session checkout.Session
		want    string
	}{
		{checkout.Session{Status: "complete", PaymentStatus: "paid"}, `{"status":"paid"}`},
		{checkout.Session{Status: "open", PaymentStatus: "unpaid"}, `{"status":"pending"}`},
		{checkout.Session{Status: "expired", PaymentStatus: "unpaid"}, `{"status":"expired"}`},
	} {
		s := tc.session
		h := withParam(PaymentStatus(&fakeProcessor{session: &s}, nil, zerolog.Nop()), "sessionId", "cs_1")
		rec := do(h, http.MethodGet, "/api/payment-status/cs_1", "", 0)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, tc.want, rec.Body.String())
	}

	h := withParam(PaymentStatus(&fakeProcessor{err: errors.New("down")}, nil, zerolog.Nop()), "sessionId", "cs_1")
	assert.Equal(t, http.StatusBadGateway, do(h, http.MethodGet, "/", "", 0).Code)
}

func TestPaymentStatus_ReconcilesAfterFailedWebhook(t *testing.T) {
	paid := &checkout.Session{ID: "cs_5", Status: "complete", PaymentStatus: "paid"}
	r := &fakeReconciler{err: errors.New("lock wait timeout")}

	wh := NewWebhookHandler(fakeVerifier{ev: &checkout.Event{Type: checkout.EventSessionCompleted, Session: paid}}, r, zerolog.Nop())
	require.Equal(t, http.StatusOK, do(wh.Handle, http.MethodPost, "/api/webhook", `{}`, 0).Code)
	require.Equal(t, 1, r.calls)
	assert.False(t, r.applied["cs_5"])

	r.err = nil
	status := withParam(PaymentStatus(&fakeProcessor{session: paid}, r, zerolog.Nop()), "sessionId", "cs_5")
	rec := do(status, http.MethodGet, "/api/payment-status/cs_5", "", 0)
	assert.JSONEq(t, `{"status":"paid"}`, rec.Body.String())
	assert.Equal(t, 2, r.calls)
	assert.True(t, r.applied["cs_5"])

	// a second poll is a no-op replay
	rec = do(status, http.MethodGet, "/api/payment-status/cs_5", "", 0)
	assert.JSONEq(t, `{"status":"paid"}`, rec.Body.String())
	assert.Equal(t, 3, r.calls)

	// failures while catching up still answer the status
	r.err = errors.New("db down")
	rec = do(status, http.MethodGet, "/api/payment-status/cs_5", "", 0)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"paid"}`, rec.Body.String())
}

func TestPaymentStatus_PendingIsNotReconciled(t *testing.T) {
	r := &fakeReconciler{}
	open := &checkout.Session{ID: "cs_6", Status: "open", PaymentStatus: "unpaid"}
	h := withParam(PaymentStatus(&fakeProcessor{session: open}, r, zerolog.Nop()), "sessionId", "cs_6")
	rec := do(h, http.MethodGet, "/", "", 0)
	assert.JSONEq(t, `{"status":"pending"}`, rec.Body.String())
	assert.Zero(t, r.calls)
}

func TestCartHandler(t *testing.T) {
	h := NewCartHandler(kv.NewMemory(), seedWeeks{})

	assert.Equal(t, http.StatusBadRequest, do(h.Get, http.MethodGet, "/", "", 0).Code)

	rec := do(h.Add, http.MethodPost, "/", `{"weekId":"lex-wk1","paymentType":"deposit"}`, 0, visitor("v2"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_cents":15000`)

	rec = do(h.Add, http.MethodPost, "/", `{"weekId":"bos-wk1"}`, 0, visitor("v2"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "location_mismatch")

	rec = do(h.Add, http.MethodPost, "/", `{"weekId":"lex-wk1","paymentType":"full"}`, 0, visitor("v2"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_in_cart")

	assert.Equal(t, http.StatusNotFound, do(h.Add, http.MethodPost, "/", `{"weekId":"nope"}`, 0, visitor("v2")).Code)
	assert.Equal(t, http.StatusBadRequest, do(h.SetPromo, http.MethodPut, "/", `{"code":"BOGUS"}`, 0, visitor("v2")).Code)

	// other visitors have their own cart
	rec = do(h.Get, http.MethodGet, "/", "", 0, visitor("v3"))
	assert.Contains(t, rec.Body.String(), `"items":[]`)

	rec = do(withParam(h.Remove, "weekId", "lex-wk1"), http.MethodDelete, "/", "", 0, visitor("v2"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)

	assert.Equal(t, http.StatusNoContent, do(h.Clear, http.MethodDelete, "/", "", 0, visitor("v2")).Code)

	down := NewCartHandler(nil, seedWeeks{})
	assert.Equal(t, http.StatusServiceUnavailable, do(down.Get, http.MethodGet, "/", "", 0, visitor("v2")).Code)
}

type fakeVerifier struct {
	ev  *checkout.Event
	err error
}

func (f fakeVerifier) ParseWebhook([]byte, string) (*checkout.Event, error) { return f.ev, f.err }

type fakeReconciler struct {
	calls   int
	err     error
	applied map[string]bool
}

func (f *fakeReconciler) Reconcile(_ context.Context, s *checkout.Session) (reconcile.Outcome, error) {
	f.calls++
	out := reconcile.Outcome{SessionID: s.ID}
	if f.err != nil {
		return out, f.err
	}
	if f.applied == nil {
		f.applied = map[string]bool{}
	}
	out.Duplicate = f.applied[s.ID]
	f.applied[s.ID] = true
	return out, nil
}

func TestWebhook(t *testing.T) {
	paid := &checkout.Session{ID: "cs_1", Status: "complete", PaymentStatus: "paid"}
	unpaid := &checkout.Session{ID: "cs_2", Status: "complete", PaymentStatus: "unpaid"}
	for _, tc := range []struct {
		name       string
		verifier   fakeVerifier
		recErr     error
		wantStatus int
		wantCalls  int
	}{
		{"bad signature", fakeVerifier{err: checkout.ErrInvalidSignature}, nil, http.StatusBadRequest, 0},
		{"completed paid", fakeVerifier{ev: &checkout.Event{Type: checkout.EventSessionCompleted, Session: paid}}, nil, http.StatusOK, 1},
		{"completed unpaid", fakeVerifier{ev: &checkout.Event{Type: checkout.EventSessionCompleted, Session: unpaid}}, nil, http.StatusOK, 0},
		{"async succeeded", fakeVerifier{ev: &checkout.Event{Type: checkout.EventAsyncPaymentSucceeded, Session: paid}}, nil, http.StatusOK, 1},
		{"other type", fakeVerifier{ev: &checkout.Event{Type: "payment_intent.created"}}, nil, http.StatusOK, 0},
		{"reconcile error still 200", fakeVerifier{ev: &checkout.Event{Type: checkout.EventSessionCompleted, Session: paid}}, errors.New("db down"), http.StatusOK, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeReconciler{err: tc.recErr}
			h := NewWebhookHandler(tc.verifier, r, zerolog.Nop())
			rec := do(h.Handle, http.MethodPost, "/api/webhook", `{}`, 0)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCalls, r.calls)
		})
	}
}

func TestWebhook_StripeSignature(t *testing.T) {
	const secret = "whsec_handler_test"
	payload := `{"id":"evt_9","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_9","object":"checkout.session","status":"complete","payment_status":"paid","amount_total":50000,"currency":"usd","metadata":{"kind":"cart","items":"[]"}}}}`
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: secret, Timestamp: time.Now()})

	r := &fakeReconciler{}
	h := NewWebhookHandler(checkout.NewStripeProcessor("sk_test_x", secret, zerolog.Nop()), r, zerolog.Nop())

	rec := do(h.Handle, http.MethodPost, "/api/webhook", string(signed.Payload), 0, func(req *http.Request) {
		req.Header.Set("Stripe-Signature", signed.Header)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, r.calls)

	rec = do(h.Handle, http.MethodPost, "/api/webhook", string(signed.Payload), 0, func(req *http.Request) {
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, r.calls)
}

func TestWeeks(t *testing.T) {
	rec := do(ListWeeks(seedWeeks{}), http.MethodGet, "/api/weeks?location=BOS", "", 0)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bos-wk1")
	assert.NotContains(t, rec.Body.String(), "lex-wk1")

	assert.Equal(t, http.StatusNotFound, do(withParam(GetWeek(seedWeeks{}), "id", "zzz"), http.MethodGet, "/", "", 0).Code)
}

func TestTotalsAndGrouping(t *testing.T) {
	regs := []model.RegistrationDetail{
		{Registration: model.Registration{WeekID: "lex-wk1", Status: model.StatusPaid, AmountPaidCents: 50000}, WeekLabel: "L1"},
		{Registration: model.Registration{WeekID: "lex-wk1", Status: model.StatusDepositPaid, AmountPaidCents: 15000, BalanceDueCents: 35000}, WeekLabel: "L1"},
		{Registration: model.Registration{WeekID: "lex-wk2", Status: model.StatusCancelled, AmountPaidCents: 50000}, WeekLabel: "L2"},
	}
	all := summarize(regs)
	assert.Equal(t, Totals{PaidCents: 65000, DueCents: 35000, Count: 3}, all)

	groups, total := groupByWeek(regs)
	assert.Equal(t, all, total)
	require.Len(t, groups, 2)
	assert.Equal(t, "lex-wk1", groups[0].WeekID)
	assert.Equal(t, Totals{PaidCents: 65000, DueCents: 35000, Count: 2}, groups[0].Totals)
	assert.Equal(t, Totals{Count: 1}, groups[1].Totals)
}

func TestApplyBalance(t *testing.T) {
	w := model.Week{PriceCents: 50000}
	r := model.Registration{AmountPaidCents: 15000}
	applyBalance(&r, w)
	assert.Equal(t, int64(35000), r.BalanceDueCents)
	assert.Equal(t, model.StatusDepositPaid, r.Status)

	r = model.Registration{AmountPaidCents: 60000}
	applyBalance(&r, w)
	assert.Zero(t, r.BalanceDueCents)
	assert.Equal(t, model.StatusPaid, r.Status)

	r = model.Registration{}
	applyBalance(&r, w)
	assert.Equal(t, model.StatusPending, r.Status)
}

func TestAnalyticsWithoutRedis(t *testing.T) {
	h := NewAnalyticsHandler(nil, zerolog.Nop())
	assert.Equal(t, http.StatusNoContent, do(h.Visit, http.MethodPost, "/api/visit", "", 0, visitor("v1")).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h.Count, http.MethodGet, "/api/admin/visits", "", 0).Code)
}

func TestHealth(t *testing.T) {
	rec := do(Health, http.MethodGet, "/healthz", "", 0)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

// memStudents mimics StudentRepo: owner-scoped, and students listed in
// enrolled cannot be deleted.
type memStudents struct {
	rows     map[uint64]model.Student
	enrolled map[uint64]bool
}

func (m *memStudents) ListByUser(_ context.Context, userID uint64) ([]model.Student, error) {
	out := []model.Student{}
	for _, s := range m.rows {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStudents) GetForUser(_ context.Context, id, userID uint64) (model.Student, error) {
	s, ok := m.rows[id]
	if !ok {
		return s, sql.ErrNoRows
	}
	if s.UserID != userID {
		return model.Student{}, repository.ErrForbidden
	}
	return s, nil
}

func (m *memStudents) Create(_ context.Context, s *model.Student) error {
	s.ID = uint64(len(m.rows) + 100)
	m.rows[s.ID] = *s
	return nil
}

func (m *memStudents) Update(ctx context.Context, s *model.Student, userID uint64) error {
	if _, err := m.GetForUser(ctx, s.ID, userID); err != nil {
		return err
	}
	m.rows[s.ID] = *s
	return nil
}

func (m *memStudents) Delete(ctx context.Context, id, userID uint64) error {
	if _, err := m.GetForUser(ctx, id, userID); err != nil {
		return err
	}
	if m.enrolled[id] {
		return repository.ErrConflict
	}
	delete(m.rows, id)
	return nil
}

type noProfiles struct{}

func (noProfiles) GetByID(context.Context, uint64) (model.User, error) { return model.User{}, sql.ErrNoRows }
func (noProfiles) UpdateName(context.Context, uint64, string) error     { return nil }

type noHistory struct{}

func (noHistory) ListByUser(context.Context, uint64) ([]model.RegistrationDetail, error) {
	return []model.RegistrationDetail{}, nil
}

type noPayments struct{}

func (noPayments) ListByUser(context.Context, uint64) ([]model.Payment, error) {
	return []model.Payment{}, nil
}

func TestDeleteStudent(t *testing.T) {
	students := &memStudents{
		rows: map[uint64]model.Student{
			1: {ID: 1, UserID: 7, FirstName: "Sam", LastName: "Doe"},
			2: {ID: 2, UserID: 7, FirstName: "Alex", LastName: "Doe"},
			3: {ID: 3, UserID: 8, FirstName: "Kim", LastName: "Lee"},
		},
		enrolled: map[uint64]bool{1: true},
	}
	h := NewAccountHandler(noProfiles{}, students, noHistory{}, noPayments{}, validator.New())
	del := func(id string) int {
		return do(withParam(h.DeleteStudent, "id", id), http.MethodDelete, "/api/students/"+id, "", 7).Code
	}

	assert.Equal(t, http.StatusConflict, del("1"))
	assert.Equal(t, http.StatusNoContent, del("2"))
	assert.Equal(t, http.StatusForbidden, del("3"))
	assert.Equal(t, http.StatusNotFound, del("9"))
	assert.Equal(t, http.StatusBadRequest, del("x"))

	rec := do(h.ListStudents, http.MethodGet, "/api/students", "", 7)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"first_name":"Sam"`)
	assert.NotContains(t, rec.Body.String(), `"first_name":"Alex"`)
	assert.Equal(t, model.Student{ID: 1, UserID: 7, FirstName: "Sam", LastName: "Doe"}, students.rows[1])
}
