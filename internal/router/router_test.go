package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/acappella-workshop/internal/handler"
	"github.com/iliyamo/acappella-workshop/internal/repository"
	"github.com/iliyamo/acappella-workshop/internal/utils"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func pass(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newEcho() *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, okPinger{})
	v := validator.New()
	acct := handler.NewAccountHandler(repository.NewUserRepo(nil), repository.NewStudentRepo(nil), repository.NewRegistrationRepo(nil), repository.NewPaymentRepo(nil), v)
	RegisterAccount(e, acct, &handler.CheckoutHandler{}, "k", pass, pass)
	admin := handler.NewAdminHandler(repository.NewRegistrationRepo(nil), repository.NewStudentRepo(nil), repository.NewWeekRepo(nil), repository.NewAuditRepo(nil), zerolog.Nop())
	RegisterAdmin(e, admin, handler.NewAnalyticsHandler(nil, zerolog.Nop()), "k")
	return e
}

func get(e *echo.Echo, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestHealthEndpoints(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusOK, get(e, "/healthz", ""))
	assert.Equal(t, http.StatusOK, get(e, "/readyz", ""))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newEcho()
	for _, p := range []string{"/api/me", "/api/students", "/api/registrations", "/api/payments", "/api/admin/registrations"} {
		assert.Equal(t, http.StatusUnauthorized, get(e, p, ""), p)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	e := newEcho()
	parent, _ := utils.NewAccessToken("k", 1, "PARENT", 5)
	assert.Equal(t, http.StatusForbidden, get(e, "/api/admin/registrations", parent.Token))
	assert.Equal(t, http.StatusForbidden, get(e, "/api/admin/visits", parent.Token))

	admin, _ := utils.NewAccessToken("k", 2, "ADMIN", 5)
	// reaches the handler, which reports analytics as unavailable
	assert.Equal(t, http.StatusServiceUnavailable, get(e, "/api/admin/visits", admin.Token))
}
