package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/acappella-workshop/internal/config"
	"github.com/iliyamo/acappella-workshop/internal/utils"
)

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "auth": ok, "role": Role(c)})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth("k"))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	tok, err := utils.NewAccessToken("k", 7, "PARENT", 5)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"auth":true,"role":"PARENT"}`, rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/who", whoami, OptionalJWT("k"))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/who", nil))
	assert.JSONEq(t, `{"id":0,"auth":false,"role":""}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", whoami, JWTAuth("k"), RequireRole("ADMIN"))

	parent, _ := utils.NewAccessToken("k", 1, "PARENT", 5)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+parent.Token)
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	admin, _ := utils.NewAccessToken("k", 2, "ADMIN", 5)
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestVisitorID(t *testing.T) {
	e := echo.New()
	for in, want := range map[string]string{
		"  abc-123 ":        "abc-123",
		"":                  "",
		"acw:cart:victim":   "",
		string(bytes.Repeat([]byte("x"), 65)): "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(VisitorHeader, in)
		c := e.NewContext(req, httptest.NewRecorder())
		assert.Equal(t, want, VisitorID(c), "input %q", in)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	req.Header.Set(VisitorHeader, "v1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/checkout")

	cfg := config.RateLimitConfig{Prefix: "acw:rl", KeyStrategy: "ip_route"}
	assert.Equal(t, "acw:rl:ip:10.0.0.1:route:POST /api/checkout", buildRateKey(cfg, c))

	cfg.KeyStrategy = "visitor_user"
	assert.Equal(t, "acw:rl:visitor:v1:user:anon", buildRateKey(cfg, c))

	c.Set(CtxUserID, uint64(9))
	assert.Equal(t, "acw:rl:visitor:v1:user:9", buildRateKey(cfg, c))
}

func TestPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.GET("/w", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, zerolog.Nop()),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/w", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestLogger(zerolog.New(&buf)))
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "nope") })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/boom"`)

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	rec = serve(e, req)
	assert.Equal(t, "rid-1", rec.Header().Get(RequestIDHeader))
}
