package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/acappella-workshop/internal/handler"    // handlers that implement each endpoint
	"github.com/iliyamo/acappella-workshop/internal/middleware" // JWT, roles, rate limiting, caching
)

// RegisterRoutes registers the liveness and readiness endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers password and Google sign-in.  o may be nil when
// Google is not configured.  limit guards the credential endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o *handler.OAuthHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	// accepts either a refresh_token body or a bearer token (all sessions)
	g.POST("/logout", a.Logout)

	if o != nil {
		g.GET("/google", o.Start)
		g.GET("/google/callback", o.Callback)
	}
}

// Public groups the handlers of endpoints that need no account.
type Public struct {
	Weeks         handler.WeekLister
	Cart          *handler.CartHandler
	Checkout      *handler.CheckoutHandler
	PaymentStatus echo.HandlerFunc
	Webhook       *handler.WebhookHandler
	Analytics     *handler.AnalyticsHandler
}

// RegisterPublic registers the catalogue, cart, guest checkout, payment
// status, webhook and visit endpoints under /api.
func RegisterPublic(e *echo.Echo, p Public, jwtSecret string, cache, limit, checkoutLimit echo.MiddlewareFunc) {
	api := e.Group("/api")

	api.GET("/weeks", handler.ListWeeks(p.Weeks), cache)
	api.GET("/weeks/:id", handler.GetWeek(p.Weeks), cache)

	cart := api.Group("/cart", limit)
	cart.GET("", p.Cart.Get)
	cart.POST("", p.Cart.Add)
	cart.DELETE("", p.Cart.Clear)
	cart.DELETE("/items/:weekId", p.Cart.Remove)
	cart.PUT("/promo", p.Cart.SetPromo)
	cart.DELETE("/promo", p.Cart.RemovePromo)

	api.POST("/create-checkout-session", p.Checkout.CreateSession, checkoutLimit, middleware.OptionalJWT(jwtSecret))
	api.GET("/payment-status/:sessionId", p.PaymentStatus, limit)

	// signature-verified; must not be rate limited or cached
	api.POST("/webhook", p.Webhook.Handle)

	api.POST("/visit", p.Analytics.Visit, limit)
}
