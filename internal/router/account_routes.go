package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/acappella-workshop/internal/handler"
	"github.com/iliyamo/acappella-workshop/internal/middleware"
	"github.com/iliyamo/acappella-workshop/internal/model"
)

// RegisterAccount registers the signed-in parent's endpoints.  Admins may
// use them too for their own account.
func RegisterAccount(e *echo.Echo, a *handler.AccountHandler, c *handler.CheckoutHandler, jwtSecret string, limit, checkoutLimit echo.MiddlewareFunc) {
	g := e.Group("/api", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleParent, model.RoleAdmin))

	g.GET("/me", a.Me, limit)
	g.PUT("/me", a.UpdateMe, limit)

	g.GET("/students", a.ListStudents, limit)
	g.POST("/students", a.CreateStudent, limit)
	g.PUT("/students/:id", a.UpdateStudent, limit)
	g.DELETE("/students/:id", a.DeleteStudent, limit)

	g.GET("/registrations", a.ListRegistrations, limit)
	g.GET("/payments", a.ListPayments, limit)

	g.POST("/checkout", c.Checkout, checkoutLimit)
	g.POST("/balance-checkout", c.BalanceCheckout, checkoutLimit)
}
