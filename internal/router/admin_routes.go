package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/acappella-workshop/internal/handler"
	"github.com/iliyamo/acappella-workshop/internal/middleware"
	"github.com/iliyamo/acappella-workshop/internal/model"
)

// RegisterAdmin registers the ADMIN-only endpoints under /api/admin.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, an *handler.AnalyticsHandler, jwtSecret string) {
	g := e.Group("/api/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))

	g.GET("/registrations", a.ListRegistrations)
	g.POST("/registrations", a.CreateRegistration)
	g.PUT("/registrations/:id/status", a.UpdateStatus)
	g.GET("/weeks/:id/roster", a.Roster)
	g.GET("/audit", a.AuditLog)
	g.GET("/visits", an.Count)
}
