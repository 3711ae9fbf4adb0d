package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/analytics"
	"github.com/iliyamo/acappella-workshop/internal/middleware"
)

// AnalyticsHandler records and reports unique daily visits.  Visits is
// nil when Redis is unavailable; recording then becomes a no-op.
type AnalyticsHandler struct {
	Visits *analytics.Visits
	Logger zerolog.Logger
	Now    func() time.Time
}

func NewAnalyticsHandler(v *analytics.Visits, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{Visits: v, Logger: logger.With().Str("service", "Analytics").Logger(), Now: time.Now}
}

// Visit handles POST /api/visit.  It always answers 204 so page loads
// never depend on analytics.
func (h *AnalyticsHandler) Visit(c echo.Context) error {
	v := middleware.VisitorID(c)
	if h.Visits == nil || v == "" {
		return c.NoContent(http.StatusNoContent)
	}
	if _, err := h.Visits.Record(c.Request().Context(), v, h.Now()); err != nil {
		h.Logger.Warn().Err(err).Msg("record visit failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Count handles GET /api/admin/visits?day=YYYY-MM-DD (default today, UTC).
func (h *AnalyticsHandler) Count(c echo.Context) error {
	if h.Visits == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "analytics unavailable"})
	}
	day := c.QueryParam("day")
	if day == "" {
		day = h.Now().UTC().Format(analytics.DayLayout)
	}
	if _, err := time.Parse(analytics.DayLayout, day); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "day must be YYYY-MM-DD"})
	}
	n, err := h.Visits.Count(c.Request().Context(), day)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "count failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"day": day, "visits": n})
}
