package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns each request an id (reusing an inbound
// X-Request-ID) and writes one structured line per request after the
// handler returns.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	lg := logger.With().Str("service", "http").Logger()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" || len(rid) > 64 {
				rid = uuid.NewString()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)

			err := next(c)
			if err != nil {
				c.Error(err) // let echo write the response so the status is final
			}

			status := c.Response().Status
			ev := lg.Info()
			if status >= 500 {
				ev = lg.Error()
			} else if status >= 400 {
				ev = lg.Warn()
			}
			ev.Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("ip", c.RealIP())
			if err != nil {
				ev.Err(err)
			}
			ev.Msg("request")
			return nil
		}
	}
}
