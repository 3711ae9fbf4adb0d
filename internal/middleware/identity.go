package middleware

// identity.go defines helpers shared across middleware files and handlers
// for reading who is making the request: the authenticated user id set by
// JWTAuth and the anonymous visitor id sent by browsers and campctl.

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// VisitorHeader carries the anonymous visitor id that keys the server-side
// cart and the visit counter.
const VisitorHeader = "X-Visitor-ID"

// UserID returns the authenticated user id, or false for anonymous requests.
func UserID(c echo.Context) (uint64, bool) {
	if v, ok := c.Get(CtxUserID).(uint64); ok && v != 0 {
		return v, true
	}
	return 0, false
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
	s, _ := c.Get(CtxRole).(string)
	return s
}

// VisitorID returns the trimmed visitor id header, or "" when absent or
// implausible (longer than 64 bytes or containing a colon, which would
// escape its Redis key segment).
func VisitorID(c echo.Context) string {
	v := strings.TrimSpace(c.Request().Header.Get(VisitorHeader))
	if v == "" || len(v) > 64 || strings.ContainsAny(v, ": ") {
		return ""
	}
	return v
}

// userID extracts a user identifier for rate-limit keys.  It returns
// "anon" when no user is authenticated.
func userID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
