package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

// CustomerID returns the authenticated customer's numeric id.  The sub
// claim may arrive as a JSON number or a decimal string.
func CustomerID(c echo.Context) (uint64, bool) {
	switch v := c.Get(ctxUserID).(type) {
	case float64:
		if v <= 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, false
		}
		return uint64(v), true
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// Role returns the authenticated role, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// subject identifies the caller for rate limiting.
func subject(c echo.Context) string {
	if id, ok := CustomerID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
