package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// writeError maps a service error onto a JSON error response.  Unknown
// errors are returned to echo so the request logger records the cause.
func writeError(c echo.Context, err error) error {
	status, msg := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		return echo.NewHTTPError(status, msg).SetInternal(err)
	case http.StatusServiceUnavailable:
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, echo.Map{"error": msg})
}

// ErrorHandler renders errors that reach echo in the same {"error": ...}
// shape the handlers use.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := http.StatusInternalServerError, "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		} else {
			msg = http.StatusText(status)
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, echo.Map{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable, retry later"
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusConflict, "ticket unavailable"
	case errors.Is(err, model.ErrInsufficientInventory):
		return http.StatusConflict, "not enough tickets available"
	case errors.Is(err, model.ErrHoldExpired):
		return http.StatusGone, "hold expired"
	case errors.Is(err, model.ErrNotOwner):
		return http.StatusForbidden, "hold belongs to another customer"
	case errors.Is(err, model.ErrHoldNotFound):
		return http.StatusNotFound, "hold not found"
	case errors.Is(err, model.ErrTicketNotFound):
		return http.StatusNotFound, "ticket not found"
	case errors.Is(err, model.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, model.ErrNoActiveBatch):
		return http.StatusNotFound, "no active configuration"
	case errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrInvalidBuyer),
		errors.Is(err, model.ErrInvalidBatch):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}
