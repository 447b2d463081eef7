package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// ActiveBatch reports the configuration currently on sale.
type ActiveBatch interface {
	Active(ctx context.Context) (model.Configuration, error)
}

// SalesGate rejects mutating requests with 503 while no configuration is
// active.  Reads pass through untouched.
func SalesGate(batches ActiveBatch) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			if _, err := batches.Active(c.Request().Context()); err != nil {
				if errors.Is(err, model.ErrNoActiveBatch) {
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "sales are closed"})
				}
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable"})
			}
			return next(c)
		}
	}
}
