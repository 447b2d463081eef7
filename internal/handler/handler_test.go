package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-system/internal/model"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrUnavailable, http.StatusConflict},
		{model.ErrInsufficientInventory, http.StatusConflict},
		{model.ErrHoldExpired, http.StatusGone},
		{model.ErrHoldNotFound, http.StatusNotFound},
		{model.ErrTicketNotFound, http.StatusNotFound},
		{model.ErrOrderNotFound, http.StatusNotFound},
		{model.ErrNoActiveBatch, http.StatusNotFound},
		{model.ErrNotOwner, http.StatusForbidden},
		{fmt.Errorf("get hold: %w: %w", model.ErrStoreUnavailable, errors.New("i/o timeout")), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: count must be positive", model.ErrInvalidQuantity), http.StatusBadRequest},
		{model.ErrInvalidBuyer, http.StatusBadRequest},
		{model.ErrInvalidBatch, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}

func TestWriteErrorStoreUnavailableSetsRetryAfter(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, writeError(c, fmt.Errorf("x: %w", model.ErrStoreUnavailable)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteErrorUnknownGoesToErrorHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/", func(c echo.Context) error { return writeError(c, errors.New("disk on fire")) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestValidationMessageUsesJSONNames(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&addToCartRequest{})
	require.Error(t, err)
	assert.Equal(t, "ticket_id: failed required", validationMessage(err))

	assert.Equal(t, "invalid request body", validationMessage(errors.New("other")))
}
