package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/service"
)

// Batches is the part of service.BatchManager the admin routes use.
type Batches interface {
	Active(ctx context.Context) (model.Configuration, error)
	Activate(ctx context.Context, in service.BatchInput) (model.Configuration, error)
	Toggle(ctx context.Context) (bool, error)
}

// AdminHandler serves the configuration and sales toggle endpoints.  Role
// checks happen in the router.
type AdminHandler struct {
	Batches Batches
}

// NewAdminHandler returns an AdminHandler.
func NewAdminHandler(b Batches) *AdminHandler {
	if b == nil {
		panic("nil batch manager passed to NewAdminHandler")
	}
	return &AdminHandler{Batches: b}
}

// GetConfig handles GET /v1/config and returns the active configuration.
func (h *AdminHandler) GetConfig(c echo.Context) error {
	cfg, err := h.Batches.Active(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newConfigView(cfg))
}

type configRequest struct {
	TotalTickets  int             `json:"total_tickets" validate:"required"`
	TicketPrice   decimal.Decimal `json:"ticket_price"`
	ReleaseRate   int             `json:"release_rate" validate:"required"`
	RetrievalRate int             `json:"retrieval_rate" validate:"required"`
	MaxCapacity   int             `json:"max_capacity" validate:"required"`
}

// CreateConfig handles POST /v1/config.  It replaces the active batch with
// a new one and creates its tickets; the response is 201 with the stored
// configuration.
func (h *AdminHandler) CreateConfig(c echo.Context) error {
	var body configRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	cfg, err := h.Batches.Activate(c.Request().Context(), service.BatchInput{
		TotalTickets:  body.TotalTickets,
		TicketPrice:   body.TicketPrice,
		ReleaseRate:   body.ReleaseRate,
		RetrievalRate: body.RetrievalRate,
		MaxCapacity:   body.MaxCapacity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newConfigView(cfg))
}

// ToggleSystem handles POST /v1/system/toggle.  It stops sales when they
// run and resumes them on the latest batch otherwise.
func (h *AdminHandler) ToggleSystem(c echo.Context) error {
	running, err := h.Batches.Toggle(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"running": running})
}
