package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-system/internal/middleware"
	"github.com/iliyamo/ticketing-system/internal/model"
)

// Holds manages a customer's cart.
type Holds interface {
	Reserve(ctx context.Context, customerID, ticketID uint64) (model.Hold, error)
	ListActiveHolds(ctx context.Context, customerID uint64) ([]model.HeldTicket, error)
	ReleaseFor(ctx context.Context, customerID, holdID uint64) error
}

// CartHandler groups the customer cart endpoints.  All methods assume
// JWTAuth and RequireRole already ran and answer 401 when the token
// carries no usable customer id.
type CartHandler struct {
	Holds   Holds
	Booking Booking
}

// NewCartHandler returns a CartHandler.
func NewCartHandler(holds Holds, booking Booking) *CartHandler {
	if holds == nil || booking == nil {
		panic("nil dependency passed to NewCartHandler")
	}
	return &CartHandler{Holds: holds, Booking: booking}
}

type addToCartRequest struct {
	TicketID uint64 `json:"ticket_id" validate:"required"`
}

// Add handles POST /v1/cart.  It holds one ticket for the customer and
// returns 201 with the hold id and its expiry.
func (h *CartHandler) Add(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body addToCartRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	hold, err := h.Holds.Reserve(c.Request().Context(), customerID, body.TicketID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, holdView{HoldID: hold.ID, TicketID: hold.TicketID, ExpiresAt: hold.ExpiresAt})
}

// List handles GET /v1/cart with the customer's unexpired holds.
func (h *CartHandler) List(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	held, err := h.Holds.ListActiveHolds(c.Request().Context(), customerID)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]cartItemView, 0, len(held))
	for _, ht := range held {
		items = append(items, cartItemView{
			HoldID:       ht.Hold.ID,
			TicketID:     ht.Ticket.ID,
			TicketNumber: ht.Ticket.TicketNumber,
			Price:        ht.Ticket.Price.StringFixed(2),
			ExpiresAt:    ht.Hold.ExpiresAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Remove handles DELETE /v1/cart/:holdID.  Removing a hold that is already
// gone still answers 204.
func (h *CartHandler) Remove(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	holdID, ok := parseID(c, "holdID")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	if err := h.Holds.ReleaseFor(c.Request().Context(), customerID, holdID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Checkout handles POST /v1/cart/:holdID/checkout and books the held
// ticket.
func (h *CartHandler) Checkout(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	holdID, ok := parseID(c, "holdID")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	order, err := h.Booking.BookFromHold(c.Request().Context(), customerID, holdID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newOrderView(order))
}
