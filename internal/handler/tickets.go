package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// Inventory reads ticket state.
type Inventory interface {
	Counts(ctx context.Context) (model.Counts, error)
	Ticket(ctx context.Context, id uint64) (model.Ticket, error)
}

// Booking creates and reads orders.
type Booking interface {
	BookDirect(ctx context.Context, buyer model.BuyerDetails, count int) (model.Order, error)
	BookFromHold(ctx context.Context, customerID, holdID uint64) (model.Order, error)
	Order(ctx context.Context, orderID uint64) (model.Order, error)
}

// TicketHandler serves the public ticket and order endpoints.
type TicketHandler struct {
	Inventory Inventory
	Booking   Booking
}

// NewTicketHandler returns a TicketHandler.
func NewTicketHandler(inv Inventory, booking Booking) *TicketHandler {
	if inv == nil || booking == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	return &TicketHandler{Inventory: inv, Booking: booking}
}

// Available handles GET /v1/tickets/available.
func (h *TicketHandler) Available(c echo.Context) error {
	counts, err := h.Inventory.Counts(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total":     counts.Total,
		"available": counts.Available,
		"held":      counts.Held,
		"booked":    counts.Booked,
	})
}

// Status handles GET /v1/tickets/status with one row per ticket status.
func (h *TicketHandler) Status(c echo.Context) error {
	counts, err := h.Inventory.Counts(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	type row struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	return c.JSON(http.StatusOK, []row{
		{string(model.TicketAvailable), counts.Available},
		{string(model.TicketHeld), counts.Held},
		{string(model.TicketBooked), counts.Booked},
	})
}

// Ticket handles GET /v1/tickets/:id.
func (h *TicketHandler) Ticket(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	t, err := h.Inventory.Ticket(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newTicketView(t))
}

type buyerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type bookRequest struct {
	NumberOfTickets int           `json:"number_of_tickets"`
	UserDetails     *buyerRequest `json:"user_details" validate:"required"`
}

// Book handles POST /v1/tickets/book.  It books the requested number of
// tickets for the buyer in one step, without a cart.
func (h *TicketHandler) Book(c echo.Context) error {
	var body bookRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	buyer := model.BuyerDetails{
		Name:  body.UserDetails.Name,
		Email: body.UserDetails.Email,
		Phone: body.UserDetails.Phone,
	}
	order, err := h.Booking.BookDirect(c.Request().Context(), buyer, body.NumberOfTickets)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newOrderView(order))
}

// Order handles GET /v1/orders/:id.
func (h *TicketHandler) Order(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	o, err := h.Booking.Order(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newOrderView(o))
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
