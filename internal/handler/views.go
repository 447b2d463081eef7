package handler

import (
	"time"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// JSON shapes returned by the API.  Money is rendered as a fixed two
// decimal string.

type ticketView struct {
	ID              uint64     `json:"id"`
	TicketNumber    string     `json:"ticket_number"`
	Price           string     `json:"price"`
	ConfigurationID uint64     `json:"configuration_id"`
	Status          string     `json:"status"`
	BookedAt        *time.Time `json:"booked_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newTicketView(t model.Ticket) ticketView {
	return ticketView{
		ID:              t.ID,
		TicketNumber:    t.TicketNumber,
		Price:           t.Price.StringFixed(2),
		ConfigurationID: t.ConfigurationID,
		Status:          string(t.Status),
		BookedAt:        t.BookedAt,
		CreatedAt:       t.CreatedAt,
	}
}

type holdView struct {
	HoldID    uint64    `json:"hold_id"`
	TicketID  uint64    `json:"ticket_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type cartItemView struct {
	HoldID       uint64    `json:"hold_id"`
	TicketID     uint64    `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	Price        string    `json:"price"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type orderItemView struct {
	TicketID uint64 `json:"ticket_id"`
	Price    string `json:"price"`
}

type orderView struct {
	ID          uint64          `json:"id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  *uint64         `json:"customer_id,omitempty"`
	BuyerID     *uint64         `json:"buyer_id,omitempty"`
	Status      string          `json:"status"`
	TotalAmount string          `json:"total_amount"`
	TicketCount int             `json:"ticket_count"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []orderItemView `json:"items"`
}

func newOrderView(o model.Order) orderView {
	items := make([]orderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemView{TicketID: it.TicketID, Price: it.Price.StringFixed(2)})
	}
	return orderView{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		BuyerID:     o.BuyerID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.StringFixed(2),
		TicketCount: len(o.Items),
		CreatedAt:   o.CreatedAt,
		Items:       items,
	}
}

type configView struct {
	ID            uint64    `json:"id"`
	TotalTickets  int       `json:"total_tickets"`
	TicketPrice   string    `json:"ticket_price"`
	ReleaseRate   int       `json:"release_rate"`
	RetrievalRate int       `json:"retrieval_rate"`
	MaxCapacity   int       `json:"max_capacity"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func newConfigView(c model.Configuration) configView {
	return configView{
		ID:            c.ID,
		TotalTickets:  c.TotalTickets,
		TicketPrice:   c.TicketPrice.StringFixed(2),
		ReleaseRate:   c.ReleaseRate,
		RetrievalRate: c.RetrievalRate,
		MaxCapacity:   c.MaxCapacity,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
	}
}
