// Package queue carries order events over RabbitMQ: the server publishes
// one message per created order and a separate consumer appends them to an
// order log.
package queue

import (
	"time"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// OrderCreatedEvent is published after an order's transaction commits.  It
// carries enough for downstream consumers to log or notify without
// querying the primary database.
type OrderCreatedEvent struct {
	OrderID     uint64   `json:"order_id"`
	OrderNumber string   `json:"order_number"`
	CustomerID  *uint64  `json:"customer_id,omitempty"`
	BuyerID     *uint64  `json:"buyer_id,omitempty"`
	Status      string   `json:"status"`
	TotalAmount string   `json:"total_amount"`
	TicketIDs   []uint64 `json:"ticket_ids"`
	CreatedAt   string   `json:"created_at"`
}

// NewOrderCreatedEvent builds the event for o.
func NewOrderCreatedEvent(o model.Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		BuyerID:     o.BuyerID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.StringFixed(2),
		TicketIDs:   o.TicketIDs(),
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
	}
}
