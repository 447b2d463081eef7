package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the state of an order.  Orders are created pending;
// settlement happens outside this service.
type OrderStatus string

const OrderPending OrderStatus = "pending"

// Order records the sale of one or more tickets.  Orders created from a
// cart hold reference the customer; orders created by direct booking
// reference the buyer record upserted from the supplied details.
//
// Fields:
//
//	ID          – primary key identifier.
//	OrderNumber – generated public order number.
//	CustomerID  – owning customer for checkout orders (nullable).
//	BuyerID     – buyer record for direct bookings (nullable).
//	Status      – order status, pending on creation.
//	TotalAmount – sum of the item prices.
//	CreatedAt   – creation timestamp.
//	Items       – order lines, one per ticket.
type Order struct {
	ID          uint64          // orders.id
	OrderNumber string          // orders.order_number
	CustomerID  *uint64         // orders.customer_id (nullable)
	BuyerID     *uint64         // orders.buyer_id (nullable)
	Status      OrderStatus     // orders.status
	TotalAmount decimal.Decimal // orders.total_amount
	CreatedAt   time.Time       // orders.created_at
	Items       []OrderItem
}

// TicketIDs returns the ids of the tickets sold under the order.
func (o Order) TicketIDs() []uint64 {
	ids := make([]uint64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.TicketID)
	}
	return ids
}

// OrderItem links an order to one ticket at the price it was sold for.  A
// ticket appears in at most one order item.
type OrderItem struct {
	ID       uint64          // order_items.id
	OrderID  uint64          // order_items.order_id
	TicketID uint64          // order_items.ticket_id
	Price    decimal.Decimal // order_items.price
}
