package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the lifecycle state of a ticket.  A ticket moves
// available -> held -> booked through a cart hold, available -> booked
// through direct booking, and held -> available when a hold is released
// or reclaimed.  Booked is terminal.
type TicketStatus string

const (
	TicketAvailable TicketStatus = "available"
	TicketHeld      TicketStatus = "held"
	TicketBooked    TicketStatus = "booked"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketAvailable, TicketHeld, TicketBooked:
		return true
	}
	return false
}

// Ticket is a single numbered ticket in the pool.  Tickets are created in
// bulk when a configuration batch is activated and are never deleted.
//
// Fields:
//
//	ID              – primary key identifier.
//	TicketNumber    – human readable number, unique and never reused.
//	Price           – price charged when the ticket is booked.
//	ConfigurationID – batch that created the ticket.
//	Status          – available, held or booked.
//	BookedAt        – when the ticket was booked (nil until then).
//	CreatedAt       – creation timestamp.
type Ticket struct {
	ID              uint64          // tickets.id
	TicketNumber    string          // tickets.ticket_number
	Price           decimal.Decimal // tickets.price
	ConfigurationID uint64          // tickets.configuration_id
	Status          TicketStatus    // tickets.status
	BookedAt        *time.Time      // tickets.booked_at (nullable)
	CreatedAt       time.Time       // tickets.created_at
}

// Counts is a snapshot of the pool grouped by status.  Available, Held and
// Booked always sum to Total.
type Counts struct {
	Total     int
	Available int
	Held      int
	Booked    int
}
