package model

import "time"

// Hold is a time-boxed cart reservation of a single ticket.  While a
// non-expired hold exists its ticket is in the held state; a ticket has at
// most one hold row at a time.  Expiry is data driven: a hold whose
// ExpiresAt is not after the current time is treated as released even
// before the reaper deletes it.
//
// Fields:
//
//	ID         – primary key identifier.
//	CustomerID – authenticated customer who owns the hold.
//	TicketID   – ticket being held.
//	CreatedAt  – when the hold was created.
//	ExpiresAt  – CreatedAt plus the hold TTL.
type Hold struct {
	ID         uint64    // holds.id
	CustomerID uint64    // holds.customer_id
	TicketID   uint64    // holds.ticket_id
	CreatedAt  time.Time // holds.created_at
	ExpiresAt  time.Time // holds.expires_at
}

// ExpiredAt reports whether the hold is no longer active at now.
func (h Hold) ExpiredAt(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// HeldTicket pairs an active hold with the ticket it reserves.  It is what
// a customer sees when listing their cart.
type HeldTicket struct {
	Hold   Hold
	Ticket Ticket
}
