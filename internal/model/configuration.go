package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Configuration is one activation of a fixed-size ticket batch.  At most
// one configuration is active at a time.  ReleaseRate and RetrievalRate
// are stored for operators but no reservation or booking logic reads them.
//
// Fields:
//
//	ID            – primary key identifier.
//	TotalTickets  – number of tickets created for the batch.
//	TicketPrice   – price given to every ticket of the batch.
//	ReleaseRate   – operator metadata.
//	RetrievalRate – operator metadata.
//	MaxCapacity   – operator metadata, never above TotalTickets.
//	IsActive      – whether this is the active batch.
//	CreatedAt     – creation timestamp.
type Configuration struct {
	ID            uint64          // configurations.id
	TotalTickets  int             // configurations.total_tickets
	TicketPrice   decimal.Decimal // configurations.ticket_price
	ReleaseRate   int             // configurations.release_rate
	RetrievalRate int             // configurations.retrieval_rate
	MaxCapacity   int             // configurations.max_capacity
	IsActive      bool            // configurations.is_active
	CreatedAt     time.Time       // configurations.created_at
}
