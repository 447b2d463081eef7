package model

import "time"

// Buyer is the identity record created for direct bookings that bypass
// the cart.  Buyers are keyed by email: booking again with the same email
// reuses the existing record.
type Buyer struct {
	ID        uint64    // buyers.id
	Name      string    // buyers.name
	Email     string    // buyers.email (unique)
	Phone     string    // buyers.phone
	CreatedAt time.Time // buyers.created_at
}

// BuyerDetails is the caller-supplied identity for a direct booking.
type BuyerDetails struct {
	Name  string `validate:"required,max=255"`
	Email string `validate:"required,email,max=255"`
	Phone string `validate:"omitempty,max=32"`
}
