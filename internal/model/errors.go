package model

import "errors"

// Outcome kinds shared by the store, the services and the HTTP layer.
// Callers compare with errors.Is; store failures wrap ErrStoreUnavailable
// and keep the driver error as a second cause.
var (
	ErrUnavailable           = errors.New("ticket unavailable")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrHoldExpired           = errors.New("hold expired")
	ErrHoldNotFound          = errors.New("hold not found")
	ErrNotOwner              = errors.New("hold belongs to another customer")
	ErrStoreUnavailable      = errors.New("store unavailable")

	ErrTicketNotFound  = errors.New("ticket not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrNoActiveBatch   = errors.New("no active configuration")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidBuyer    = errors.New("invalid buyer details")
	ErrInvalidBatch    = errors.New("invalid configuration")
)

// Retryable reports whether the caller may retry the failed operation.
// Only store failures qualify; every other kind is a final answer.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
