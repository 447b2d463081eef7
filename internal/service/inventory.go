package service

import (
	"context"

	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/repository"
)

// Inventory answers read-only questions about the pool.
type Inventory struct {
	deps
}

// NewInventory returns an Inventory.
func NewInventory(store *repository.Store, clk clock.Clock, opts ...Option) *Inventory {
	return &Inventory{deps: newDeps(store, clk, opts)}
}

// Counts groups the pool by status.
func (i *Inventory) Counts(ctx context.Context) (model.Counts, error) {
	return i.store.Tickets.Counts(ctx)
}

// Available returns the number of available tickets.
func (i *Inventory) Available(ctx context.Context) (int, error) {
	return i.store.Tickets.CountAvailable(ctx)
}

// Ticket returns one ticket or model.ErrTicketNotFound.
func (i *Inventory) Ticket(ctx context.Context, id uint64) (model.Ticket, error) {
	return i.store.Tickets.GetByID(ctx, id)
}

// ActiveHolds returns how many holds are live right now.
func (i *Inventory) ActiveHolds(ctx context.Context) (int, error) {
	return i.store.Holds.CountActive(ctx, i.clock.Now())
}
