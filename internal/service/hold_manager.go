package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/repository"
)

// HoldManager places and removes cart holds.
type HoldManager struct {
	deps
}

// NewHoldManager returns a HoldManager.  Holds last DefaultHoldTTL unless
// WithHoldTTL is given.
func NewHoldManager(store *repository.Store, clk clock.Clock, opts ...Option) *HoldManager {
	return &HoldManager{deps: newDeps(store, clk, opts)}
}

// HoldTTL reports the lifetime given to new holds.
func (m *HoldManager) HoldTTL() time.Duration { return m.holdTTL }

// Reserve holds ticketID for customerID.  An expired hold still sitting on
// the ticket is reclaimed first, so a ticket never stays blocked waiting
// for the reaper.  It fails with model.ErrTicketNotFound for unknown ids
// and model.ErrUnavailable when the ticket is held or booked.
func (m *HoldManager) Reserve(ctx context.Context, customerID, ticketID uint64) (model.Hold, error) {
	now := m.clock.Now()
	hold := model.Hold{
		CustomerID: customerID,
		TicketID:   ticketID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.holdTTL),
	}

	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		reclaimed, err := m.store.Holds.DeleteExpiredByTicketTx(ctx, tx, ticketID, now)
		if err != nil {
			return err
		}
		if reclaimed {
			if _, err := m.store.Tickets.ReleaseHeldTx(ctx, tx, ticketID); err != nil {
				return err
			}
		}

		moved, err := m.store.Tickets.MarkHeldTx(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if !moved {
			exists, err := m.store.Tickets.ExistsTx(ctx, tx, ticketID)
			if err != nil {
				return err
			}
			if !exists {
				return model.ErrTicketNotFound
			}
			return model.ErrUnavailable
		}

		if err := m.store.Holds.CreateTx(ctx, tx, &hold); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.ErrUnavailable
			}
			return err
		}
		return nil
	})
	m.metrics.Reservation(resultLabel(err))
	if err != nil {
		return model.Hold{}, err
	}

	m.log.Debug().
		Uint64("customer_id", customerID).
		Uint64("ticket_id", ticketID).
		Uint64("hold_id", hold.ID).
		Time("expires_at", hold.ExpiresAt).
		Msg("ticket held")
	m.notify.Notify(ctx)
	return hold, nil
}

// ListActiveHolds returns the customer's holds that have not expired,
// whether or not the reaper has visited them yet.
func (m *HoldManager) ListActiveHolds(ctx context.Context, customerID uint64) ([]model.HeldTicket, error) {
	return m.store.Holds.ListActiveByCustomer(ctx, customerID, m.clock.Now())
}

// Release deletes the hold and returns its ticket to the pool.  Releasing
// a hold that no longer exists is a no-op.
func (m *HoldManager) Release(ctx context.Context, holdID uint64) error {
	return m.release(ctx, holdID, nil)
}

// ReleaseFor is Release restricted to the hold's owner.  It fails with
// model.ErrNotOwner when the hold belongs to another customer.
func (m *HoldManager) ReleaseFor(ctx context.Context, customerID, holdID uint64) error {
	return m.release(ctx, holdID, &customerID)
}

func (m *HoldManager) release(ctx context.Context, holdID uint64, owner *uint64) error {
	released := false
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		h, err := m.store.Holds.GetByIDTx(ctx, tx, holdID)
		if errors.Is(err, model.ErrHoldNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if owner != nil && h.CustomerID != *owner {
			return model.ErrNotOwner
		}

		deleted, err := m.store.Holds.DeleteTx(ctx, tx, holdID)
		if err != nil || !deleted {
			return err
		}
		released, err = m.store.Tickets.ReleaseHeldTx(ctx, tx, h.TicketID)
		return err
	})
	if err != nil {
		return err
	}
	if released {
		m.log.Debug().Uint64("hold_id", holdID).Msg("hold released")
		m.notify.Notify(ctx)
	}
	return nil
}

// resultLabel maps an outcome to a metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, model.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, model.ErrTicketNotFound), errors.Is(err, model.ErrHoldNotFound):
		return "not_found"
	case errors.Is(err, model.ErrHoldExpired):
		return "hold_expired"
	case errors.Is(err, model.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, model.ErrInvalidQuantity), errors.Is(err, model.ErrInvalidBuyer):
		return "invalid"
	default:
		return "error"
	}
}
