package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/repository"
)

const (
	// maxDirectAttempts bounds how often BookDirect re-reads the pool after
	// losing a race for one of its selected tickets.
	maxDirectAttempts = 3
	// maxOrderNumberAttempts bounds order number regeneration on collision.
	maxOrderNumberAttempts = 3
)

// errLostRace rolls back a direct booking attempt that lost a concurrent
// writer's race: its conditional update moved fewer tickets than selected,
// or another transaction registered the buyer's email first.
var errLostRace = errors.New("direct booking lost a concurrent race")

// BookingCoordinator turns holds or raw inventory into orders.
type BookingCoordinator struct {
	deps
}

// NewBookingCoordinator returns a BookingCoordinator.
func NewBookingCoordinator(store *repository.Store, clk clock.Clock, opts ...Option) *BookingCoordinator {
	return &BookingCoordinator{deps: newDeps(store, clk, opts)}
}

// BookFromHold converts the customer's hold into a pending order for its
// ticket.  Expiry is checked against the clock, so a hold the reaper has
// not reached yet still fails with model.ErrHoldExpired.
func (b *BookingCoordinator) BookFromHold(ctx context.Context, customerID, holdID uint64) (model.Order, error) {
	now := b.clock.Now()
	var order model.Order

	err := b.store.WithTx(ctx, func(tx *sql.Tx) error {
		h, err := b.store.Holds.GetByIDTx(ctx, tx, holdID)
		if err != nil {
			return err
		}
		if h.CustomerID != customerID {
			return model.ErrNotOwner
		}
		if h.ExpiredAt(now) {
			return model.ErrHoldExpired
		}

		deleted, err := b.store.Holds.DeleteActiveTx(ctx, tx, h.ID, customerID, now)
		if err != nil {
			return err
		}
		if !deleted {
			return model.ErrHoldNotFound
		}
		booked, err := b.store.Tickets.BookHeldTx(ctx, tx, h.TicketID, now)
		if err != nil {
			return err
		}
		if !booked {
			return model.ErrUnavailable
		}

		t, err := b.store.Tickets.GetByIDTx(ctx, tx, h.TicketID)
		if err != nil {
			return err
		}
		order, err = b.createOrderTx(ctx, tx, now, &customerID, nil, []model.Ticket{t})
		return err
	})
	b.metrics.Booking("hold", resultLabel(err), len(order.Items))
	if err != nil {
		return model.Order{}, err
	}

	b.log.Info().
		Uint64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Uint64("customer_id", customerID).
		Uint64("hold_id", holdID).
		Msg("hold checked out")
	b.afterCommit(ctx, order)
	return order, nil
}

// BookDirect books count available tickets for the buyer without a cart.
// The lowest available ids are taken; either every requested ticket is
// booked or none is.  When another writer takes a selected ticket first
// the attempt is rolled back and retried with a fresh read.  Once the
// retries are spent the pool is counted again, so a real shortage still
// reports model.ErrInsufficientInventory.
func (b *BookingCoordinator) BookDirect(ctx context.Context, buyer model.BuyerDetails, count int) (model.Order, error) {
	if count < 1 {
		return model.Order{}, model.ErrInvalidQuantity
	}
	buyer, err := normalizeBuyer(buyer)
	if err != nil {
		return model.Order{}, err
	}

	for attempt := 1; attempt <= maxDirectAttempts; attempt++ {
		order, err := b.bookDirectOnce(ctx, buyer, count)
		if errors.Is(err, errLostRace) {
			b.metrics.DirectRetry()
			b.log.Debug().Int("attempt", attempt).Int("count", count).Msg("direct booking lost a race, retrying")
			continue
		}
		b.metrics.Booking("direct", resultLabel(err), len(order.Items))
		if err != nil {
			return model.Order{}, err
		}

		b.log.Info().
			Uint64("order_id", order.ID).
			Str("order_number", order.OrderNumber).
			Int("tickets", len(order.Items)).
			Msg("direct booking")
		b.afterCommit(ctx, order)
		return order, nil
	}
	err = model.ErrUnavailable
	if available, cerr := b.store.Tickets.CountAvailable(ctx); cerr == nil && available < count {
		err = model.ErrInsufficientInventory
	}
	b.log.Warn().Int("count", count).Err(err).Msg("direct booking retries exhausted")
	b.metrics.Booking("direct", resultLabel(err), 0)
	return model.Order{}, err
}

func (b *BookingCoordinator) bookDirectOnce(ctx context.Context, buyer model.BuyerDetails, count int) (model.Order, error) {
	now := b.clock.Now()
	var order model.Order

	err := b.store.WithTx(ctx, func(tx *sql.Tx) error {
		available, err := b.store.Tickets.CountAvailableTx(ctx, tx)
		if err != nil {
			return err
		}
		if available < count {
			return model.ErrInsufficientInventory
		}
		ids, err := b.store.Tickets.AvailableIDsTx(ctx, tx, count)
		if err != nil {
			return err
		}
		if len(ids) < count {
			return errLostRace
		}
		n, err := b.store.Tickets.BookAvailableTx(ctx, tx, ids, now)
		if err != nil {
			return err
		}
		if n != count {
			return errLostRace
		}

		tickets, err := b.store.Tickets.ListByIDsTx(ctx, tx, ids)
		if err != nil {
			return err
		}
		rec, err := b.store.Buyers.UpsertTx(ctx, tx, buyer, now)
		if errors.Is(err, repository.ErrDuplicate) {
			return errLostRace
		}
		if err != nil {
			return err
		}
		order, err = b.createOrderTx(ctx, tx, now, nil, &rec.ID, tickets)
		return err
	})
	return order, err
}

// Order returns an order with its items.
func (b *BookingCoordinator) Order(ctx context.Context, orderID uint64) (model.Order, error) {
	return b.store.Orders.GetByID(ctx, orderID)
}

func (b *BookingCoordinator) createOrderTx(ctx context.Context, tx *sql.Tx, now time.Time, customerID, buyerID *uint64, tickets []model.Ticket) (model.Order, error) {
	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(tickets))
	for _, t := range tickets {
		total = total.Add(t.Price)
		items = append(items, model.OrderItem{TicketID: t.ID, Price: t.Price})
	}

	o := model.Order{
		CustomerID:  customerID,
		BuyerID:     buyerID,
		Status:      model.OrderPending,
		TotalAmount: total,
		CreatedAt:   now,
	}
	var err error
	for i := 0; i < maxOrderNumberAttempts; i++ {
		o.OrderNumber = newOrderNumber(now)
		if err = b.store.Orders.CreateTx(ctx, tx, &o); !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return model.Order{}, err
	}

	o.Items, err = b.store.Orders.CreateItemsBulkTx(ctx, tx, o.ID, items)
	if errors.Is(err, repository.ErrDuplicate) {
		// A ticket already sold under another order; the store is out of
		// step with ticket status.
		return model.Order{}, model.ErrUnavailable
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (b *BookingCoordinator) afterCommit(ctx context.Context, o model.Order) {
	b.notify.Notify(ctx)
	if err := b.events.OrderCreated(ctx, o); err != nil {
		b.log.Warn().Err(err).Uint64("order_id", o.ID).Msg("publish order event failed")
	}
}

// newOrderNumber returns ORD-<yyyymmdd>-<8 hex chars>.
func newOrderNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(id[:8]))
}

func normalizeBuyer(d model.BuyerDetails) (model.BuyerDetails, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Phone = strings.TrimSpace(d.Phone)
	if err := validate.Struct(d); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return d, fmt.Errorf("%w: %s failed %s", model.ErrInvalidBuyer, strings.ToLower(ve[0].Field()), ve[0].Tag())
		}
		return d, fmt.Errorf("%w: %v", model.ErrInvalidBuyer, err)
	}
	return d, nil
}
