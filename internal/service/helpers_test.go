package service

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/repository"
	"github.com/iliyamo/ticketing-system/internal/testutil"
)

type countingNotifier struct{ n atomic.Int64 }

func (c *countingNotifier) Notify(context.Context) { c.n.Add(1) }

type recordingEvents struct {
	mu     sync.Mutex
	orders []model.Order
}

func (r *recordingEvents) OrderCreated(_ context.Context, o model.Order) error {
	r.mu.Lock()
	r.orders = append(r.orders, o)
	r.mu.Unlock()
	return nil
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type env struct {
	db       *sql.DB
	store    *repository.Store
	clock    *clock.Manual
	notifier *countingNotifier
	events   *recordingEvents

	holds   *HoldManager
	booking *BookingCoordinator
	reaper  *Reaper
	batches *BatchManager
	inv     *Inventory
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	db := testutil.NewTestDB(t)
	e := &env{
		db:       db,
		store:    repository.NewStore(db),
		clock:    clock.NewManual(testutil.Epoch),
		notifier: &countingNotifier{},
		events:   &recordingEvents{},
	}
	all := append([]Option{WithNotifier(e.notifier), WithOrderEvents(e.events)}, opts...)
	e.holds = NewHoldManager(e.store, e.clock, all...)
	e.booking = NewBookingCoordinator(e.store, e.clock, all...)
	e.reaper = NewReaper(e.store, e.clock, all...)
	e.batches = NewBatchManager(e.store, e.clock, all...)
	e.inv = NewInventory(e.store, e.clock, all...)
	return e
}

func (e *env) seed(t *testing.T, n int) []uint64 {
	t.Helper()
	_, ids := testutil.SeedTickets(t, e.db, n, "10.00")
	return ids
}

func (e *env) counts(t *testing.T) model.Counts {
	t.Helper()
	c, err := e.inv.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	return c
}

var buyerAna = model.BuyerDetails{Name: "Ana", Email: "ana@example.com", Phone: "555-0100"}
