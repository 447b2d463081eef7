package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/testutil"
)

func TestReserveHoldsTicket(t *testing.T) {
	e := newEnv(t)
	ids := e.seed(t, 2)
	ctx := context.Background()

	h, err := e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)
	assert.NotZero(t, h.ID)
	assert.True(t, h.ExpiresAt.Equal(testutil.Epoch.Add(DefaultHoldTTL)))
	assert.Equal(t, "held", testutil.TicketStatus(t, e.db, ids[0]))
	assert.Equal(t, model.Counts{Total: 2, Available: 1, Held: 1}, e.counts(t))
	assert.EqualValues(t, 1, e.notifier.n.Load())
}

func TestReserveErrors(t *testing.T) {
	e := newEnv(t)
	ids := e.seed(t, 1)
	ctx := context.Background()

	_, err := e.holds.Reserve(ctx, 1, 9999)
	assert.ErrorIs(t, err, model.ErrTicketNotFound)

	_, err = e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)
	_, err = e.holds.Reserve(ctx, 2, ids[0])
	assert.ErrorIs(t, err, model.ErrUnavailable)
	_, err = e.holds.Reserve(ctx, 1, ids[0])
	assert.ErrorIs(t, err, model.ErrUnavailable, "same customer cannot hold twice either")
	assert.Equal(t, 1, testutil.CountRows(t, e.db, "holds"))
}

func TestReserveConcurrentSingleWinner(t *testing.T) {
	e := newEnv(t)
	ids := e.seed(t, 1)
	ctx := context.Background()

	const callers = 16
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins        int
		unavailable int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(customer uint64) {
			defer wg.Done()
			_, err := e.holds.Reserve(ctx, customer, ids[0])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, model.ErrUnavailable):
				unavailable++
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, unavailable)
	assert.Equal(t, 1, testutil.CountRows(t, e.db, "holds"))
}

func TestReleaseRoundTrip(t *testing.T) {
	e := newEnv(t)
	ids := e.seed(t, 1)
	ctx := context.Background()

	h, err := e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)
	require.NoError(t, e.holds.Release(ctx, h.ID))
	assert.Equal(t, "available", testutil.TicketStatus(t, e.db, ids[0]))
	assert.Equal(t, 0, testutil.CountRows(t, e.db, "holds"))

	// releasing again is a no-op
	require.NoError(t, e.holds.Release(ctx, h.ID))

	_, err = e.holds.Reserve(ctx, 2, ids[0])
	require.NoError(t, err)
}

func TestReleaseForChecksOwner(t *testing.T) {
	e := newEnv(t)
	ids := e.seed(t, 1)
	ctx := context.Background()

	h, err := e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)

	assert.ErrorIs(t, e.holds.ReleaseFor(ctx, 2, h.ID), model.ErrNotOwner)
	assert.Equal(t, "held", testutil.TicketStatus(t, e.db, ids[0]))

	require.NoError(t, e.holds.ReleaseFor(ctx, 1, h.ID))
	assert.Equal(t, "available", testutil.TicketStatus(t, e.db, ids[0]))
	require.NoError(t, e.holds.ReleaseFor(ctx, 1, h.ID))
}

func TestListActiveHoldsHonoursExpiry(t *testing.T) {
	e := newEnv(t, WithHoldTTL(time.Minute))
	ids := e.seed(t, 2)
	ctx := context.Background()

	_, err := e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)
	e.clock.Advance(30 * time.Second)
	_, err = e.holds.Reserve(ctx, 1, ids[1])
	require.NoError(t, err)

	active, err := e.holds.ListActiveHolds(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// exactly at expiry the first hold is gone, before any reaper run
	e.clock.Advance(30 * time.Second)
	active, err = e.holds.ListActiveHolds(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ids[1], active[0].Ticket.ID)
}

func TestReserveReclaimsExpiredHold(t *testing.T) {
	e := newEnv(t, WithHoldTTL(time.Minute))
	ids := e.seed(t, 1)
	ctx := context.Background()

	old, err := e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)
	e.clock.Advance(time.Minute)

	h, err := e.holds.Reserve(ctx, 2, ids[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.CustomerID)
	assert.Equal(t, "held", testutil.TicketStatus(t, e.db, ids[0]))

	_, err = e.booking.BookFromHold(ctx, 1, old.ID)
	assert.ErrorIs(t, err, model.ErrHoldNotFound)
}
