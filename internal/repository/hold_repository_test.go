package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/repository"
	"github.com/iliyamo/ticketing-system/internal/testutil"
)

func createHold(t *testing.T, store *repository.Store, customerID, ticketID uint64, created time.Time, ttl time.Duration) model.Hold {
	t.Helper()
	ctx := context.Background()
	h := model.Hold{CustomerID: customerID, TicketID: ticketID, CreatedAt: created, ExpiresAt: created.Add(ttl)}
	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		ok, err := store.Tickets.MarkHeldTx(ctx, tx, ticketID)
		require.NoError(t, err)
		require.True(t, ok)
		return store.Holds.CreateTx(ctx, tx, &h)
	}))
	return h
}

func TestHoldCreateAndGet(t *testing.T) {
	store, db := newStore(t)
	_, ids := testutil.SeedTickets(t, db, 1, "10.00")

	h := createHold(t, store, 7, ids[0], testutil.Epoch, 15*time.Minute)
	require.NotZero(t, h.ID)

	got, err := store.Holds.GetByID(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.CustomerID)
	assert.True(t, got.ExpiresAt.Equal(testutil.Epoch.Add(15*time.Minute)))

	_, err = store.Holds.GetByID(context.Background(), h.ID+100)
	assert.ErrorIs(t, err, model.ErrHoldNotFound)
}

func TestHoldOnePerTicket(t *testing.T) {
	store, db := newStore(t)
	_, ids := testutil.SeedTickets(t, db, 1, "10.00")
	createHold(t, store, 1, ids[0], testutil.Epoch, time.Minute)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		return store.Holds.CreateTx(ctx, tx, &model.Hold{CustomerID: 2, TicketID: ids[0], CreatedAt: testutil.Epoch, ExpiresAt: testutil.Epoch})
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestHoldConditionalDeletes(t *testing.T) {
	store, db := newStore(t)
	_, ids := testutil.SeedTickets(t, db, 1, "10.00")
	h := createHold(t, store, 1, ids[0], testutil.Epoch, time.Minute)
	ctx := context.Background()
	before := testutil.Epoch.Add(30 * time.Second)
	after := testutil.Epoch.Add(time.Minute)

	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		ok, err := store.Holds.DeleteExpiredTx(ctx, tx, h.ID, before)
		require.NoError(t, err)
		assert.False(t, ok, "not expired yet")

		ok, err = store.Holds.DeleteActiveTx(ctx, tx, h.ID, 2, before)
		require.NoError(t, err)
		assert.False(t, ok, "wrong customer")

		ok, err = store.Holds.DeleteActiveTx(ctx, tx, h.ID, 1, after)
		require.NoError(t, err)
		assert.False(t, ok, "expires_at == now counts as expired")

		ok, err = store.Holds.DeleteExpiredByTicketTx(ctx, tx, ids[0], after)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Holds.DeleteTx(ctx, tx, h.ID)
		require.NoError(t, err)
		assert.False(t, ok, "already gone")
		return nil
	}))
}

func TestListActiveByCustomer(t *testing.T) {
	store, db := newStore(t)
	_, ids := testutil.SeedTickets(t, db, 3, "10.00")
	createHold(t, store, 1, ids[0], testutil.Epoch, time.Minute)
	createHold(t, store, 1, ids[1], testutil.Epoch.Add(time.Second), 10*time.Minute)
	createHold(t, store, 2, ids[2], testutil.Epoch, 10*time.Minute)

	got, err := store.Holds.ListActiveByCustomer(context.Background(), 1, testutil.Epoch.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[1], got[0].Ticket.ID)
	assert.Equal(t, model.TicketHeld, got[0].Ticket.Status)

	got, err = store.Holds.ListActiveByCustomer(context.Background(), 3, testutil.Epoch)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListExpiredPaginates(t *testing.T) {
	store, db := newStore(t)
	_, ids := testutil.SeedTickets(t, db, 5, "10.00")
	for i, id := range ids {
		createHold(t, store, 1, id, testutil.Epoch, time.Duration(i+1)*time.Minute)
	}
	ctx := context.Background()
	now := testutil.Epoch.Add(4 * time.Minute)

	first, err := store.Holds.ListExpired(ctx, now, 0, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	rest, err := store.Holds.ListExpired(ctx, now, first[2].ID, 3)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[3], rest[0].TicketID)

	active, err := store.Holds.CountActive(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}
