package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/testutil"
)

func TestReaperReclaimsOnlyExpired(t *testing.T) {
	e := newEnv(t, WithHoldTTL(time.Minute), WithReaperBatchSize(2))
	ids := e.seed(t, 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := e.holds.Reserve(ctx, 1, ids[i])
		require.NoError(t, err)
	}
	e.clock.Advance(30 * time.Second)
	_, err := e.holds.Reserve(ctx, 2, ids[4])
	require.NoError(t, err)

	e.clock.Advance(45 * time.Second)
	released, err := e.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, released)
	assert.Equal(t, model.Counts{Total: 5, Available: 4, Held: 1}, e.counts(t))

	again, err := e.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, again, "second run is a no-op")
	assert.Equal(t, model.Counts{Total: 5, Available: 4, Held: 1}, e.counts(t))
}

func TestReaperSkipsCheckedOutHold(t *testing.T) {
	e := newEnv(t, WithHoldTTL(time.Minute))
	ids := e.seed(t, 1)
	ctx := context.Background()

	h, err := e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)
	_, err = e.booking.BookFromHold(ctx, 1, h.ID)
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	released, err := e.reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Equal(t, "booked", testutil.TicketStatus(t, e.db, ids[0]))
}

func TestReaperRunStopsWithContext(t *testing.T) {
	e := newEnv(t, WithHoldTTL(time.Minute), WithReaperInterval(10*time.Millisecond))
	ids := e.seed(t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := e.holds.Reserve(ctx, 1, ids[0])
	require.NoError(t, err)
	e.clock.Advance(2 * time.Minute)

	done := make(chan struct{})
	go func() {
		e.reaper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		var status string
		if err := e.db.QueryRow(`SELECT status FROM tickets WHERE id = ?`, ids[0]).Scan(&status); err != nil {
			return false
		}
		return status == "available"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestReaperReportsStoreFailure(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.db.Close())

	_, err := e.reaper.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, model.Retryable(err))
}
