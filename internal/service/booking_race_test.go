package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	ptestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-system/internal/metrics"
	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/testutil"
)

// retryHook calls onRetry after each rolled back direct booking attempt.
// The hook runs on the booking goroutine once the attempt's transaction is
// closed, so it can change the database between attempts.
type retryHook struct {
	n       int
	onRetry func(n int)
}

func (h *retryHook) Run(_ *zerolog.Event, _ zerolog.Level, msg string) {
	if msg != "direct booking lost a race, retrying" {
		return
	}
	h.n++
	if h.onRetry != nil {
		h.onRetry(h.n)
	}
}

// newRaceEnv returns an env whose booking retries are observable through
// the returned hook and registry.
func newRaceEnv(t *testing.T) (*env, *retryHook, *prometheus.Registry) {
	t.Helper()
	hook := &retryHook{}
	reg := prometheus.NewRegistry()
	log := zerolog.New(io.Discard).Level(zerolog.DebugLevel).Hook(hook)
	return newEnv(t, WithLogger(log), WithMetrics(metrics.NewInventory(reg))), hook, reg
}

// skipBooking makes every update that books ticket id a silent no-op, the
// way a concurrent writer taking it between select and update would look.
func skipBooking(t *testing.T, db *sql.DB, id uint64) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`CREATE TRIGGER skip_booking BEFORE UPDATE OF status ON tickets
		WHEN OLD.id = %d AND NEW.status = 'booked'
		BEGIN SELECT RAISE(IGNORE); END`, id))
	require.NoError(t, err)
}

// raceBuyerInsert registers a competing buyer with the same email right
// before each buyer insert, so the insert hits the unique key.
func raceBuyerInsert(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`CREATE TRIGGER race_buyer BEFORE INSERT ON buyers
		WHEN NEW.name <> 'Winner'
		BEGIN INSERT INTO buyers (name, email, phone, created_at) VALUES ('Winner', NEW.email, '', NEW.created_at); END`)
	require.NoError(t, err)
}

func dropTrigger(t *testing.T, db *sql.DB, name string) {
	t.Helper()
	_, err := db.Exec("DROP TRIGGER " + name)
	require.NoError(t, err)
}

func assertDirectRetries(t *testing.T, reg *prometheus.Registry, n int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP ticketing_book_direct_retries_total Direct booking attempts rolled back after losing a race to a concurrent writer.
# TYPE ticketing_book_direct_retries_total counter
ticketing_book_direct_retries_total %d
`, n)
	assert.NoError(t, ptestutil.GatherAndCompare(reg, strings.NewReader(expected), "ticketing_book_direct_retries_total"))
}

func TestBookDirectRetriesWhenTicketTaken(t *testing.T) {
	e, hook, reg := newRaceEnv(t)
	ids := e.seed(t, 5)
	skipBooking(t, e.db, ids[0])
	hook.onRetry = func(int) {
		assert.Equal(t, model.Counts{Total: 5, Available: 5}, e.counts(t))
		assert.Equal(t, 0, testutil.CountRows(t, e.db, "orders"))
		assert.Equal(t, 0, testutil.CountRows(t, e.db, "buyers"))
		dropTrigger(t, e.db, "skip_booking")
	}

	o, err := e.booking.BookDirect(context.Background(), buyerAna, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, hook.n)
	require.Len(t, o.Items, 2)
	assert.Equal(t, ids[0], o.Items[0].TicketID)
	assert.Equal(t, ids[1], o.Items[1].TicketID)
	assert.Equal(t, model.Counts{Total: 5, Available: 3, Booked: 2}, e.counts(t))
	assert.Equal(t, 1, testutil.CountRows(t, e.db, "orders"))
	assert.Equal(t, 2, testutil.CountRows(t, e.db, "order_items"))
	assert.Equal(t, 1, e.events.count())
	assertDirectRetries(t, reg, 1)
}

func TestBookDirectRetriesExhausted(t *testing.T) {
	e, hook, reg := newRaceEnv(t)
	ids := e.seed(t, 5)
	skipBooking(t, e.db, ids[0])

	_, err := e.booking.BookDirect(context.Background(), buyerAna, 2)
	assert.ErrorIs(t, err, model.ErrUnavailable)
	assert.NotErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Equal(t, maxDirectAttempts, hook.n)
	assert.Equal(t, model.Counts{Total: 5, Available: 5}, e.counts(t))
	assert.Equal(t, 0, testutil.CountRows(t, e.db, "orders"))
	assert.Equal(t, 0, testutil.CountRows(t, e.db, "buyers"))
	assert.Equal(t, 0, e.events.count())
	assertDirectRetries(t, reg, maxDirectAttempts)
}

func TestBookDirectRetriesExhaustedReportsShortage(t *testing.T) {
	e, hook, _ := newRaceEnv(t)
	ids := e.seed(t, 5)
	skipBooking(t, e.db, ids[0])
	hook.onRetry = func(n int) {
		if n != maxDirectAttempts {
			return
		}
		_, err := e.db.Exec(`UPDATE tickets SET status = 'booked' WHERE id IN (?, ?, ?, ?)`,
			ids[1], ids[2], ids[3], ids[4])
		require.NoError(t, err)
	}

	_, err := e.booking.BookDirect(context.Background(), buyerAna, 2)
	assert.ErrorIs(t, err, model.ErrInsufficientInventory)
	assert.Equal(t, model.Counts{Total: 5, Available: 1, Booked: 4}, e.counts(t))
	assert.Equal(t, 0, testutil.CountRows(t, e.db, "orders"))
}

func TestBookDirectRetriesWhenBuyerRegisteredConcurrently(t *testing.T) {
	e, hook, reg := newRaceEnv(t)
	e.seed(t, 3)
	raceBuyerInsert(t, e.db)
	hook.onRetry = func(int) {
		assert.Equal(t, model.Counts{Total: 3, Available: 3}, e.counts(t))
		assert.Equal(t, 0, testutil.CountRows(t, e.db, "buyers"))
		dropTrigger(t, e.db, "race_buyer")
	}

	o, err := e.booking.BookDirect(context.Background(), buyerAna, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hook.n)
	require.NotNil(t, o.BuyerID)
	assert.Equal(t, 1, testutil.CountRows(t, e.db, "buyers"))
	assert.Equal(t, model.Counts{Total: 3, Available: 2, Booked: 1}, e.counts(t))
	assertDirectRetries(t, reg, 1)
}

func TestBookDirectBuyerRaceNeverSurfacesStoreError(t *testing.T) {
	e, hook, _ := newRaceEnv(t)
	e.seed(t, 3)
	raceBuyerInsert(t, e.db)

	_, err := e.booking.BookDirect(context.Background(), buyerAna, 1)
	assert.ErrorIs(t, err, model.ErrUnavailable)
	assert.NotErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Equal(t, maxDirectAttempts, hook.n)
	assert.Equal(t, model.Counts{Total: 3, Available: 3}, e.counts(t))
	assert.Equal(t, 0, testutil.CountRows(t, e.db, "buyers"))
}
