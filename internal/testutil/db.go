// Package testutil builds throwaway databases for tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-system/internal/database"
)

var dbSeq atomic.Uint64

// Epoch is a fixed UTC instant tests use as "now".
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewTestDB opens a private in-memory SQLite database with the schema
// applied.  The pool is limited to one connection, so a test must not use
// the *sql.DB while it holds an open transaction on it.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb_%d_%d?mode=memory&cache=shared&_busy_timeout=5000",
		time.Now().UnixNano(), dbSeq.Add(1))
	db, err := database.Open(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.Migrate(context.Background(), db, database.DriverSQLite)
	require.NoError(t, err)
	return db
}

// SeedTickets creates an active configuration with n available tickets at
// the given price and returns the configuration id and ticket ids in
// ascending order.
func SeedTickets(t testing.TB, db *sql.DB, n int, price string) (uint64, []uint64) {
	t.Helper()
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `UPDATE configurations SET is_active = 0`)
	require.NoError(t, err)
	res, err := db.ExecContext(ctx,
		`INSERT INTO configurations (total_tickets, ticket_price, release_rate, retrieval_rate, max_capacity, is_active, created_at)
		 VALUES (?, ?, 1, 1, ?, 1, ?)`, n, price, n, Epoch)
	require.NoError(t, err)
	cfgID, err := res.LastInsertId()
	require.NoError(t, err)

	ids := make([]uint64, 0, n)
	for i := 1; i <= n; i++ {
		res, err := db.ExecContext(ctx,
			`INSERT INTO tickets (ticket_number, price, configuration_id, status, created_at) VALUES (?, ?, ?, 'available', ?)`,
			fmt.Sprintf("TICKET-%d-%d", cfgID, i), price, cfgID, Epoch)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		ids = append(ids, uint64(id))
	}
	return uint64(cfgID), ids
}

// TicketStatus reads the raw status column of a ticket.
func TicketStatus(t testing.TB, db *sql.DB, id uint64) string {
	t.Helper()
	var s string
	require.NoError(t, db.QueryRow(`SELECT status FROM tickets WHERE id = ?`, id).Scan(&s))
	return s
}

// CountRows returns SELECT COUNT(*) FROM table.
func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
