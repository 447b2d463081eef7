package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// ticketInsertChunk bounds the rows of one multi-row INSERT so a large
// batch stays below the drivers' placeholder limits.
const ticketInsertChunk = 500

const ticketColumns = `id, ticket_number, price, configuration_id, status, booked_at, created_at`

// TicketRepo provides access to the tickets table.  Status transitions are
// conditional updates: each one names the state it expects to leave and
// reports whether a row actually moved, so concurrent callers racing for
// the same ticket get exactly one winner without row locks.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(s rowScanner) (model.Ticket, error) {
	var (
		t        model.Ticket
		status   string
		bookedAt sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.TicketNumber, &t.Price, &t.ConfigurationID, &status, &bookedAt, &t.CreatedAt); err != nil {
		return model.Ticket{}, err
	}
	t.Status = model.TicketStatus(status)
	if bookedAt.Valid {
		ba := bookedAt.Time.UTC()
		t.BookedAt = &ba
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// GetByID returns the ticket or model.ErrTicketNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, model.ErrTicketNotFound
	}
	return t, storeErr("get ticket", err)
}

// GetByIDTx is GetByID inside tx.
func (r *TicketRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Ticket, error) {
	t, err := scanTicket(tx.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, model.ErrTicketNotFound
	}
	return t, storeErr("get ticket", err)
}

// ListByIDsTx returns the tickets with the given ids ordered by id.
func (r *TicketRepo) ListByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.Ticket, error) {
	if len(ids) == 0 {
		return []model.Ticket{}, nil
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		idArgs(ids)...)
	if err != nil {
		return nil, storeErr("list tickets", err)
	}
	defer rows.Close()
	out := make([]model.Ticket, 0, len(ids))
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, storeErr("scan ticket", err)
		}
		out = append(out, t)
	}
	return out, storeErr("list tickets", rows.Err())
}

// MarkHeldTx moves a ticket available -> held.  It returns false when the
// ticket is missing or not available.
func (r *TicketRepo) MarkHeldTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	return r.transition(ctx, tx, id, model.TicketAvailable, model.TicketHeld, nil)
}

// ReleaseHeldTx moves a ticket held -> available.
func (r *TicketRepo) ReleaseHeldTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	return r.transition(ctx, tx, id, model.TicketHeld, model.TicketAvailable, nil)
}

// BookHeldTx moves a ticket held -> booked and stamps booked_at.
func (r *TicketRepo) BookHeldTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) (bool, error) {
	at := dbTime(now)
	return r.transition(ctx, tx, id, model.TicketHeld, model.TicketBooked, &at)
}

func (r *TicketRepo) transition(ctx context.Context, tx *sql.Tx, id uint64, from, to model.TicketStatus, bookedAt *time.Time) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if bookedAt != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE tickets SET status = ?, booked_at = ? WHERE id = ? AND status = ?`,
			string(to), *bookedAt, id, string(from))
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE tickets SET status = ? WHERE id = ? AND status = ?`,
			string(to), id, string(from))
	}
	if err != nil {
		return false, storeErr("update ticket status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("update ticket status", err)
	}
	return n == 1, nil
}

// BookAvailableTx moves every listed ticket that is still available to
// booked in a single statement and returns how many rows changed.  A result
// smaller than len(ids) means another writer took some of them first.
func (r *TicketRepo) BookAvailableTx(ctx context.Context, tx *sql.Tx, ids []uint64, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, string(model.TicketBooked), dbTime(now), string(model.TicketAvailable))
	args = append(args, idArgs(ids)...)
	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET status = ?, booked_at = ? WHERE status = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return 0, storeErr("book tickets", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("book tickets", err)
	}
	return int(n), nil
}

// ExistsTx reports whether a ticket with id exists.
func (r *TicketRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("ticket exists", err)
	}
	return true, nil
}

// CountAvailable returns the number of available tickets.
func (r *TicketRepo) CountAvailable(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE status = ?`, string(model.TicketAvailable)).Scan(&n)
	return n, storeErr("count available", err)
}

// CountAvailableTx is CountAvailable inside tx.
func (r *TicketRepo) CountAvailableTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE status = ?`, string(model.TicketAvailable)).Scan(&n)
	return n, storeErr("count available", err)
}

// AvailableIDsTx returns up to limit available ticket ids in ascending
// order.
func (r *TicketRepo) AvailableIDsTx(ctx context.Context, tx *sql.Tx, limit int) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM tickets WHERE status = ? ORDER BY id LIMIT ?`,
		string(model.TicketAvailable), limit)
	if err != nil {
		return nil, storeErr("select available", err)
	}
	defer rows.Close()
	ids := make([]uint64, 0, limit)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan ticket id", err)
		}
		ids = append(ids, id)
	}
	return ids, storeErr("select available", rows.Err())
}

// Counts groups the pool by status.
func (r *TicketRepo) Counts(ctx context.Context) (model.Counts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return model.Counts{}, storeErr("count tickets", err)
	}
	defer rows.Close()
	var c model.Counts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return model.Counts{}, storeErr("scan counts", err)
		}
		switch model.TicketStatus(status) {
		case model.TicketAvailable:
			c.Available = n
		case model.TicketHeld:
			c.Held = n
		case model.TicketBooked:
			c.Booked = n
		}
		c.Total += n
	}
	return c, storeErr("count tickets", rows.Err())
}

// CreateBulkTx inserts tickets with multi-row INSERT statements of at most
// ticketInsertChunk rows each.  IDs of the passed tickets are not
// populated.
func (r *TicketRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	for start := 0; start < len(tickets); start += ticketInsertChunk {
		end := start + ticketInsertChunk
		if end > len(tickets) {
			end = len(tickets)
		}
		chunk := tickets[start:end]

		var q strings.Builder
		q.WriteString(`INSERT INTO tickets (ticket_number, price, configuration_id, status, created_at) VALUES `)
		args := make([]interface{}, 0, len(chunk)*5)
		for i, t := range chunk {
			if i > 0 {
				q.WriteString(",")
			}
			q.WriteString("(?, ?, ?, ?, ?)")
			status := t.Status
			if status == "" {
				status = model.TicketAvailable
			}
			args = append(args, t.TicketNumber, t.Price, t.ConfigurationID, string(status), dbTime(t.CreatedAt))
		}
		if _, err := tx.ExecContext(ctx, q.String(), args...); err != nil {
			return storeErr("insert tickets", err)
		}
	}
	return nil
}
