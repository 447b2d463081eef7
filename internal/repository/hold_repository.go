package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// HoldRepo provides access to the holds table.  Every delete is
// conditional and reports whether it removed a row; only the caller whose
// delete hit the row may move the ticket out of the held state.  This is
// what keeps release, checkout and the reaper from double-reverting a
// ticket.  All comparisons use the now passed in by the caller.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a HoldRepo bound to db.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

const holdColumns = `id, customer_id, ticket_id, created_at, expires_at`

func scanHold(s rowScanner) (model.Hold, error) {
	var h model.Hold
	if err := s.Scan(&h.ID, &h.CustomerID, &h.TicketID, &h.CreatedAt, &h.ExpiresAt); err != nil {
		return model.Hold{}, err
	}
	h.CreatedAt = h.CreatedAt.UTC()
	h.ExpiresAt = h.ExpiresAt.UTC()
	return h, nil
}

// CreateTx inserts h and populates its ID.  A second hold on the same
// ticket fails with ErrDuplicate.
func (r *HoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h *model.Hold) error {
	h.CreatedAt = dbTime(h.CreatedAt)
	h.ExpiresAt = dbTime(h.ExpiresAt)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO holds (customer_id, ticket_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		h.CustomerID, h.TicketID, h.CreatedAt, h.ExpiresAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return storeErr("insert hold", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("insert hold", err)
	}
	h.ID = uint64(id)
	return nil
}

// GetByID returns the hold or model.ErrHoldNotFound.  Expired holds that
// have not been reaped yet are still returned.
func (r *HoldRepo) GetByID(ctx context.Context, id uint64) (model.Hold, error) {
	h, err := scanHold(r.db.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, model.ErrHoldNotFound
	}
	return h, storeErr("get hold", err)
}

// GetByIDTx is GetByID inside tx.
func (r *HoldRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Hold, error) {
	h, err := scanHold(tx.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, model.ErrHoldNotFound
	}
	return h, storeErr("get hold", err)
}

// DeleteTx removes the hold regardless of expiry.
func (r *HoldRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	return r.exec(ctx, tx, "delete hold", `DELETE FROM holds WHERE id = ?`, id)
}

// DeleteActiveTx removes the hold only while it belongs to customerID and
// has not expired at now.
func (r *HoldRepo) DeleteActiveTx(ctx context.Context, tx *sql.Tx, id, customerID uint64, now time.Time) (bool, error) {
	return r.exec(ctx, tx, "delete active hold",
		`DELETE FROM holds WHERE id = ? AND customer_id = ? AND expires_at > ?`,
		id, customerID, dbTime(now))
}

// DeleteExpiredTx removes the hold only if it has expired at now.
func (r *HoldRepo) DeleteExpiredTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) (bool, error) {
	return r.exec(ctx, tx, "delete expired hold",
		`DELETE FROM holds WHERE id = ? AND expires_at <= ?`,
		id, dbTime(now))
}

// DeleteExpiredByTicketTx removes an expired hold on ticketID, if any.
func (r *HoldRepo) DeleteExpiredByTicketTx(ctx context.Context, tx *sql.Tx, ticketID uint64, now time.Time) (bool, error) {
	return r.exec(ctx, tx, "reclaim expired hold",
		`DELETE FROM holds WHERE ticket_id = ? AND expires_at <= ?`,
		ticketID, dbTime(now))
}

func (r *HoldRepo) exec(ctx context.Context, tx *sql.Tx, op, q string, args ...interface{}) (bool, error) {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(op, err)
	}
	return n == 1, nil
}

// ListExpired returns up to limit holds with id > afterID that have
// expired at now, ordered by id.
func (r *HoldRepo) ListExpired(ctx context.Context, now time.Time, afterID uint64, limit int) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE expires_at <= ? AND id > ? ORDER BY id LIMIT ?`,
		dbTime(now), afterID, limit)
	if err != nil {
		return nil, storeErr("list expired holds", err)
	}
	defer rows.Close()
	holds := make([]model.Hold, 0, limit)
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, storeErr("scan hold", err)
		}
		holds = append(holds, h)
	}
	return holds, storeErr("list expired holds", rows.Err())
}

// ListActiveByCustomer returns the customer's holds that are still active
// at now together with their tickets, oldest first.
func (r *HoldRepo) ListActiveByCustomer(ctx context.Context, customerID uint64, now time.Time) ([]model.HeldTicket, error) {
	const q = `SELECT h.id, h.customer_id, h.ticket_id, h.created_at, h.expires_at,
	                  t.id, t.ticket_number, t.price, t.configuration_id, t.status, t.booked_at, t.created_at
	           FROM holds h
	           JOIN tickets t ON t.id = h.ticket_id
	           WHERE h.customer_id = ? AND h.expires_at > ?
	           ORDER BY h.created_at, h.id`
	rows, err := r.db.QueryContext(ctx, q, customerID, dbTime(now))
	if err != nil {
		return nil, storeErr("list holds", err)
	}
	defer rows.Close()
	out := []model.HeldTicket{}
	for rows.Next() {
		var (
			ht       model.HeldTicket
			status   string
			bookedAt sql.NullTime
		)
		if err := rows.Scan(
			&ht.Hold.ID, &ht.Hold.CustomerID, &ht.Hold.TicketID, &ht.Hold.CreatedAt, &ht.Hold.ExpiresAt,
			&ht.Ticket.ID, &ht.Ticket.TicketNumber, &ht.Ticket.Price, &ht.Ticket.ConfigurationID,
			&status, &bookedAt, &ht.Ticket.CreatedAt,
		); err != nil {
			return nil, storeErr("scan hold", err)
		}
		ht.Hold.CreatedAt = ht.Hold.CreatedAt.UTC()
		ht.Hold.ExpiresAt = ht.Hold.ExpiresAt.UTC()
		ht.Ticket.CreatedAt = ht.Ticket.CreatedAt.UTC()
		ht.Ticket.Status = model.TicketStatus(status)
		if bookedAt.Valid {
			ba := bookedAt.Time.UTC()
			ht.Ticket.BookedAt = &ba
		}
		out = append(out, ht)
	}
	return out, storeErr("list holds", rows.Err())
}

// CountActive returns the number of holds active at now.
func (r *HoldRepo) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM holds WHERE expires_at > ?`, dbTime(now)).Scan(&n)
	return n, storeErr("count holds", err)
}
