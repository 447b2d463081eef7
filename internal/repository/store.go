package repository

import (
	"context"
	"database/sql"
	"time"
)

// Store bundles the repositories over one database handle and owns
// transaction handling.  Methods with a Tx suffix run inside a caller
// supplied transaction; the others use the pool directly and must not be
// called while the caller holds an open transaction.
type Store struct {
	db *sql.DB

	Tickets        *TicketRepo
	Holds          *HoldRepo
	Orders         *OrderRepo
	Buyers         *BuyerRepo
	Configurations *ConfigurationRepo
}

// NewStore returns a Store bound to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:             db,
		Tickets:        NewTicketRepo(db),
		Holds:          NewHoldRepo(db),
		Orders:         NewOrderRepo(db),
		Buyers:         NewBuyerRepo(db),
		Configurations: NewConfigurationRepo(db),
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return storeErr("ping", s.db.PingContext(ctx))
}

// WithTx runs fn inside a transaction.  The transaction is committed when
// fn returns nil and rolled back on any error or panic.  Errors returned by
// fn are passed through untouched; begin and commit failures are store
// errors.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit tx", err)
	}
	committed = true
	return nil
}

// dbTime normalises a timestamp to the precision the schema stores.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

func idArgs(ids []uint64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
