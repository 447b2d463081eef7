// Package repository is the inventory store: tickets, holds, orders,
// buyers and configurations on database/sql.  Every query uses '?'
// placeholders and takes the current time as a parameter so the same SQL
// runs on MySQL and SQLite.
//
// Driver failures are returned wrapped in model.ErrStoreUnavailable so that
// higher layers can tell a broken store from a business outcome.  Missing
// rows are mapped to the matching model sentinel.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("duplicate key")

// storeErr wraps a driver error so that errors.Is(err,
// model.ErrStoreUnavailable) holds and the cause is preserved.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}

// IsUniqueViolation reports whether err is a unique key violation from
// either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
