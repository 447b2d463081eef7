package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func setup(driver string) (string, error) {
	var dialect string
	switch driver {
	case DriverMySQL:
		dialect = "mysql"
	case DriverSQLite:
		dialect = "sqlite3"
	default:
		return "", fmt.Errorf("unsupported db driver %q", driver)
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	return "migrations/" + driver, nil
}

// Run executes a goose command (up, down, status, redo, reset) against the
// embedded migrations for the driver.
func Run(ctx context.Context, db *sql.DB, driver, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := setup(driver)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Migrate applies every pending migration and returns the schema version.
func Migrate(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	if err := Run(ctx, db, driver, "up"); err != nil {
		return 0, err
	}
	return Version(db, driver)
}

// Version reports the current schema version.
func Version(db *sql.DB, driver string) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if _, err := setup(driver); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// MigrateToVersion migrates up or down until the schema is at target.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", targetVersion, err)
	}
	current, err := Version(db, driver)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	dir, err := setup(driver)
	if err != nil {
		return err
	}
	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}
