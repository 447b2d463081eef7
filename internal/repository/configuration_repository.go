package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// ConfigurationRepo provides access to the configurations table.  At most
// one row is active; callers switch batches by deactivating every row and
// inserting or re-activating one inside the same transaction.
type ConfigurationRepo struct {
	db *sql.DB
}

// NewConfigurationRepo returns a ConfigurationRepo bound to db.
func NewConfigurationRepo(db *sql.DB) *ConfigurationRepo { return &ConfigurationRepo{db: db} }

const configurationColumns = `id, total_tickets, ticket_price, release_rate, retrieval_rate, max_capacity, is_active, created_at`

func scanConfiguration(s rowScanner) (model.Configuration, error) {
	var c model.Configuration
	err := s.Scan(&c.ID, &c.TotalTickets, &c.TicketPrice, &c.ReleaseRate, &c.RetrievalRate,
		&c.MaxCapacity, &c.IsActive, &c.CreatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

// CreateTx inserts c as the active configuration and populates its ID.
// Callers deactivate the previous one first.
func (r *ConfigurationRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.Configuration) error {
	c.CreatedAt = dbTime(c.CreatedAt)
	c.IsActive = true
	res, err := tx.ExecContext(ctx,
		`INSERT INTO configurations (total_tickets, ticket_price, release_rate, retrieval_rate, max_capacity, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.TotalTickets, c.TicketPrice, c.ReleaseRate, c.RetrievalRate, c.MaxCapacity, c.IsActive, c.CreatedAt)
	if err != nil {
		return storeErr("insert configuration", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("insert configuration", err)
	}
	c.ID = uint64(id)
	return nil
}

// DeactivateAllTx clears the active flag on every configuration and
// returns how many were active.
func (r *ConfigurationRepo) DeactivateAllTx(ctx context.Context, tx *sql.Tx) (int, error) {
	res, err := tx.ExecContext(ctx, `UPDATE configurations SET is_active = ? WHERE is_active = ?`, false, true)
	if err != nil {
		return 0, storeErr("deactivate configurations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("deactivate configurations", err)
	}
	return int(n), nil
}

// Active returns the active configuration or model.ErrNoActiveBatch.
func (r *ConfigurationRepo) Active(ctx context.Context) (model.Configuration, error) {
	c, err := scanConfiguration(r.db.QueryRowContext(ctx,
		`SELECT `+configurationColumns+` FROM configurations WHERE is_active = ? ORDER BY id DESC LIMIT 1`, true))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Configuration{}, model.ErrNoActiveBatch
	}
	return c, storeErr("get active configuration", err)
}

// ActivateLatestTx marks the most recently created configuration active
// and returns it.  It fails with model.ErrNoActiveBatch when no
// configuration was ever created.
func (r *ConfigurationRepo) ActivateLatestTx(ctx context.Context, tx *sql.Tx) (model.Configuration, error) {
	c, err := scanConfiguration(tx.QueryRowContext(ctx,
		`SELECT `+configurationColumns+` FROM configurations ORDER BY id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Configuration{}, model.ErrNoActiveBatch
	}
	if err != nil {
		return model.Configuration{}, storeErr("get latest configuration", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE configurations SET is_active = ? WHERE id = ?`, true, c.ID); err != nil {
		return model.Configuration{}, storeErr("activate configuration", err)
	}
	c.IsActive = true
	return c, nil
}
