package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/repository"
)

// DefaultTicketPrice is used when a batch does not name a price.
var DefaultTicketPrice = decimal.RequireFromString("10.00")

// MaxBatchTickets caps the size of one batch.
const MaxBatchTickets = 100000

// BatchInput describes a new ticket batch.
type BatchInput struct {
	TotalTickets  int             `validate:"required,min=1"`
	TicketPrice   decimal.Decimal `validate:"-"`
	ReleaseRate   int             `validate:"required,min=1"`
	RetrievalRate int             `validate:"required,min=1"`
	MaxCapacity   int             `validate:"required,min=1,ltefield=TotalTickets"`
}

// BatchManager activates ticket batches.  Activating a batch is also how
// sales are switched on; with no active batch the sales gate rejects
// mutations.
type BatchManager struct {
	deps
}

// NewBatchManager returns a BatchManager.
func NewBatchManager(store *repository.Store, clk clock.Clock, opts ...Option) *BatchManager {
	return &BatchManager{deps: newDeps(store, clk, opts)}
}

// Activate deactivates the current batch, records the new one and creates
// its tickets, all in one transaction.  Tickets are numbered
// TICKET-<configuration id>-<n> starting at 1.
func (m *BatchManager) Activate(ctx context.Context, in BatchInput) (model.Configuration, error) {
	if err := validateBatch(in); err != nil {
		return model.Configuration{}, err
	}
	price := in.TicketPrice
	if price.IsZero() {
		price = DefaultTicketPrice
	}
	now := m.clock.Now()
	cfg := model.Configuration{
		TotalTickets:  in.TotalTickets,
		TicketPrice:   price,
		ReleaseRate:   in.ReleaseRate,
		RetrievalRate: in.RetrievalRate,
		MaxCapacity:   in.MaxCapacity,
		CreatedAt:     now,
	}

	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := m.store.Configurations.DeactivateAllTx(ctx, tx); err != nil {
			return err
		}
		if err := m.store.Configurations.CreateTx(ctx, tx, &cfg); err != nil {
			return err
		}
		tickets := make([]model.Ticket, 0, cfg.TotalTickets)
		for i := 1; i <= cfg.TotalTickets; i++ {
			tickets = append(tickets, model.Ticket{
				TicketNumber:    fmt.Sprintf("TICKET-%d-%d", cfg.ID, i),
				Price:           price,
				ConfigurationID: cfg.ID,
				Status:          model.TicketAvailable,
				CreatedAt:       now,
			})
		}
		return m.store.Tickets.CreateBulkTx(ctx, tx, tickets)
	})
	if err != nil {
		return model.Configuration{}, err
	}

	m.log.Info().
		Uint64("configuration_id", cfg.ID).
		Int("tickets", cfg.TotalTickets).
		Str("price", price.StringFixed(2)).
		Msg("batch activated")
	m.notify.Notify(ctx)
	return cfg, nil
}

// Active returns the active batch or model.ErrNoActiveBatch.
func (m *BatchManager) Active(ctx context.Context) (model.Configuration, error) {
	return m.store.Configurations.Active(ctx)
}

// Deactivate stops sales by clearing the active batch.  Existing holds and
// tickets are untouched.
func (m *BatchManager) Deactivate(ctx context.Context) error {
	var n int
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = m.store.Configurations.DeactivateAllTx(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}
	m.log.Info().Int("deactivated", n).Msg("sales stopped")
	return nil
}

// Reactivate resumes sales on the most recently created batch.
func (m *BatchManager) Reactivate(ctx context.Context) (model.Configuration, error) {
	var cfg model.Configuration
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := m.store.Configurations.DeactivateAllTx(ctx, tx); err != nil {
			return err
		}
		var err error
		cfg, err = m.store.Configurations.ActivateLatestTx(ctx, tx)
		return err
	})
	if err != nil {
		return model.Configuration{}, err
	}
	m.log.Info().Uint64("configuration_id", cfg.ID).Msg("sales resumed")
	return cfg, nil
}

// Toggle stops sales when a batch is active and resumes them otherwise.
// It reports whether sales are running afterwards.
func (m *BatchManager) Toggle(ctx context.Context) (bool, error) {
	_, err := m.Active(ctx)
	switch {
	case err == nil:
		return false, m.Deactivate(ctx)
	case errors.Is(err, model.ErrNoActiveBatch):
		if _, err := m.Reactivate(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}

func validateBatch(in BatchInput) error {
	if err := validate.Struct(in); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s failed %s", model.ErrInvalidBatch, toSnake(ve[0].Field()), ve[0].Tag())
		}
		return fmt.Errorf("%w: %v", model.ErrInvalidBatch, err)
	}
	if in.TotalTickets > MaxBatchTickets {
		return fmt.Errorf("%w: total_tickets above %d", model.ErrInvalidBatch, MaxBatchTickets)
	}
	if in.TicketPrice.IsNegative() {
		return fmt.Errorf("%w: ticket_price is negative", model.ErrInvalidBatch)
	}
	return nil
}

// toSnake converts a Go field name to the JSON field name used by clients.
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
