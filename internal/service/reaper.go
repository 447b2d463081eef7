package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/repository"
)

// Reaper returns the tickets of expired holds to the pool.
type Reaper struct {
	deps
}

// NewReaper returns a Reaper that sweeps every DefaultReaperInterval in
// batches of DefaultReaperBatch unless overridden by options.
func NewReaper(store *repository.Store, clk clock.Clock, opts ...Option) *Reaper {
	return &Reaper{deps: newDeps(store, clk, opts)}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A failed sweep is logged and retried on the next tick.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.reaperInterval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.reaperInterval).Int("batch_size", r.reaperBatch).Msg("reaper started")
	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	start := time.Now()
	released, err := r.RunOnce(ctx)
	r.metrics.ReaperRun(released, time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Error().Err(err).Int("released", released).Msg("reaper sweep failed")
		return
	}
	if released > 0 {
		r.log.Info().Int("released", released).Dur("took", time.Since(start)).Msg("expired holds reclaimed")
	}
}

// RunOnce reclaims every hold that has expired at the current clock time
// and returns how many tickets went back to available.  Each batch is one
// transaction; a hold consumed concurrently by checkout or release is
// skipped, so running it again right away finds nothing to do.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	now := r.clock.Now()
	released := 0
	var after uint64

	for {
		holds, err := r.store.Holds.ListExpired(ctx, now, after, r.reaperBatch)
		if err != nil {
			return released, err
		}
		if len(holds) == 0 {
			break
		}

		n := 0
		err = r.store.WithTx(ctx, func(tx *sql.Tx) error {
			n = 0
			for _, h := range holds {
				deleted, err := r.store.Holds.DeleteExpiredTx(ctx, tx, h.ID, now)
				if err != nil {
					return err
				}
				if !deleted {
					continue
				}
				reverted, err := r.store.Tickets.ReleaseHeldTx(ctx, tx, h.TicketID)
				if err != nil {
					return err
				}
				if reverted {
					n++
				}
			}
			return nil
		})
		if err != nil {
			return released, err
		}
		released += n
		if n > 0 {
			r.notify.Notify(ctx)
		}

		after = holds[len(holds)-1].ID
		if len(holds) < r.reaperBatch {
			break
		}
	}
	return released, nil
}
