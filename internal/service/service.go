// Package service implements the reservation engine on top of the
// inventory store: cart holds, expiry reclamation, booking, batch
// activation and inventory queries.
//
// Every mutation runs in one store transaction.  Concurrency control is
// entirely in the store's conditional updates; nothing here takes an
// in-process lock around inventory state.  After a transaction commits
// the availability notifier is told that counts may have changed.
package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/metrics"
	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/repository"
)

const (
	DefaultHoldTTL        = 15 * time.Minute
	DefaultReaperInterval = 60 * time.Second
	DefaultReaperBatch    = 500
)

// Notifier is told after every committed mutation that the available
// count may have changed.  Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context)
}

// OrderEvents receives orders after their transaction has committed.
type OrderEvents interface {
	OrderCreated(ctx context.Context, o model.Order) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context) {}

type nopEvents struct{}

func (nopEvents) OrderCreated(context.Context, model.Order) error { return nil }

// deps are the collaborators shared by every service.
type deps struct {
	store   *repository.Store
	clock   clock.Clock
	notify  Notifier
	events  OrderEvents
	metrics *metrics.Inventory
	log     zerolog.Logger

	holdTTL        time.Duration
	reaperInterval time.Duration
	reaperBatch    int
}

// Option configures a service.
type Option func(*deps)

// WithHoldTTL overrides the lifetime of new holds.
func WithHoldTTL(ttl time.Duration) Option {
	return func(d *deps) {
		if ttl > 0 {
			d.holdTTL = ttl
		}
	}
}

// WithNotifier sets the availability notifier.
func WithNotifier(n Notifier) Option {
	return func(d *deps) {
		if n != nil {
			d.notify = n
		}
	}
}

// WithOrderEvents sets the sink for created orders.
func WithOrderEvents(e OrderEvents) Option {
	return func(d *deps) {
		if e != nil {
			d.events = e
		}
	}
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *metrics.Inventory) Option {
	return func(d *deps) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *deps) { d.log = l }
}

// WithReaperInterval sets how often the reaper sweeps.
func WithReaperInterval(iv time.Duration) Option {
	return func(d *deps) {
		if iv > 0 {
			d.reaperInterval = iv
		}
	}
}

// WithReaperBatchSize caps the holds reclaimed per transaction.
func WithReaperBatchSize(n int) Option {
	return func(d *deps) {
		if n > 0 {
			d.reaperBatch = n
		}
	}
}

func newDeps(store *repository.Store, clk clock.Clock, opts []Option) deps {
	if clk == nil {
		clk = clock.NewSystem()
	}
	d := deps{
		store:          store,
		clock:          clk,
		notify:         nopNotifier{},
		events:         nopEvents{},
		log:            zerolog.Nop(),
		holdTTL:        DefaultHoldTTL,
		reaperInterval: DefaultReaperInterval,
		reaperBatch:    DefaultReaperBatch,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

var validate = validator.New()
