// Package metrics holds the prometheus collectors of the reservation
// engine.  A nil *Inventory is valid and records nothing, so services can
// run without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ticketing"

// Inventory records reservation, booking, reaper and availability feed
// activity.
type Inventory struct {
	reservations   *prometheus.CounterVec
	bookings       *prometheus.CounterVec
	ticketsBooked  *prometheus.CounterVec
	directRetries  prometheus.Counter
	reaperRuns     *prometheus.CounterVec
	reaperReleased prometheus.Counter
	reaperDuration prometheus.Histogram
	available      prometheus.Gauge
	subscribers    prometheus.Gauge
	broadcasts     prometheus.Counter
}

// NewInventory registers the collectors on reg.  A nil registerer yields a
// nil *Inventory.
func NewInventory(reg prometheus.Registerer) *Inventory {
	if reg == nil {
		return nil
	}
	m := &Inventory{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Cart hold attempts by result.",
		}, []string{"result"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by path (hold, direct) and result.",
		}, []string{"path", "result"}),
		ticketsBooked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_booked_total",
			Help:      "Tickets moved to booked by path.",
		}, []string{"path"}),
		directRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_direct_retries_total",
			Help:      "Direct booking attempts rolled back after losing a race to a concurrent writer.",
		}),
		reaperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_runs_total",
			Help:      "Expired hold sweeps by result.",
		}, []string{"result"}),
		reaperReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_released_total",
			Help:      "Tickets returned to the pool by the reaper.",
		}),
		reaperDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reaper_duration_seconds",
			Help:      "Duration of expired hold sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tickets_available",
			Help:      "Available tickets at the last availability broadcast.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "availability_subscribers",
			Help:      "Connected availability observers.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_broadcasts_total",
			Help:      "Availability counts pushed to observers.",
		}),
	}
	reg.MustRegister(
		m.reservations, m.bookings, m.ticketsBooked, m.directRetries,
		m.reaperRuns, m.reaperReleased, m.reaperDuration,
		m.available, m.subscribers, m.broadcasts,
	)
	return m
}

// Reservation counts one reserve attempt.
func (m *Inventory) Reservation(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(result)).Inc()
}

// Booking counts one booking attempt and, on success, its tickets.
func (m *Inventory) Booking(path, result string, tickets int) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(normalizeLabel(path), normalizeLabel(result)).Inc()
	if tickets > 0 {
		m.ticketsBooked.WithLabelValues(normalizeLabel(path)).Add(float64(tickets))
	}
}

// DirectRetry counts a rolled back direct booking attempt.
func (m *Inventory) DirectRetry() {
	if m == nil {
		return
	}
	m.directRetries.Inc()
}

// ReaperRun records one sweep.
func (m *Inventory) ReaperRun(released int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.reaperDuration.Observe(d.Seconds())
	m.reaperReleased.Add(float64(released))
	if err != nil {
		m.reaperRuns.WithLabelValues("failure").Inc()
		return
	}
	m.reaperRuns.WithLabelValues("success").Inc()
}

// Broadcast records a pushed availability count.
func (m *Inventory) Broadcast(available int) {
	if m == nil {
		return
	}
	m.available.Set(float64(available))
	m.broadcasts.Inc()
}

// Subscribers sets the number of connected observers.
func (m *Inventory) Subscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
