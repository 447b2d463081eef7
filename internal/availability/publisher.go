// Package availability pushes the live available-ticket count to
// observers.  One loop owns broadcasting: it wakes on store change
// notifications and on a heartbeat, reads the count once and fans it out.
package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticketing-system/internal/metrics"
)

// DefaultHeartbeat is how often the count is pushed without a change.
const DefaultHeartbeat = 5 * time.Second

// Counter reads the current number of available tickets.
type Counter interface {
	Available(ctx context.Context) (int, error)
}

// Subscription receives available counts on C.  C holds only the most
// recent value, so a slow reader skips stale counts instead of stalling
// the broadcast.  C is closed by Unsubscribe or when the publisher stops.
type Subscription struct {
	ID string
	C  <-chan int

	c chan int
}

// Publisher fans the available count out to subscribers.
type Publisher struct {
	counter   Counter
	feed      Feed
	heartbeat time.Duration
	log       zerolog.Logger
	metrics   *metrics.Inventory

	mu      sync.Mutex
	subs    map[string]*Subscription
	last    int
	hasLast bool
	stopped bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHeartbeat overrides DefaultHeartbeat.
func WithHeartbeat(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.heartbeat = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *metrics.Inventory) Option {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher returns a Publisher reading counts from counter and waking
// on feed.
func NewPublisher(counter Counter, feed Feed, opts ...Option) *Publisher {
	p := &Publisher{
		counter:   counter,
		feed:      feed,
		heartbeat: DefaultHeartbeat,
		log:       zerolog.Nop(),
		subs:      make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers an observer.  The current count is queued on C
// before Subscribe returns.  If the count cannot be read the last
// broadcast value is used, and nothing is queued when there is none yet.
func (p *Publisher) Subscribe(ctx context.Context) *Subscription {
	c := make(chan int, 1)
	sub := &Subscription{ID: uuid.NewString(), C: c, c: c}

	n, err := p.counter.Available(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		close(c)
		return sub
	}
	switch {
	case err == nil:
		c <- n
	case p.hasLast:
		p.log.Warn().Err(err).Msg("read available count for new subscriber")
		c <- p.last
	default:
		p.log.Warn().Err(err).Msg("read available count for new subscriber")
	}
	p.subs[sub.ID] = sub
	p.metrics.Subscribers(len(p.subs))
	return sub
}

// Unsubscribe removes the observer and closes its channel.  It is safe to
// call more than once.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[sub.ID]; !ok {
		return
	}
	delete(p.subs, sub.ID)
	close(sub.c)
	p.metrics.Subscribers(len(p.subs))
}

// Subscribers returns the number of registered observers.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Run broadcasts on every change signal and heartbeat until ctx is done,
// then closes every subscription.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()
	defer p.stop()

	var changes <-chan struct{}
	if p.feed != nil {
		changes = p.feed.Changes()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			p.broadcast(ctx)
		case <-ticker.C:
			p.broadcast(ctx)
		}
	}
}

func (p *Publisher) broadcast(ctx context.Context) {
	n, err := p.counter.Available(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("read available count")
		}
		return
	}
	p.publish(n)
}

func (p *Publisher) publish(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last, p.hasLast = n, true
	for _, sub := range p.subs {
		offer(sub.c, n)
	}
	p.metrics.Broadcast(n)
}

// offer replaces whatever is buffered in c with n.  Only the publisher
// sends on c, under p.mu, so the second send cannot block.
func offer(c chan int, n int) {
	select {
	case c <- n:
		return
	default:
	}
	select {
	case <-c:
	default:
	}
	select {
	case c <- n:
	default:
	}
}

func (p *Publisher) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for id, sub := range p.subs {
		delete(p.subs, id)
		close(sub.c)
	}
	p.metrics.Subscribers(0)
}
