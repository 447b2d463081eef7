package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// DefaultQueue is the durable queue order events are published to.
const DefaultQueue = "orders.created"

const (
	dialTimeout    = 2 * time.Second
	publishTimeout = 3 * time.Second
	defaultBacklog = 1024
)

// ErrBacklogFull is returned when events arrive faster than the broker
// accepts them.
var ErrBacklogFull = errors.New("order event backlog full")

// Publisher publishes OrderCreatedEvents to a durable queue.  OrderCreated
// only enqueues; Run drains the backlog so a slow or absent broker never
// delays a booking.  The broker connection is opened lazily and reopened
// after a failure.
type Publisher struct {
	url     string
	queue   string
	log     zerolog.Logger
	pending chan model.Order

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url, queue string, log zerolog.Logger) *Publisher {
	return newPublisher(url, queue, log, defaultBacklog)
}

func newPublisher(url, queue string, log zerolog.Logger, backlog int) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{url: url, queue: queue, log: log, pending: make(chan model.Order, backlog)}
}

// OrderCreated queues the event for o.
func (p *Publisher) OrderCreated(_ context.Context, o model.Order) error {
	select {
	case p.pending <- o:
		return nil
	default:
		return fmt.Errorf("%w: order %s", ErrBacklogFull, o.OrderNumber)
	}
}

// Run publishes queued events until ctx is done, then closes the broker
// connection.  Events still queued at shutdown are dropped and logged.
func (p *Publisher) Run(ctx context.Context) {
	defer p.Close()
	for {
		select {
		case <-ctx.Done():
			if n := len(p.pending); n > 0 {
				p.log.Warn().Int("dropped", n).Msg("order events not published before shutdown")
			}
			return
		case o := <-p.pending:
			if err := p.publish(ctx, o); err != nil {
				p.log.Error().Err(err).Str("order_number", o.OrderNumber).Msg("publish order event")
			}
		}
	}
}

// channel returns an open channel with the queue declared.  Callers hold
// p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// publish sends the event for o as a persistent JSON message.
func (p *Publisher) publish(ctx context.Context, o model.Order) error {
	body, err := json.Marshal(NewOrderCreatedEvent(o))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    o.OrderNumber,
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	p.log.Debug().Str("order_number", o.OrderNumber).Str("queue", p.queue).Msg("order event published")
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
