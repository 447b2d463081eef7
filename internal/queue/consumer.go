package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// OrderLogFile is the file the consumer appends to inside its directory.
const OrderLogFile = "orders.log"

// Consumer reads order events and appends one line per order to
// <dir>/orders.log.
type Consumer struct {
	url   string
	queue string
	dir   string
	log   zerolog.Logger

	mu sync.Mutex
}

// NewConsumer returns a Consumer for the broker at url writing into dir.
func NewConsumer(url, queue, dir string, log zerolog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if dir == "" {
		dir = "logs"
	}
	return &Consumer{url: url, queue: queue, dir: dir, log: log}
}

// Run connects to the broker and consumes until ctx is done, reconnecting
// with exponential backoff when the connection drops.  Messages that
// cannot be handled are rejected without requeue.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set qos failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info().Str("queue", c.queue).Str("dir", c.dir).Msg("consuming order events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.log.Error().Err(err).Msg("handle order event failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev OrderCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.OrderNumber == "" {
		return errors.New("event without order number")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, OrderLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatOrderLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatOrderLine(ev OrderCreatedEvent) string {
	owner := "anonymous"
	switch {
	case ev.CustomerID != nil:
		owner = "customer_id=" + strconv.FormatUint(*ev.CustomerID, 10)
	case ev.BuyerID != nil:
		owner = "buyer_id=" + strconv.FormatUint(*ev.BuyerID, 10)
	}
	ids := make([]string, 0, len(ev.TicketIDs))
	for _, id := range ev.TicketIDs {
		ids = append(ids, strconv.FormatUint(id, 10))
	}
	return fmt.Sprintf("[%s] Order created | order=%s | id=%d | %s | status=%s | total=%s | tickets=[%s]\n",
		ev.CreatedAt, ev.OrderNumber, ev.OrderID, owner, ev.Status, ev.TotalAmount, strings.Join(ids, ","))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
