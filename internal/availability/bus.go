package availability

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Channel is the Redis pub/sub channel inventory changes are announced on.
const Channel = "inventory:changed"

// Feed delivers a signal whenever the inventory may have changed.  Signals
// coalesce: several changes before the reader wakes up arrive as one.
type Feed interface {
	Changes() <-chan struct{}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// LocalBus is an in-process change feed.  Notify never blocks.
type LocalBus struct {
	ch chan struct{}
}

// NewLocalBus returns an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{ch: make(chan struct{}, 1)}
}

// Notify records that the inventory changed.
func (b *LocalBus) Notify(context.Context) { signal(b.ch) }

// Changes implements Feed.
func (b *LocalBus) Changes() <-chan struct{} { return b.ch }

// RedisBus shares change notifications between server processes through
// Redis PUBLISH/SUBSCRIBE.  Notify only queues a publish, so it never
// blocks; Run issues the queued publishes and relays messages from every
// process, this one included, to Changes.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	pending chan struct{}
	ch      chan struct{}
	log     zerolog.Logger
}

// NewRedisBus returns a RedisBus on Channel.
func NewRedisBus(rdb *redis.Client, log zerolog.Logger) *RedisBus {
	return &RedisBus{
		rdb:     rdb,
		channel: Channel,
		pending: make(chan struct{}, 1),
		ch:      make(chan struct{}, 1),
		log:     log,
	}
}

// publishTimeout bounds one PUBLISH.
const publishTimeout = 500 * time.Millisecond

// Notify queues a change message.  Notifications made while a publish is
// queued coalesce into it.
func (b *RedisBus) Notify(context.Context) { signal(b.pending) }

// Changes implements Feed.
func (b *RedisBus) Changes() <-chan struct{} { return b.ch }

// Run subscribes to the channel and relays messages until ctx is done.
// Queued notifications are published from a separate goroutine for as
// long as Run is active.
func (b *RedisBus) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.publishLoop(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	msgs := sub.Channel()
	b.log.Info().Str("channel", b.channel).Msg("subscribed to inventory changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-msgs:
			if !ok {
				return nil
			}
			signal(b.ch)
		}
	}
}

func (b *RedisBus) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.pending:
			b.publish(ctx)
		}
	}
}

// publish sends one change message.  Failures are logged; the heartbeat
// still corrects remote observers within one interval.
func (b *RedisBus) publish(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, "changed").Err(); err != nil {
		b.log.Warn().Err(err).Str("channel", b.channel).Msg("publish inventory change failed")
		// keep local observers current even when Redis is down
		signal(b.ch)
	}
}
