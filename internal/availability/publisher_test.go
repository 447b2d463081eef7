package availability

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	n    atomic.Int64
	fail atomic.Bool
}

func (f *fakeCounter) Available(context.Context) (int, error) {
	if f.fail.Load() {
		return 0, errors.New("store down")
	}
	return int(f.n.Load()), nil
}

func receive(t *testing.T, sub *Subscription) int {
	t.Helper()
	select {
	case n, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no value received")
		return 0
	}
}

func startPublisher(t *testing.T, p *Publisher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestSubscribeGetsCurrentCount(t *testing.T) {
	c := &fakeCounter{}
	c.n.Store(42)
	p := NewPublisher(c, NewLocalBus())

	sub := p.Subscribe(context.Background())
	assert.Equal(t, 42, receive(t, sub))
	assert.Equal(t, 1, p.Subscribers())
}

func TestChangeNotificationBroadcasts(t *testing.T) {
	c := &fakeCounter{}
	c.n.Store(5)
	bus := NewLocalBus()
	p := NewPublisher(c, bus, WithHeartbeat(time.Hour))
	startPublisher(t, p)

	a := p.Subscribe(context.Background())
	b := p.Subscribe(context.Background())
	assert.Equal(t, 5, receive(t, a))
	assert.Equal(t, 5, receive(t, b))

	c.n.Store(4)
	bus.Notify(context.Background())
	assert.Equal(t, 4, receive(t, a))
	assert.Equal(t, 4, receive(t, b))
}

func TestHeartbeatBroadcastsWithoutChanges(t *testing.T) {
	c := &fakeCounter{}
	c.n.Store(3)
	p := NewPublisher(c, nil, WithHeartbeat(20*time.Millisecond))
	startPublisher(t, p)

	sub := p.Subscribe(context.Background())
	assert.Equal(t, 3, receive(t, sub))
	c.n.Store(2)
	assert.Eventually(t, func() bool {
		select {
		case n := <-sub.C:
			return n == 2
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSlowSubscriberKeepsLatestOnly(t *testing.T) {
	c := &fakeCounter{}
	p := NewPublisher(c, nil)
	sub := p.Subscribe(context.Background())

	for i := 1; i <= 10; i++ {
		p.publish(i)
	}
	assert.Equal(t, 10, receive(t, sub))
	select {
	case n := <-sub.C:
		t.Fatalf("unexpected stale value %d", n)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	c := &fakeCounter{}
	p := NewPublisher(c, nil)
	sub := p.Subscribe(context.Background())
	<-sub.C

	p.Unsubscribe(sub)
	p.Unsubscribe(sub)
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, p.Subscribers())

	assert.NotPanics(t, func() { p.publish(1) })
}

func TestSubscribeFallsBackToLastValue(t *testing.T) {
	c := &fakeCounter{}
	p := NewPublisher(c, nil)
	p.publish(9)
	c.fail.Store(true)

	sub := p.Subscribe(context.Background())
	assert.Equal(t, 9, receive(t, sub))
}

func TestRunClosesSubscriptionsOnStop(t *testing.T) {
	c := &fakeCounter{}
	p := NewPublisher(c, NewLocalBus(), WithHeartbeat(time.Hour))
	cancel := startPublisher(t, p)

	sub := p.Subscribe(context.Background())
	<-sub.C
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	late := p.Subscribe(context.Background())
	_, ok := <-late.C
	assert.False(t, ok)
}

func TestLocalBusCoalesces(t *testing.T) {
	bus := NewLocalBus()
	for i := 0; i < 5; i++ {
		bus.Notify(context.Background())
	}
	<-bus.Changes()
	select {
	case <-bus.Changes():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestRedisBusRelaysNotifications(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	pingCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}

	bus := NewRedisBus(rdb, zerolog.Nop())
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = bus.Run(ctx) }()

	require.Eventually(t, func() bool {
		bus.Notify(context.Background())
		select {
		case <-bus.Changes():
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisBusNotifyDoesNotBlock(t *testing.T) {
	bus := NewRedisBus(unreachableRedis(t), zerolog.Nop())

	start := time.Now()
	for i := 0; i < 100; i++ {
		bus.Notify(context.Background())
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Len(t, bus.pending, 1, "queued publishes should coalesce")
}

func TestRedisBusPublishFailureSignalsLocally(t *testing.T) {
	bus := NewRedisBus(unreachableRedis(t), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.publishLoop(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	bus.Notify(context.Background())
	select {
	case <-bus.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("failed publish should still signal local observers")
	}
}
