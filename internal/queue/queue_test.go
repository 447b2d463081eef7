package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-system/internal/model"
	"github.com/iliyamo/ticketing-system/internal/testutil"
)

func sampleOrder() model.Order {
	buyer := uint64(3)
	return model.Order{
		ID:          11,
		OrderNumber: "ORD-20250301-ABCDEF12",
		BuyerID:     &buyer,
		Status:      model.OrderPending,
		TotalAmount: decimal.NewFromInt(20),
		CreatedAt:   testutil.Epoch,
		Items: []model.OrderItem{
			{TicketID: 4, Price: decimal.NewFromInt(10)},
			{TicketID: 5, Price: decimal.NewFromInt(10)},
		},
	}
}

func TestNewOrderCreatedEvent(t *testing.T) {
	ev := NewOrderCreatedEvent(sampleOrder())
	assert.Equal(t, "20.00", ev.TotalAmount)
	assert.Equal(t, []uint64{4, 5}, ev.TicketIDs)
	assert.Equal(t, "2025-03-01T12:00:00Z", ev.CreatedAt)
	assert.Nil(t, ev.CustomerID)

	body, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "customer_id")
}

func TestConsumerAppendsOrderLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c := NewConsumer("amqp://unused", "", dir, zerolog.Nop())

	body, err := json.Marshal(NewOrderCreatedEvent(sampleOrder()))
	require.NoError(t, err)
	require.NoError(t, c.handleMessage(body))
	require.NoError(t, c.handleMessage(body))

	data, err := os.ReadFile(filepath.Join(dir, OrderLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"[2025-03-01T12:00:00Z] Order created | order=ORD-20250301-ABCDEF12 | id=11 | buyer_id=3 | status=pending | total=20.00 | tickets=[4,5]",
		lines[0])
}

func TestConsumerRejectsBadMessages(t *testing.T) {
	c := NewConsumer("amqp://unused", "", t.TempDir(), zerolog.Nop())
	assert.Error(t, c.handleMessage([]byte("{not json")))
	assert.Error(t, c.handleMessage([]byte(`{"order_id": 1}`)))
}

func TestPublisherBacklogBounded(t *testing.T) {
	p := newPublisher("amqp://unused", "", zerolog.Nop(), 2)
	o := sampleOrder()
	require.NoError(t, p.OrderCreated(context.Background(), o))
	require.NoError(t, p.OrderCreated(context.Background(), o))
	assert.ErrorIs(t, p.OrderCreated(context.Background(), o), ErrBacklogFull)
}

func TestPublisherRunStopsWithContext(t *testing.T) {
	p := newPublisher("amqp://unused", "", zerolog.Nop(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); p.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
