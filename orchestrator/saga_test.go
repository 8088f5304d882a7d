package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/backbone/common/broker"
	"github.com/orderflow/backbone/common/events"
	"github.com/orderflow/backbone/common/metrics"
)

type fakePublisher struct {
	published []published
	failNext  bool
}

type published struct {
	routingKey    string
	payload       []byte
	correlationID string
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, payload []byte, correlationID string) error {
	if f.failNext {
		f.failNext = false
		return assert.AnError
	}
	f.published = append(f.published, published{routingKey, payload, correlationID})
	return nil
}

var testMetricsSeq int64

func newTestSaga() (*Saga, *fakePublisher, *SnapshotStore) {
	pub := &fakePublisher{}
	store := NewSnapshotStore(time.Minute)
	seq := atomic.AddInt64(&testMetricsSeq, 1)
	m := metrics.NewSagaMetrics(fmt.Sprintf("orchestrator_test_%d", seq))
	return New(pub, store, m), pub, store
}

func TestSaga_Start_PublishesStockReservationRequest(t *testing.T) {
	saga, pub, store := newTestSaga()

	evt := events.OrderPlacedEvent{
		EventBase: events.EventBase{EventID: "e1", CorrelationID: "corr-1"},
		OrderID:   "order-1",
		UserID:    "user-1",
		Items:     []events.OrderLineItem{{ProductID: "p1", Quantity: 2}},
	}
	require.NoError(t, saga.Start(context.Background(), evt))

	require.Len(t, pub.published, 1)
	assert.Equal(t, broker.RKStockReservationRequest, pub.published[0].routingKey)
	assert.Equal(t, "corr-1", pub.published[0].correlationID)

	var req events.StockReservationRequestedEvent
	require.NoError(t, json.Unmarshal(pub.published[0].payload, &req))
	assert.Equal(t, "order-1", req.OrderID)

	_, ok := store.Consume("order-1")
	assert.True(t, ok, "Start must cache a snapshot for the later terminal event")
}

func TestSaga_OnStockReserved_PublishesOrderConfirmed(t *testing.T) {
	saga, pub, _ := newTestSaga()

	require.NoError(t, saga.Start(context.Background(), events.OrderPlacedEvent{
		EventBase:     events.EventBase{CorrelationID: "corr-1"},
		OrderID:       "order-1",
		CustomerEmail: "a@b.com",
	}))
	pub.published = nil

	require.NoError(t, saga.OnStockReserved(context.Background(), events.StockReservedCompletedEvent{OrderID: "order-1"}))

	require.Len(t, pub.published, 1)
	assert.Equal(t, broker.RKOrderConfirmed, pub.published[0].routingKey)

	var confirmed events.OrderConfirmedEvent
	require.NoError(t, json.Unmarshal(pub.published[0].payload, &confirmed))
	assert.Equal(t, "a@b.com", confirmed.CustomerEmail)
}

func TestSaga_OnStockFailed_PublishesOrderCancelled(t *testing.T) {
	saga, pub, _ := newTestSaga()

	require.NoError(t, saga.Start(context.Background(), events.OrderPlacedEvent{
		EventBase: events.EventBase{CorrelationID: "corr-1"},
		OrderID:   "order-1",
	}))
	pub.published = nil

	require.NoError(t, saga.OnStockFailed(context.Background(), events.StockReservationFailedEvent{
		OrderID: "order-1",
		Reason:  "insufficient stock",
		FailedItems: []events.FailedLineItem{
			{ProductID: "p1", Requested: 5, Available: 2, Reason: "insufficient stock"},
		},
	}))

	require.Len(t, pub.published, 1)
	assert.Equal(t, broker.RKOrderCancelled, pub.published[0].routingKey)

	var cancelled events.OrderCancelledEvent
	require.NoError(t, json.Unmarshal(pub.published[0].payload, &cancelled))
	assert.Equal(t, "insufficient stock", cancelled.Reason)
	require.Len(t, cancelled.Items, 1)
	assert.Equal(t, "p1", cancelled.Items[0].ProductID)
}

func TestSaga_OnStockReserved_NoSnapshot_IsSilentNoOp(t *testing.T) {
	saga, pub, _ := newTestSaga()

	err := saga.OnStockReserved(context.Background(), events.StockReservedCompletedEvent{OrderID: "unknown"})
	assert.NoError(t, err)
	assert.Empty(t, pub.published)
}

func TestSaga_OnStockReserved_DuplicateDelivery_SecondCallIsNoOp(t *testing.T) {
	saga, pub, _ := newTestSaga()

	require.NoError(t, saga.Start(context.Background(), events.OrderPlacedEvent{OrderID: "order-1"}))
	require.NoError(t, saga.OnStockReserved(context.Background(), events.StockReservedCompletedEvent{OrderID: "order-1"}))

	published := len(pub.published)
	require.NoError(t, saga.OnStockReserved(context.Background(), events.StockReservedCompletedEvent{OrderID: "order-1"}))
	assert.Len(t, pub.published, published, "redelivered terminal event must not publish again")
}

func TestSaga_OnStockReserved_PublishFailure_RecachesSnapshotForRetry(t *testing.T) {
	saga, pub, store := newTestSaga()

	require.NoError(t, saga.Start(context.Background(), events.OrderPlacedEvent{OrderID: "order-1"}))
	pub.failNext = true

	err := saga.OnStockReserved(context.Background(), events.StockReservedCompletedEvent{OrderID: "order-1"})
	assert.Error(t, err)

	_, ok := store.Consume("order-1")
	assert.True(t, ok, "a failed publish must re-cache the snapshot so a redelivery can retry")
}
