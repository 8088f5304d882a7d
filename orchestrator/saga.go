// Package orchestrator implements the saga orchestrator: it listens for
// OrderPlaced, dispatches a stock reservation request, and drives the order
// to Confirmed or Cancelled based on the reply.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/backbone/common/broker"
	"github.com/orderflow/backbone/common/events"
	"github.com/orderflow/backbone/common/metrics"
)

// publisher is the surface of *broker.Conn the saga needs; narrowing to an
// interface lets tests exercise the state machine with a fake.
type publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte, correlationID string) error
}

// Saga coordinates the OrderPlaced -> StockReservationRequested ->
// {StockReserved, StockReservationFailed} -> {OrderConfirmed, OrderCancelled}
// flow described by the state machine in the orchestrator's design.
type Saga struct {
	conn    publisher
	store   *SnapshotStore
	metrics *metrics.SagaMetrics
}

// New builds a Saga over conn and store.
func New(conn publisher, store *SnapshotStore, m *metrics.SagaMetrics) *Saga {
	return &Saga{conn: conn, store: store, metrics: m}
}

// Start handles OrderPlaced: PendingStock has no prior instance, so this
// always creates one, caches the snapshot, and asks Product to reserve
// stock.
func (s *Saga) Start(ctx context.Context, evt events.OrderPlacedEvent) error {
	snap := Snapshot{
		OrderID:       evt.OrderID,
		UserID:        evt.UserID,
		OrderNumber:   evt.OrderNumber,
		CustomerName:  evt.CustomerName,
		CustomerEmail: evt.CustomerEmail,
		PhoneNumber:   evt.PhoneNumber,
		TotalAmount:   evt.TotalAmount,
		Items:         evt.Items,
		CorrelationID: evt.CorrelationID,
	}
	s.store.Put(snap)

	req := events.StockReservationRequestedEvent{
		EventBase: events.EventBase{EventID: uuid.NewString(), Timestamp: time.Now().UTC(), CorrelationID: evt.CorrelationID},
		OrderID:   evt.OrderID,
		UserID:    evt.UserID,
		Items:     evt.Items,
	}
	if err := s.publish(ctx, broker.RKStockReservationRequest, req, evt.CorrelationID); err != nil {
		return fmt.Errorf("publish stock reservation requested: %w", err)
	}

	slog.Info("saga started", "order_id", evt.OrderID, "correlation_id", evt.CorrelationID)
	return nil
}

// OnStockReserved handles PendingStock -> Confirmed. A missing snapshot
// means either an unknown orderId or a duplicate delivery of a terminal
// event; both are silent no-ops.
func (s *Saga) OnStockReserved(ctx context.Context, evt events.StockReservedCompletedEvent) error {
	snap, ok := s.store.Consume(evt.OrderID)
	if !ok {
		s.metrics.DroppedDuplicate.Inc()
		slog.Info("stock reserved for unknown or already-consumed saga, dropping", "order_id", evt.OrderID)
		return nil
	}

	confirmed := events.OrderConfirmedEvent{
		EventBase:     events.EventBase{EventID: uuid.NewString(), Timestamp: time.Now().UTC(), CorrelationID: snap.CorrelationID},
		OrderID:       snap.OrderID,
		UserID:        snap.UserID,
		OrderNumber:   snap.OrderNumber,
		CustomerName:  snap.CustomerName,
		CustomerEmail: snap.CustomerEmail,
		PhoneNumber:   snap.PhoneNumber,
		TotalAmount:   snap.TotalAmount,
		Items:         snap.Items,
	}
	if err := s.publish(ctx, broker.RKOrderConfirmed, confirmed, snap.CorrelationID); err != nil {
		// Re-cache so a redelivered StockReserved can retry the publish;
		// the consumer's retry policy republishes this message.
		s.store.Put(snap)
		return fmt.Errorf("publish order confirmed: %w", err)
	}

	s.metrics.Confirmed.Inc()
	slog.Info("saga confirmed", "order_id", evt.OrderID, "correlation_id", snap.CorrelationID)
	return nil
}

// OnStockFailed handles PendingStock -> Cancelled.
func (s *Saga) OnStockFailed(ctx context.Context, evt events.StockReservationFailedEvent) error {
	snap, ok := s.store.Consume(evt.OrderID)
	if !ok {
		s.metrics.DroppedDuplicate.Inc()
		slog.Info("stock failure for unknown or already-consumed saga, dropping", "order_id", evt.OrderID)
		return nil
	}

	cancelled := events.OrderCancelledEvent{
		EventBase:     events.EventBase{EventID: uuid.NewString(), Timestamp: time.Now().UTC(), CorrelationID: snap.CorrelationID},
		OrderID:       snap.OrderID,
		UserID:        snap.UserID,
		OrderNumber:   snap.OrderNumber,
		CustomerName:  snap.CustomerName,
		CustomerEmail: snap.CustomerEmail,
		PhoneNumber:   snap.PhoneNumber,
		TotalAmount:   snap.TotalAmount,
		Reason:        evt.Reason,
		Items:         evt.FailedItems,
	}
	if err := s.publish(ctx, broker.RKOrderCancelled, cancelled, snap.CorrelationID); err != nil {
		s.store.Put(snap)
		return fmt.Errorf("publish order cancelled: %w", err)
	}

	s.metrics.Cancelled.Inc()
	slog.Info("saga cancelled", "order_id", evt.OrderID, "reason", evt.Reason, "correlation_id", snap.CorrelationID)
	return nil
}

func (s *Saga) publish(ctx context.Context, routingKey string, payload any, correlationID string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.conn.Publish(ctx, routingKey, body, correlationID); err != nil {
		return err
	}
	s.metrics.EventsPublished.WithLabelValues(routingKey).Inc()
	return nil
}
