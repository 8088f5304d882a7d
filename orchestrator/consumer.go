package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderflow/backbone/common/broker"
)

// Run starts one consumer per bound queue and blocks until ctx is cancelled
// or any consumer returns a fatal setup error.
func Run(ctx context.Context, conn *broker.Conn, saga *Saga) error {
	errCh := make(chan error, 3)

	go func() {
		errCh <- conn.Consume(ctx, broker.QueueOrchestratorOrderPlaced, decode(saga.Start))
	}()
	go func() {
		errCh <- conn.Consume(ctx, broker.QueueOrchestratorStockReserved, decode(saga.OnStockReserved))
	}()
	go func() {
		errCh <- conn.Consume(ctx, broker.QueueOrchestratorStockFailed, decode(saga.OnStockFailed))
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// decode adapts a typed event handler to broker.Handler by JSON-decoding the
// delivery body first. A decode failure is treated as a handler error so the
// retry-then-DLX policy applies to poison messages too.
func decode[T any](handle func(context.Context, T) error) broker.Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var evt T
		if err := json.Unmarshal(d.Body, &evt); err != nil {
			return fmt.Errorf("decode %T: %w", evt, err)
		}
		return handle(ctx, evt)
	}
}
