package broker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderflow/backbone/common/correlation"
)

// Handler processes one decoded delivery. Returning an error hands the
// delivery to HandleRetry (ack and republish with backoff, or nack to the
// DLX once the retry cap is reached); returning nil acks it.
type Handler func(ctx context.Context, delivery amqp.Delivery) error

// Consume registers a handler on queueName and blocks until ctx is
// cancelled or the channel closes. Each delivery runs sequentially
// (prefetch=1 was set on the channel at Connect time) so one slow or
// failing message never gets overtaken by the next.
func (c *Conn) Consume(ctx context.Context, queueName string, handle Handler) error {
	msgs, err := c.Channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	slog.Info("consumer started", "queue", queueName)

	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopping", "queue", queueName)
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, queueName, d, handle)
		}
	}
}

func (c *Conn) handleDelivery(ctx context.Context, queueName string, d amqp.Delivery, handle Handler) {
	deliveryCtx := ExtractTraceContext(ctx, d.Headers)

	corrID, _ := d.Headers["x-correlation-id"].(string)
	if corrID == "" {
		corrID = d.CorrelationId
	}
	deliveryCtx = correlation.WithContext(deliveryCtx, corrID)

	log := slog.With("queue", queueName, "routing_key", d.RoutingKey, "correlation_id", corrID)

	if err := handle(deliveryCtx, d); err != nil {
		log.Error("handler failed, retrying", "error", err)
		if retryErr := HandleRetry(c.Channel, &d); retryErr != nil {
			log.Error("retry bookkeeping failed", "error", retryErr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", "error", err)
	}
}
