// Package broker owns the messaging substrate topology and publish/consume
// contracts: one topic exchange, one DLX fanout exchange with its DLQ, and
// the seven consumer-group queues bound to it.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderflow/backbone/common/config"
	"github.com/orderflow/backbone/common/events"
)

// Routing keys bound in the topology.
const (
	RKOrderPlaced             = events.RoutingOrderPlaced
	RKStockReservationRequest = events.RoutingStockReservationRequested
	RKStockReserved           = events.RoutingStockReserved
	RKStockReservationFailed  = events.RoutingStockReservationFailed
	RKOrderConfirmed          = events.RoutingOrderConfirmed
	RKOrderCancelled          = events.RoutingOrderCancelled
)

// Queue names, one per consumer group.
const (
	QueueOrchestratorOrderPlaced    = "orchestrator.order_placed"
	QueueProductStockRequested      = "product.stock_reservation_requested"
	QueueOrchestratorStockReserved  = "orchestrator.stock_reserved"
	QueueOrchestratorStockFailed    = "orchestrator.stock_failed"
	QueueNotificationOrderConfirmed = "notification.order_confirmed"
	QueueNotificationOrderCancelled = "notification.order_cancelled"
	QueueOrderCompensationCancelled = "order.compensation_cancelled"
)

type binding struct {
	queue      string
	routingKey string
}

// bindings is the full queue/routing-key table, including the double bind of
// order.cancelled to both the notification and compensation queues.
var bindings = []binding{
	{QueueOrchestratorOrderPlaced, RKOrderPlaced},
	{QueueProductStockRequested, RKStockReservationRequest},
	{QueueOrchestratorStockReserved, RKStockReserved},
	{QueueOrchestratorStockFailed, RKStockReservationFailed},
	{QueueNotificationOrderConfirmed, RKOrderConfirmed},
	{QueueNotificationOrderCancelled, RKOrderCancelled},
	{QueueOrderCompensationCancelled, RKOrderCancelled},
}

// MaxRetryCount is the number of failed handler attempts after which a
// message is routed to the DLX: the original delivery plus
// MaxRetryCount-1 republished retries.
const MaxRetryCount = 5

// Conn bundles the AMQP connection and channel with the resolved exchange
// names so callers don't have to thread config around after Connect.
type Conn struct {
	connection  *amqp.Connection
	Channel     *amqp.Channel
	Exchange    string
	DlxExchange string
	DlxQueue    string
}

// Connect dials RabbitMQ, opens a channel, and declares the full topology
// (exchanges, DLQ, and all seven consumer-group queues with their bindings).
// Declaration is idempotent: re-running it against an already-provisioned
// broker is a no-op.
func Connect(cfg config.RabbitMQ) (*Conn, error) {
	address := fmt.Sprintf("amqp://%s:%s@%s:%s%s", cfg.UserName, cfg.Password, cfg.HostName, cfg.Port, cfg.VirtualHost)

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	c := &Conn{connection: conn, Channel: ch, Exchange: cfg.ExchangeName, DlxExchange: cfg.DlxExchangeName, DlxQueue: cfg.DlxQueueName}

	if err := c.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return c, nil
}

func (c *Conn) declareTopology() error {
	if err := c.Channel.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare topic exchange %s: %w", c.Exchange, err)
	}

	if err := c.Channel.ExchangeDeclare(c.DlxExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx exchange %s: %w", c.DlxExchange, err)
	}

	if _, err := c.Channel.QueueDeclare(c.DlxQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq %s: %w", c.DlxQueue, err)
	}
	if err := c.Channel.QueueBind(c.DlxQueue, "", c.DlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind dlq %s to dlx: %w", c.DlxQueue, err)
	}

	queueArgs := amqp.Table{"x-dead-letter-exchange": c.DlxExchange}

	declared := map[string]bool{}
	for _, b := range bindings {
		if !declared[b.queue] {
			if _, err := c.Channel.QueueDeclare(b.queue, true, false, false, false, queueArgs); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}
			declared[b.queue] = true
		}
		if err := c.Channel.QueueBind(b.queue, b.routingKey, c.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.routingKey, err)
		}
	}

	slog.Info("messaging topology declared", "exchange", c.Exchange, "dlx", c.DlxExchange, "queues", len(declared))
	return nil
}

// Close closes the channel then the connection, in that order.
func (c *Conn) Close() error {
	if err := c.Channel.Close(); err != nil {
		return err
	}
	return c.connection.Close()
}

// Publish publishes payload, which the caller has already serialized as
// JSON, to the topic exchange with the given routing key. Publication is fire-and-forget at this layer;
// retry happens on the consumer side.
func (c *Conn) Publish(ctx context.Context, routingKey string, payload []byte, correlationID string) error {
	headers := InjectTraceContext(ctx)
	headers["x-correlation-id"] = correlationID

	return c.Channel.PublishWithContext(ctx, c.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          payload,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		Headers:       headers,
		Timestamp:     time.Now(),
	})
}

// HandleRetry implements the redeliver-then-DLX policy: on handler failure,
// increment x-retry-count and either republish after an exponential backoff
// or, past MaxRetryCount, nack without requeue so the queue's
// dead-letter-exchange argument routes the message to the DLQ. Below the cap
// the original delivery is acked before the republish, since the republish
// carries the message forward explicitly.
func HandleRetry(ch *amqp.Channel, d *amqp.Delivery) error {
	if d.Headers == nil {
		d.Headers = amqp.Table{}
	}

	retryCount, _ := d.Headers["x-retry-count"].(int64)
	retryCount++
	d.Headers["x-retry-count"] = retryCount

	if retryCount >= MaxRetryCount {
		slog.Warn("redelivery cap reached, routing to dlx", "routing_key", d.RoutingKey, "retries", retryCount)
		return d.Nack(false, false)
	}

	backoff := 500 * time.Millisecond * time.Duration(int64(1)<<uint(retryCount-1))
	slog.Info("retrying message", "routing_key", d.RoutingKey, "retries", retryCount, "backoff", backoff)
	time.Sleep(backoff)

	if err := d.Ack(false); err != nil {
		return err
	}

	return ch.PublishWithContext(
		context.Background(),
		d.Exchange,
		d.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			Headers:       d.Headers,
			Body:          d.Body,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: d.CorrelationId,
		},
	)
}
