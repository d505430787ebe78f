package amqpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange every event is routed through; the routing
// key is the event topic.
const Exchange = "tienda.events"

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Dial opens a connection and a channel with the exchange declared.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declareExchange(ch Channel) error {
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

type Publisher struct {
	Ch Channel
}

var _ events.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, topic string, env events.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return p.Ch.PublishWithContext(ctx, Exchange, topic, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Type:          env.EventType,
		Timestamp:     time.Now(),
		Body:          b,
	})
}

type Consumer struct {
	Ch       Channel
	Queue    string
	Topic    string
	Prefetch int
}

// Start consumes until ctx is cancelled or the delivery channel closes.
// Handler errors nack with requeue; malformed bodies are dropped.
func (c *Consumer) Start(ctx context.Context, h events.Handler) error {
	if err := declareExchange(c.Ch); err != nil {
		return err
	}
	q, err := c.Ch.QueueDeclare(c.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.Ch.QueueBind(q.Name, c.Topic, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if c.Prefetch > 0 {
		if err := c.Ch.Qos(c.Prefetch, 0, false); err != nil {
			return fmt.Errorf("qos: %w", err)
		}
	}
	msgs, err := c.Ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d, h)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, h events.Handler) {
	env, err := events.Decode(d.Body)
	if err != nil {
		slog.Warn("dropping malformed delivery", "queue", c.Queue, "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := h(ctx, env); err != nil {
		slog.Error("amqp handler failed", "queue", c.Queue, "event_id", env.EventID, "err", err)
		_ = d.Nack(false, true)
		return
	}
	if err := d.Ack(false); err != nil {
		slog.Error("amqp ack failed", "queue", c.Queue, "err", err)
	}
}
