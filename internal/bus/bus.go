// Package bus picks the event transport named by EVENT_TRANSPORT.
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/daluzconsciente/tienda-api/internal/amqpx"
	"github.com/daluzconsciente/tienda-api/internal/config"
	"github.com/daluzconsciente/tienda-api/internal/events"
	kafkax "github.com/daluzconsciente/tienda-api/internal/kafka"
)

const producerBuffer = 1024

// NewPublisher opens the outbound side of the transport. The returned func
// flushes pending messages and releases the connection.
func NewPublisher(cfg config.Config) (events.Publisher, func(), error) {
	switch cfg.EventTransport {
	case config.TransportKafka:
		p := kafkax.NewProducer(cfg.KafkaBrokers, producerBuffer)
		p.Start()
		return p, func() {
			p.Close()
			p.WaitClosed()
		}, nil
	case config.TransportAMQP:
		conn, ch, err := amqpx.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		return &amqpx.Publisher{Ch: ch}, func() {
			_ = ch.Close()
			_ = conn.Close()
		}, nil
	case config.TransportNone:
		slog.Warn("event transport disabled, events are dropped")
		return events.Nop{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown event transport %q", cfg.EventTransport)
	}
}

// Subscribe delivers every envelope published on topic to h until ctx is
// cancelled. Consumers sharing cfg.WorkerGroup split the stream.
func Subscribe(ctx context.Context, cfg config.Config, topic string, h events.Handler) error {
	switch cfg.EventTransport {
	case config.TransportKafka:
		c := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, topic, cfg.WorkerConcurrency)
		return c.Start(ctx, kafkax.EnvelopeHandler(h))
	case config.TransportAMQP:
		conn, ch, err := amqpx.Dial(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		c := &amqpx.Consumer{
			Ch:       ch,
			Queue:    cfg.WorkerGroup + "." + topic,
			Topic:    topic,
			Prefetch: cfg.WorkerConcurrency,
		}
		return c.Start(ctx, h)
	default:
		return fmt.Errorf("event transport %q cannot be consumed", cfg.EventTransport)
	}
}
