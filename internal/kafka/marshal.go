package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

func encodeMessage(topic string, env events.Envelope) (kafka.Message, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode envelope: %w", err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   events.PartitionKey(env.CorrelationID),
		Value: b,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(env.EventType)},
			{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
		},
	}, nil
}

func DecodeMessage(m kafka.Message) (events.Envelope, error) {
	return events.Decode(m.Value)
}

// EnvelopeHandler adapts an events.Handler to the consumer. Messages that are
// not valid envelopes are logged and committed.
func EnvelopeHandler(h events.Handler) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		env, err := DecodeMessage(m)
		if err != nil {
			slog.Warn("dropping malformed message", "topic", m.Topic, "offset", m.Offset, "err", err)
			return nil
		}
		return h(ctx, env)
	}
}
