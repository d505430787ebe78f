package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPaid          = "OrderPaid"
	EventOrderStatusChanged = "OrderStatusChanged"
)

const (
	SourceWebhook    = "webhook"
	SourceAdmin      = "admin"
	SourceReconciler = "reconciler"
	SourceCheckout   = "checkout"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPaidPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	PaymentID   string `json:"payment_id"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Source  string `json:"source"`
}

// Publisher delivers an envelope to a topic. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

// Handler processes one decoded envelope. Returning an error leaves the
// message unacknowledged.
type Handler func(ctx context.Context, env Envelope) error

// Nop drops every event. Used when EVENT_TRANSPORT=none.
type Nop struct{}

func (Nop) Publish(context.Context, string, Envelope) error { return nil }

func New(eventType, producer, correlationID, traceID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

// Emit builds and publishes an event keyed by orderID. Failures are logged,
// never returned: events are best-effort after the database commit.
func Emit(ctx context.Context, pub Publisher, producer, eventType, orderID, traceID string, payload any) {
	if pub == nil {
		return
	}
	env, err := New(eventType, producer, orderID, traceID, payload)
	if err == nil {
		err = pub.Publish(ctx, TopicFor(eventType), env)
	}
	if err != nil {
		slog.Error("publish event failed", "event_type", eventType, "order_id", orderID, "err", err)
	}
}
