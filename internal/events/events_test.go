package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoundTrip(t *testing.T) {
	env, err := New(EventOrderPaid, "tienda-api", "o-1", "req-9", OrderPaidPayload{
		OrderID: "o-1", OrderNumber: "DL-1", PaymentID: "555",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "o-1", env.CorrelationID)

	b, err := json.Marshal(env)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)

	p, err := UnwrapPayload[OrderPaidPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "555", p.PaymentID)
	assert.Equal(t, "DL-1", p.OrderNumber)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)

	_, err = UnwrapPayload[OrderPaidPayload](json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicOrderPaid, TopicFor(EventOrderPaid))
	assert.Equal(t, TopicOrderStatusChanged, TopicFor(EventOrderStatusChanged))
	assert.Equal(t, []byte("o-1"), PartitionKey("o-1"))
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), TopicOrderPaid, Envelope{}))
}

type capture struct {
	topic string
	env   Envelope
	err   error
}

func (c *capture) Publish(_ context.Context, topic string, env Envelope) error {
	c.topic, c.env = topic, env
	return c.err
}

func TestEmit(t *testing.T) {
	c := &capture{}
	Emit(context.Background(), c, "tienda-api", EventOrderStatusChanged, "o-9", "req-1",
		OrderStatusChangedPayload{OrderID: "o-9", From: "pending", To: "cancelled", Source: SourceAdmin})
	assert.Equal(t, TopicOrderStatusChanged, c.topic)
	assert.Equal(t, "o-9", c.env.CorrelationID)
	assert.Equal(t, "req-1", c.env.TraceID)

	// failures and nil publishers are swallowed
	Emit(context.Background(), &capture{err: assert.AnError}, "x", EventOrderPaid, "o", "", OrderPaidPayload{})
	Emit(context.Background(), nil, "x", EventOrderPaid, "o", "", OrderPaidPayload{})
}
