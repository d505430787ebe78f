package webhook

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/daluzconsciente/tienda-api/internal/events/eventstest"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/payments"
	"github.com/daluzconsciente/tienda-api/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the conditional transition of orders.Repo.ApplyPayment.
type memStore struct {
	order         *orders.Order
	paymentStatus string
	stockTaken    bool
	stock         map[string]int
	calls         int
}

func (m *memStore) ApplyPayment(_ context.Context, u orders.PaymentUpdate) (orders.Transition, error) {
	m.calls++
	if m.order == nil || m.order.ID != u.OrderID {
		return orders.Transition{}, orders.ErrNotFound
	}
	tr := orders.Transition{OrderID: u.OrderID, From: m.order.Status, To: orders.FromGatewayStatus(u.GatewayStatus)}
	if tr.From == tr.To && m.order.PaymentID != nil && *m.order.PaymentID == u.PaymentID && m.paymentStatus == u.GatewayStatus {
		return tr, nil
	}
	m.order.Status = tr.To
	m.order.PaymentID = &u.PaymentID
	m.paymentStatus = u.GatewayStatus
	tr.Applied = true
	if tr.To == orders.StatusCompleted && !m.stockTaken {
		m.stockTaken, tr.StockTaken = true, true
		for _, it := range m.order.Items {
			m.stock[it.ProductID] = max(0, m.stock[it.ProductID]-it.Quantity)
		}
	}
	return tr, nil
}

func (m *memStore) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	if m.order == nil || m.order.ID != id {
		return nil, orders.ErrNotFound
	}
	return m.order, nil
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePreference(ctx context.Context, in payments.PreferenceInput) (payments.Preference, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(payments.Preference), args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, id string) (payments.Payment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payments.Payment), args.Error(1)
}

type fixture struct {
	store   *memStore
	gateway *MockGateway
	events  *eventstest.Recorder
	mr      *miniredis.Miniredis
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		store: &memStore{
			order: &orders.Order{
				ID: orderID, OrderNumber: "DL-1", UserID: "user-1", Status: orders.StatusPending,
				Items: []orders.OrderItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 5}},
			},
			stock: map[string]int{"p1": 10, "p2": 3},
		},
		gateway: &MockGateway{},
		events:  &eventstest.Recorder{},
		mr:      mr,
	}
	f.svc = &Service{
		Orders:      f.store,
		Gateway:     f.gateway,
		Cache:       &redisx.StatusCache{RDB: rdb},
		Applied:     &redisx.Marker{RDB: rdb, TTL: redisx.TTLWebhookApplied},
		Publisher:   f.events,
		ServiceName: "tienda-api",
	}
	return f
}

const orderID = "3f0c2a4e-8d1b-4c6a-9e2f-5b7d1a0c9e41"

func payment(status string) payments.Payment {
	return payments.Payment{ID: "555", Status: status, ExternalReference: orderID, PaymentMethodID: "visa", Installments: 1}
}

var paymentNotification = Notification{Type: TypePayment, DataID: "555"}

func TestHandle_ApprovedCompletesAndDecrements(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("order_status:"+orderID, `{"stale":true}`))
	f.gateway.On("GetPayment", mock.Anything, "555").Return(payment(orders.GatewayApproved), nil)

	out, err := f.svc.Handle(context.Background(), paymentNotification, Signature{RequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, orders.StatusCompleted, f.store.order.Status)
	assert.Equal(t, "555", *f.store.order.PaymentID)
	assert.Equal(t, map[string]int{"p1": 8, "p2": 0}, f.store.stock)

	assert.False(t, f.mr.Exists("order_status:"+orderID))
	assert.True(t, f.mr.Exists("webhook:mp:req-1"))

	assert.Equal(t, []string{events.TopicOrderStatusChanged, events.TopicOrderPaid}, f.events.Topics())
	paid, err := events.UnwrapPayload[events.OrderPaidPayload](f.events.Messages()[1].Envelope.Payload)
	require.NoError(t, err)
	assert.Equal(t, events.OrderPaidPayload{OrderID: orderID, OrderNumber: "DL-1", UserID: "user-1", PaymentID: "555"}, paid)
	assert.Equal(t, "req-1", f.events.Messages()[1].Envelope.TraceID)
}

func TestHandle_ReplayDoesNotDecrementTwice(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetPayment", mock.Anything, "555").Return(payment(orders.GatewayApproved), nil)
	sig := Signature{RequestID: "req-1"}

	_, err := f.svc.Handle(context.Background(), paymentNotification, sig)
	require.NoError(t, err)

	out, err := f.svc.Handle(context.Background(), paymentNotification, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, 1, f.store.calls)
	f.gateway.AssertNumberOfCalls(t, "GetPayment", 1)

	// a new delivery of the same state reaches the data layer guard
	out, err = f.svc.Handle(context.Background(), paymentNotification, Signature{RequestID: "req-2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, out)
	assert.Equal(t, map[string]int{"p1": 8, "p2": 0}, f.store.stock)
	assert.Len(t, f.events.Messages(), 2)
}

func TestHandle_DisputeRoundTripCompletesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	statuses := []string{orders.GatewayApproved, orders.GatewayInMediation, orders.GatewayApproved}

	for i, st := range statuses {
		f.gateway.On("GetPayment", mock.Anything, "555").Return(payment(st), nil).Once()
		out, err := f.svc.Handle(ctx, paymentNotification, Signature{RequestID: "req-" + strconv.Itoa(i)})
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, out, st)
	}

	assert.Equal(t, orders.StatusCompleted, f.store.order.Status)
	assert.Equal(t, map[string]int{"p1": 8, "p2": 0}, f.store.stock)
	assert.Equal(t, []string{
		events.TopicOrderStatusChanged, events.TopicOrderPaid, // pending -> completed
		events.TopicOrderStatusChanged, // completed -> disputed
		events.TopicOrderStatusChanged, // disputed -> completed
	}, f.events.Topics())
}

func TestHandle_RejectedFailsWithoutStockChange(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetPayment", mock.Anything, "555").Return(payment(orders.GatewayRejected), nil)

	out, err := f.svc.Handle(context.Background(), paymentNotification, Signature{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, orders.StatusFailed, f.store.order.Status)
	assert.Equal(t, map[string]int{"p1": 10, "p2": 3}, f.store.stock)
	assert.Equal(t, []string{events.TopicOrderStatusChanged}, f.events.Topics())
}

func TestHandle_NoOps(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Handle(context.Background(), Notification{Type: "merchant_order", DataID: "1"}, Signature{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)

	f.gateway.On("GetPayment", mock.Anything, "777").
		Return(payments.Payment{ID: "777", Status: orders.GatewayApproved}, nil)
	out, err = f.svc.Handle(context.Background(), Notification{Type: TypePayment, DataID: "777"}, Signature{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, out)

	f.gateway.On("GetPayment", mock.Anything, "888").
		Return(payments.Payment{ID: "888", Status: orders.GatewayApproved, ExternalReference: "other-shop-42"}, nil)
	out, err = f.svc.Handle(context.Background(), Notification{Type: TypePayment, DataID: "888"}, Signature{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, out)

	f.gateway.On("GetPayment", mock.Anything, "999").
		Return(payments.Payment{ID: "999", Status: orders.GatewayApproved, ExternalReference: "0b6e3f7a-1c2d-4e5f-8a9b-0c1d2e3f4a5b"}, nil)
	out, err = f.svc.Handle(context.Background(), Notification{Type: TypePayment, DataID: "999"}, Signature{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, out)

	// only the well-formed reference reached the store
	assert.Equal(t, 1, f.store.calls)
	assert.Equal(t, orders.StatusPending, f.store.order.Status)
	assert.Empty(t, f.events.Messages())
}

func TestHandle_GatewayErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetPayment", mock.Anything, "555").Return(payments.Payment{}, errors.New("timeout"))

	_, err := f.svc.Handle(context.Background(), paymentNotification, Signature{})
	assert.Error(t, err)
	assert.Equal(t, 0, f.store.calls)
}

func TestHandle_Signature(t *testing.T) {
	f := newFixture(t)
	f.svc.VerifySignatures = true
	f.svc.Secret = "whsec"
	f.gateway.On("GetPayment", mock.Anything, "555").Return(payment(orders.GatewayPending), nil)

	_, err := f.svc.Handle(context.Background(), paymentNotification, Signature{Header: "ts=1,v1=abcd", RequestID: "r"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Handle(context.Background(), paymentNotification, Signature{})
	assert.ErrorIs(t, err, ErrUnauthorized)
	f.gateway.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)

	ts := time.Now().Unix()
	header := "ts=" + strconv.FormatInt(ts, 10) + ",v1=" + payments.Sign("whsec", "555", "r", strconv.FormatInt(ts, 10))
	out, err := f.svc.Handle(context.Background(), paymentNotification, Signature{Header: header, RequestID: "r"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Empty(t, f.events.Messages())
}

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name string
		body string
		q    url.Values
		want Notification
	}{
		{"body string id", `{"type":"payment","data":{"id":"123"}}`, nil, Notification{Type: "payment", DataID: "123"}},
		{"body numeric id", `{"type":"payment","data":{"id":123}}`, nil, Notification{Type: "payment", DataID: "123"}},
		{"action only", `{"action":"payment.updated","data":{"id":"9"}}`, nil, Notification{Type: "payment", DataID: "9"}},
		{"query ipn", ``, url.Values{"topic": {"payment"}, "id": {"42"}}, Notification{Type: "payment", DataID: "42"}},
		{"query data.id", `{}`, url.Values{"type": {"payment"}, "data.id": {"7"}}, Notification{Type: "payment", DataID: "7"}},
		{"other topic", `{"topic":"merchant_order"}`, nil, Notification{Type: "merchant_order"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNotification([]byte(tt.body), tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseNotification([]byte("{"), nil)
	assert.ErrorIs(t, err, ErrInvalidNotification)
}
