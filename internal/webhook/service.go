package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/payments"
	"github.com/daluzconsciente/tienda-api/internal/redisx"
)

var ErrUnauthorized = errors.New("webhook signature rejected")

type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNoChange  Outcome = "no_change"
	OutcomeApplied   Outcome = "applied"
)

type OrderStore interface {
	ApplyPayment(ctx context.Context, u orders.PaymentUpdate) (orders.Transition, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, orderID string) error
}

// AppliedMarker remembers deliveries (by x-request-id) that were fully
// processed, so a redelivered notification skips the database.
type AppliedMarker interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type Service struct {
	Orders    OrderStore
	Gateway   payments.Gateway
	Cache     Invalidator
	Applied   AppliedMarker
	Publisher events.Publisher

	ServiceName string
	// Secret is checked only when VerifySignatures is set (production).
	Secret           string
	VerifySignatures bool
}

// Signature carries the headers used to authenticate a notification.
type Signature struct {
	Header    string // x-signature
	RequestID string // x-request-id
}

// Handle reconciles one notification with the gateway's view of the payment.
// Only errors that should make the gateway retry are returned.
func (s *Service) Handle(ctx context.Context, n Notification, sig Signature) (Outcome, error) {
	if n.Type != TypePayment {
		return OutcomeIgnored, nil
	}
	if n.DataID == "" {
		return "", fmt.Errorf("%w: missing data.id", ErrInvalidNotification)
	}
	if s.VerifySignatures {
		if err := payments.VerifySignature(s.Secret, sig.Header, sig.RequestID, n.DataID); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}

	// A payment can re-enter an earlier status, so only a repeated delivery
	// is skipped, never a repeated status.
	var key string
	if s.Applied != nil && sig.RequestID != "" {
		key = redisx.WebhookKey(sig.RequestID)
		if seen, err := s.Applied.Seen(ctx, key); err != nil {
			slog.Warn("applied marker lookup failed", "request_id", sig.RequestID, "err", err)
		} else if seen {
			return OutcomeDuplicate, nil
		}
	}

	p, err := s.Gateway.GetPayment(ctx, n.DataID)
	if err != nil {
		return "", fmt.Errorf("fetch payment %s: %w", n.DataID, err)
	}
	log := slog.With("payment_id", p.ID, "payment_status", p.Status, "order_id", p.ExternalReference)
	if p.ExternalReference == "" {
		log.Info("payment without order reference")
		return OutcomeUnmatched, nil
	}
	if !orders.ValidID(p.ExternalReference) {
		log.Info("payment references an order id this store never issued")
		return OutcomeUnmatched, nil
	}

	tr, err := s.Orders.ApplyPayment(ctx, p.Update())
	if errors.Is(err, orders.ErrNotFound) {
		log.Warn("payment references unknown order")
		return OutcomeUnmatched, nil
	}
	if err != nil {
		return "", fmt.Errorf("apply payment %s: %w", p.ID, err)
	}

	out := OutcomeNoChange
	if tr.Applied {
		out = OutcomeApplied
		s.afterApply(ctx, p, tr, sig.RequestID)
		log.Info("order updated from payment", "from", tr.From, "to", tr.To)
	}
	if key != "" {
		if err := s.Applied.Mark(ctx, key); err != nil {
			log.Warn("mark notification applied", "err", err)
		}
	}
	return out, nil
}

func (s *Service) afterApply(ctx context.Context, p payments.Payment, tr orders.Transition, traceID string) {
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, tr.OrderID); err != nil {
			slog.Warn("invalidate order status cache", "order_id", tr.OrderID, "err", err)
		}
	}
	for _, sh := range tr.Shortages {
		slog.Warn("stock short on paid order",
			"order_id", tr.OrderID, "product_id", sh.ProductID, "variant_id", sh.VariantID,
			"required", sh.Required, "available", sh.Available)
	}

	if tr.From != tr.To {
		events.Emit(ctx, s.Publisher, s.ServiceName, events.EventOrderStatusChanged, tr.OrderID, traceID,
			events.OrderStatusChangedPayload{OrderID: tr.OrderID, From: string(tr.From), To: string(tr.To), Source: events.SourceWebhook})
	}
	if !tr.Paid() {
		return
	}
	paid := events.OrderPaidPayload{OrderID: tr.OrderID, PaymentID: p.ID}
	if o, err := s.Orders.GetOrder(ctx, tr.OrderID); err == nil {
		paid.OrderNumber, paid.UserID = o.OrderNumber, o.UserID
	} else {
		slog.Warn("load paid order", "order_id", tr.OrderID, "err", err)
	}
	events.Emit(ctx, s.Publisher, s.ServiceName, events.EventOrderPaid, tr.OrderID, traceID, paid)
}
