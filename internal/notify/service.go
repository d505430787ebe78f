package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/daluzconsciente/tienda-api/internal/mailer"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/redisx"
)

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
}

type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Service struct {
	Orders      OrderReader
	Dedup       Claimer
	Mailer      mailer.Sender
	StoreURL    string
	ServiceName string
}

// HandleOrderPaid sends the purchase confirmation for an order.paid event.
// Each event id is handled at most once; a failed send releases the claim
// so the redelivery can retry.
func (s *Service) HandleOrderPaid(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.EventOrderPaid {
		return nil
	}

	key := redisx.DedupKey(s.ServiceName, env.EventID)
	first, err := s.Dedup.Claim(ctx, key)
	if err != nil {
		slog.Warn("dedup claim failed, processing anyway", "event_id", env.EventID, "err", err)
		first = true
	}
	if !first {
		return nil
	}

	if err := s.sendConfirmation(ctx, env); err != nil {
		if rerr := s.Dedup.Release(ctx, key); rerr != nil {
			slog.Warn("release dedup claim", "event_id", env.EventID, "err", rerr)
		}
		return err
	}
	return nil
}

func (s *Service) sendConfirmation(ctx context.Context, env events.Envelope) error {
	p, err := events.UnwrapPayload[events.OrderPaidPayload](env.Payload)
	if err != nil {
		slog.Warn("dropping order.paid with bad payload", "event_id", env.EventID, "err", err)
		return nil
	}

	o, err := s.Orders.GetOrder(ctx, p.OrderID)
	if errors.Is(err, orders.ErrNotFound) {
		slog.Warn("order.paid for unknown order", "order_id", p.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}

	msg, err := mailer.Render(mailer.KindConfirmation, mailer.Data{Order: o, StoreURL: s.StoreURL})
	if err != nil {
		return err
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		return err
	}
	slog.Info("confirmation sent", "order_id", o.ID, "order_number", o.OrderNumber)
	return nil
}
