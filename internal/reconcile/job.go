package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/daluzconsciente/tienda-api/internal/orders"
)

type Store interface {
	CancelStalePending(ctx context.Context, unpaidBefore, pendingBefore time.Time) ([]string, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, orderID string) error
}

// Job cancels pending orders that were abandoned: orders that never got a
// preference after UnpaidTTL, and orders with a preference after PendingTTL.
type Job struct {
	Store     Store
	Cache     Invalidator
	Publisher events.Publisher

	Interval    time.Duration
	UnpaidTTL   time.Duration
	PendingTTL  time.Duration
	ServiceName string
	Now         func() time.Time
}

func (j *Job) Run(ctx context.Context) error {
	t := time.NewTicker(j.Interval)
	defer t.Stop()
	slog.Info("reconciler started", "interval", j.Interval, "unpaid_ttl", j.UnpaidTTL, "pending_ttl", j.PendingTTL)
	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("reconcile pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// RunOnce performs one pass and returns the ids it cancelled.
func (j *Job) RunOnce(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	if j.Now != nil {
		now = j.Now()
	}
	ids, err := j.Store.CancelStalePending(ctx, now.Add(-j.UnpaidTTL), now.Add(-j.PendingTTL))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if j.Cache != nil {
			if err := j.Cache.Invalidate(ctx, id); err != nil {
				slog.Warn("invalidate order status cache", "order_id", id, "err", err)
			}
		}
		events.Emit(ctx, j.Publisher, j.ServiceName, events.EventOrderStatusChanged, id, "",
			events.OrderStatusChangedPayload{
				OrderID: id, From: string(orders.StatusPending), To: string(orders.StatusCancelled), Source: events.SourceReconciler,
			})
	}
	if len(ids) > 0 {
		slog.Info("cancelled stale pending orders", "count", len(ids))
	}
	return ids, nil
}
