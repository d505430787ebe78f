package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Patch holds the operator-editable columns. Nil fields are left untouched.
type Patch struct {
	Status            *Status
	PaymentStatus     *string
	FulfillmentStatus *FulfillmentStatus
	TrackingNumber    *string
	TrackingURL       *string
	ShippingCarrier   *string
	Notes             *string
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.FulfillmentStatus == nil &&
		p.TrackingNumber == nil && p.TrackingURL == nil && p.ShippingCarrier == nil &&
		p.Notes == nil && p.ShippedAt == nil && p.DeliveredAt == nil
}

func (p Patch) assignments() ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)+1))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.PaymentStatus != nil {
		add("payment_status", *p.PaymentStatus)
	}
	if p.FulfillmentStatus != nil {
		add("fulfillment_status", *p.FulfillmentStatus)
	}
	if p.TrackingNumber != nil {
		add("tracking_number", *p.TrackingNumber)
	}
	if p.TrackingURL != nil {
		add("tracking_url", *p.TrackingURL)
	}
	if p.ShippingCarrier != nil {
		add("shipping_carrier", *p.ShippingCarrier)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.ShippedAt != nil {
		add("shipped_at", *p.ShippedAt)
	}
	if p.DeliveredAt != nil {
		add("delivered_at", *p.DeliveredAt)
	}
	if p.Status != nil && *p.Status == StatusCancelled {
		sets = append(sets, "cancelled_at = COALESCE(cancelled_at, now())")
	}
	return sets, args
}

// UpdateFields applies p under a row lock and returns the status the order had
// before the update together with the updated order. A non-nil guard sees the
// locked status first and aborts the update by returning an error. Moving an
// order into completed decrements its stock unless a payment already did.
func (r *Repo) UpdateFields(ctx context.Context, orderID string, p Patch, guard func(prev Status) error) (Status, *Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		prev       Status
		stockTaken bool
	)
	err = tx.QueryRow(ctx,
		`SELECT status, stock_decremented_at IS NOT NULL FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&prev, &stockTaken)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	if guard != nil {
		if err := guard(prev); err != nil {
			return prev, nil, err
		}
	}

	takeStock := p.Status != nil && *p.Status == StatusCompleted && !stockTaken
	sets, args := p.assignments()
	if takeStock {
		sets = append(sets, "stock_decremented_at = now()")
	}
	sets = append(sets, "updated_at = now()")
	o, err := scanOrder(tx.QueryRow(ctx,
		`UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+orderColumns,
		append([]any{orderID}, args...)...))
	if err != nil {
		return "", nil, fmt.Errorf("update order %s: %w", orderID, err)
	}

	if takeStock {
		shortages, err := decrementStock(ctx, tx, orderID)
		if err != nil {
			return "", nil, err
		}
		for _, sh := range shortages {
			slog.Warn("stock short on manually completed order",
				"order_id", orderID, "product_id", sh.ProductID, "variant_id", sh.VariantID,
				"required", sh.Required, "available", sh.Available)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", nil, err
	}
	return prev, o, nil
}

// CancelStalePending cancels pending orders that never received a preference
// before unpaidBefore, and pending orders with a preference created before
// pendingBefore. Stock is untouched: pending orders never decremented it.
func (r *Repo) CancelStalePending(ctx context.Context, unpaidBefore, pendingBefore time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		UPDATE orders
		SET status = 'cancelled', cancelled_at = now(), updated_at = now(),
			notes = concat_ws(E'\n', notes, 'cancelado automáticamente: pago no completado')
		WHERE status = 'pending'
		  AND ((mercadopago_preference_id IS NULL AND created_at < $1)
		    OR (mercadopago_preference_id IS NOT NULL AND created_at < $2))
		RETURNING id`, unpaidBefore, pendingBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
