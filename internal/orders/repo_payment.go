package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

// PaymentUpdate is the authoritative payment state fetched from the gateway.
type PaymentUpdate struct {
	OrderID       string
	PaymentID     string
	GatewayStatus string
	PaymentMethod string
	Installments  int

	// Only set for approved payments.
	TransactionAmount *Money
	NetReceivedAmount *Money
	Fees              *Money
}

type StockShortage struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

type Transition struct {
	OrderID string
	From    Status
	To      Status
	// Applied is false when the update was already recorded.
	Applied bool
	// StockTaken is set on the single transition that decremented the
	// order's stock.
	StockTaken bool
	// Shortages lists lines whose stock was floored at zero.
	Shortages []StockShortage
}

// Paid reports whether this transition is the order's first entry into
// completed. It holds at most once per order, however often the payment
// leaves and re-enters approved.
func (t Transition) Paid() bool {
	return t.Applied && t.StockTaken
}

// ApplyPayment locks the order row, writes the mapped status and payment data,
// and decrements stock the first time the order enters completed. Re-delivering
// the same payment state is a no-op.
func (r *Repo) ApplyPayment(ctx context.Context, u PaymentUpdate) (Transition, error) {
	tr := Transition{OrderID: u.OrderID, To: FromGatewayStatus(u.GatewayStatus)}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return tr, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		from          Status
		paymentID     *string
		paymentStatus *string
		stockTaken    bool
	)
	err = tx.QueryRow(ctx, `
		SELECT status, mercadopago_payment_id, payment_status, stock_decremented_at IS NOT NULL
		FROM orders WHERE id = $1 FOR UPDATE`, u.OrderID).Scan(&from, &paymentID, &paymentStatus, &stockTaken)
	if errors.Is(err, pgx.ErrNoRows) {
		return tr, ErrNotFound
	}
	if err != nil {
		return tr, err
	}
	tr.From = from

	if from == tr.To && deref(paymentID) == u.PaymentID && deref(paymentStatus) == u.GatewayStatus {
		return tr, nil
	}
	takeStock := tr.To == StatusCompleted && !stockTaken

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET
			status = $2,
			payment_status = $3,
			mercadopago_payment_id = $4,
			payment_method = $5,
			installments = $6,
			transaction_amount_cents = COALESCE($7, transaction_amount_cents),
			net_received_cents = COALESCE($8, net_received_cents),
			fees_cents = COALESCE($9, fees_cents),
			stock_decremented_at = CASE WHEN $10::boolean THEN now() ELSE stock_decremented_at END,
			updated_at = now()
		WHERE id = $1`,
		u.OrderID, tr.To, u.GatewayStatus, u.PaymentID, u.PaymentMethod, u.Installments,
		u.TransactionAmount, u.NetReceivedAmount, u.Fees, takeStock,
	); err != nil {
		return tr, fmt.Errorf("update order %s: %w", u.OrderID, err)
	}
	tr.Applied = true

	if takeStock {
		shortages, err := decrementStock(ctx, tx, u.OrderID)
		if err != nil {
			return tr, err
		}
		tr.StockTaken = true
		tr.Shortages = shortages
	}

	if err := tx.Commit(ctx); err != nil {
		return tr, err
	}
	return tr, nil
}

type stockLine struct {
	table string
	id    string
	qty   int
	item  OrderItem
}

// decrementStock subtracts every item's quantity from its product (or variant),
// flooring at zero. Rows are locked in a fixed order so concurrent orders on
// the same products cannot deadlock.
func decrementStock(ctx context.Context, tx pgx.Tx, orderID string) ([]StockShortage, error) {
	rows, err := tx.Query(ctx, `SELECT product_id, variant_id, quantity FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	var lines []stockLine
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.Quantity); err != nil {
			rows.Close()
			return nil, err
		}
		l := stockLine{table: "products", id: it.ProductID, qty: it.Quantity, item: it}
		if it.VariantID != nil {
			l.table, l.id = "product_variants", *it.VariantID
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].table != lines[j].table {
			return lines[i].table < lines[j].table
		}
		return lines[i].id < lines[j].id
	})

	var shortages []StockShortage
	for _, l := range lines {
		var stock int
		err := tx.QueryRow(ctx, `SELECT inventory_quantity FROM `+l.table+` WHERE id = $1 FOR UPDATE`, l.id).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			shortages = append(shortages, shortage(l, 0))
			continue
		}
		if err != nil {
			return nil, err
		}

		next := stock - l.qty
		if next < 0 {
			shortages = append(shortages, shortage(l, stock))
			next = 0
		}
		if _, err := tx.Exec(ctx, `UPDATE `+l.table+` SET inventory_quantity = $2, updated_at = now() WHERE id = $1`, l.id, next); err != nil {
			return nil, fmt.Errorf("decrement %s %s: %w", l.table, l.id, err)
		}
	}
	return shortages, nil
}

func shortage(l stockLine, available int) StockShortage {
	return StockShortage{
		ProductID: l.item.ProductID,
		VariantID: deref(l.item.VariantID),
		Required:  l.qty,
		Available: available,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
