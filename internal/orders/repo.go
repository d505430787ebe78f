package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type LineInput struct {
	ProductID string
	VariantID string
	Quantity  int
}

type NewOrder struct {
	UserID          string
	Email           string
	CustomerName    string
	Phone           string
	ShippingAddress Address
	Currency        string
	ShippingCost    Money
	Lines           []LineInput
}

type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

type Repo struct{ DB postgres.DB }

const orderColumns = `id, order_number, user_id, email, customer_name, phone, shipping_address,
	subtotal_cents, shipping_cents, total_cents, currency, status, payment_status, fulfillment_status,
	mercadopago_preference_id, mercadopago_payment_id, payment_method, installments,
	transaction_amount_cents, net_received_cents, fees_cents,
	tracking_number, tracking_url, shipping_carrier, notes,
	shipped_at, delivered_at, cancelled_at, created_at, updated_at`

const itemColumns = `id, order_id, product_id, variant_id, product_name, variant_title,
	quantity, unit_price_cents, total_price_cents, sku, image_url, created_at`

// NewOrderNumber builds the customer-visible order code.
func NewOrderNumber(t time.Time) string {
	return "DL-" + strconv.FormatInt(t.UnixMilli(), 10)
}

// CreatePendingOrder prices every line from the catalog (client prices are
// never trusted) and writes the order and its items in one transaction.
func (r *Repo) CreatePendingOrder(ctx context.Context, in NewOrder) (*Order, error) {
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInvalidQuantity)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	items, subtotal, err := priceLines(ctx, tx, in.Lines)
	if err != nil {
		return nil, err
	}

	addr, err := json.Marshal(in.ShippingAddress)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &Order{
		ID:                uuid.NewString(),
		UserID:            in.UserID,
		Email:             in.Email,
		CustomerName:      in.CustomerName,
		ShippingAddress:   in.ShippingAddress,
		Subtotal:          subtotal,
		ShippingCost:      in.ShippingCost,
		TotalAmount:       subtotal + in.ShippingCost,
		Currency:          in.Currency,
		Status:            StatusPending,
		FulfillmentStatus: FulfillmentUnfulfilled,
	}
	if in.Phone != "" {
		o.Phone = &in.Phone
	}

	if err := insertOrder(ctx, tx, o, addr, now); err != nil {
		return nil, err
	}

	for i := range items {
		it := &items[i]
		it.ID = uuid.NewString()
		it.OrderID = o.ID
		it.CreatedAt = o.CreatedAt
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, variant_id, product_name, variant_title,
				quantity, unit_price_cents, total_price_cents, sku, image_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			it.ID, it.OrderID, it.ProductID, it.VariantID, it.ProductName, it.VariantTitle,
			it.Quantity, it.UnitPrice, it.TotalPrice, it.SKU, it.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("insert order item %s: %w", it.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

const orderNumberAttempts = 3

// insertOrder writes the order row. Two checkouts in the same millisecond get
// the same order number; the loser moves its number forward and retries.
func insertOrder(ctx context.Context, tx pgx.Tx, o *Order, addr []byte, now time.Time) error {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		o.OrderNumber = NewOrderNumber(now.Add(time.Duration(attempt) * time.Millisecond))
		err := tx.QueryRow(ctx, `
			INSERT INTO orders(id, order_number, user_id, email, customer_name, phone, shipping_address,
				subtotal_cents, shipping_cents, total_cents, currency, status, fulfillment_status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (order_number) DO NOTHING
			RETURNING created_at, updated_at`,
			o.ID, o.OrderNumber, o.UserID, o.Email, o.CustomerName, o.Phone, addr,
			o.Subtotal, o.ShippingCost, o.TotalAmount, o.Currency, o.Status, o.FulfillmentStatus,
		).Scan(&o.CreatedAt, &o.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	}
	return fmt.Errorf("insert order: order number still taken after %d attempts", orderNumberAttempts)
}

func priceLines(ctx context.Context, tx pgx.Tx, lines []LineInput) ([]OrderItem, Money, error) {
	productIDs := make([]string, 0, len(lines))
	var variantIDs []string
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w for product %s", ErrInvalidQuantity, l.ProductID)
		}
		productIDs = append(productIDs, l.ProductID)
		if l.VariantID != "" {
			variantIDs = append(variantIDs, l.VariantID)
		}
	}

	products := map[string]Product{}
	rows, err := tx.Query(ctx, `
		SELECT id, name, sku, price_cents, inventory_quantity, status, image_url
		FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, 0, err
	}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.InventoryQuantity, &p.Status, &p.ImageURL); err != nil {
			rows.Close()
			return nil, 0, err
		}
		products[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	variants := map[string]Variant{}
	if len(variantIDs) > 0 {
		rows, err := tx.Query(ctx, `
			SELECT id, product_id, title, sku, price_cents, inventory_quantity
			FROM product_variants WHERE id = ANY($1)`, variantIDs)
		if err != nil {
			return nil, 0, err
		}
		for rows.Next() {
			var v Variant
			if err := rows.Scan(&v.ID, &v.ProductID, &v.Title, &v.SKU, &v.Price, &v.InventoryQuantity); err != nil {
				rows.Close()
				return nil, 0, err
			}
			variants[v.ID] = v
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, 0, err
		}
	}

	items := make([]OrderItem, 0, len(lines))
	var subtotal Money
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || p.Status != ProductActive {
			return nil, 0, fmt.Errorf("%w: %s", ErrProductUnavailable, l.ProductID)
		}
		it := OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			SKU:         p.SKU,
			ImageURL:    p.ImageURL,
		}
		if l.VariantID != "" {
			v, ok := variants[l.VariantID]
			if !ok || v.ProductID != p.ID {
				return nil, 0, fmt.Errorf("%w: variant %s", ErrProductUnavailable, l.VariantID)
			}
			it.VariantID = &v.ID
			it.VariantTitle = &v.Title
			it.UnitPrice = v.Price
			if v.SKU != nil {
				it.SKU = v.SKU
			}
		}
		it.TotalPrice = it.UnitPrice.Times(it.Quantity)
		subtotal += it.TotalPrice
		items = append(items, it)
	}
	return items, subtotal, nil
}

func (r *Repo) SetPreference(ctx context.Context, orderID, preferenceID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET mercadopago_preference_id = $2, updated_at = now()
		WHERE id = $1`, orderID, preferenceID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPending cancels an order only while it is still pending. It reports
// whether a row changed.
func (r *Repo) CancelPending(ctx context.Context, orderID, reason string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled', cancelled_at = now(), updated_at = now(),
			notes = concat_ws(E'\n', notes, $2::text)
		WHERE id = $1 AND status = 'pending'`, orderID, reason)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// GetOrder returns the order with its items.
func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, err
	}
	items, err := r.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	return o, nil
}

// ListByUser returns the user's orders newest first, with items.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.listWithItems(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Status != "" {
		return r.listWithItems(ctx, `SELECT `+orderColumns+` FROM orders
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, f.Status, f.Limit, f.Offset)
	}
	return r.listWithItems(ctx, `SELECT `+orderColumns+` FROM orders
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, f.Limit, f.Offset)
}

func (r *Repo) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := r.DB.QueryRow(ctx, `SELECT id, email, first_name, last_name, phone FROM profiles WHERE id = $1`, userID).
		Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) listWithItems(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
		if out[i].Items == nil {
			out[i].Items = []OrderItem{}
		}
	}
	return out, nil
}

func (r *Repo) itemsFor(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+itemColumns+` FROM order_items
		WHERE order_id = ANY($1) ORDER BY created_at, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.ProductName, &it.VariantTitle,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.SKU, &it.ImageURL, &it.CreatedAt); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o    Order
		addr []byte
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Email, &o.CustomerName, &o.Phone, &addr,
		&o.Subtotal, &o.ShippingCost, &o.TotalAmount, &o.Currency, &o.Status, &o.PaymentStatus, &o.FulfillmentStatus,
		&o.PreferenceID, &o.PaymentID, &o.PaymentMethod, &o.Installments,
		&o.TransactionAmount, &o.NetReceivedAmount, &o.Fees,
		&o.TrackingNumber, &o.TrackingURL, &o.ShippingCarrier, &o.Notes,
		&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping_address for order %s: %w", o.ID, err)
		}
	}
	return &o, nil
}
