package orders

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("order not found")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidQuantity    = errors.New("invalid quantity")
)

const (
	ProductActive   = "active"
	ProductDraft    = "draft"
	ProductArchived = "archived"
)

type Product struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	SKU               *string `json:"sku,omitempty"`
	Price             Money   `json:"price"`
	InventoryQuantity int     `json:"inventory_quantity"`
	Status            string  `json:"status"`
	ImageURL          *string `json:"image_url,omitempty"`
}

type Variant struct {
	ID                string  `json:"id"`
	ProductID         string  `json:"product_id"`
	Title             string  `json:"title"`
	SKU               *string `json:"sku,omitempty"`
	Price             Money   `json:"price"`
	InventoryQuantity int     `json:"inventory_quantity"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Notes      string `json:"notes,omitempty"`
}

type Order struct {
	ID                string            `json:"id"`
	OrderNumber       string            `json:"order_number"`
	UserID            string            `json:"user_id"`
	Email             string            `json:"email"`
	CustomerName      string            `json:"customer_name"`
	Phone             *string           `json:"phone,omitempty"`
	ShippingAddress   Address           `json:"shipping_address"`
	Subtotal          Money             `json:"subtotal"`
	ShippingCost      Money             `json:"shipping_cost"`
	TotalAmount       Money             `json:"total_amount"`
	Currency          string            `json:"currency"`
	Status            Status            `json:"status"`
	PaymentStatus     *string           `json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	PreferenceID      *string           `json:"mercadopago_preference_id"`
	PaymentID         *string           `json:"mercadopago_payment_id"`
	PaymentMethod     *string           `json:"payment_method"`
	Installments      *int              `json:"installments"`
	TransactionAmount *Money            `json:"transaction_amount"`
	NetReceivedAmount *Money            `json:"net_received_amount"`
	Fees              *Money            `json:"fees"`
	TrackingNumber    *string           `json:"tracking_number"`
	TrackingURL       *string           `json:"tracking_url"`
	ShippingCarrier   *string           `json:"shipping_carrier"`
	Notes             *string           `json:"notes"`
	ShippedAt         *time.Time        `json:"shipped_at"`
	DeliveredAt       *time.Time        `json:"delivered_at"`
	CancelledAt       *time.Time        `json:"cancelled_at"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Items             []OrderItem       `json:"order_items"`
}

// FirstName is used by email greetings.
func (o *Order) FirstName() string {
	if f := strings.Fields(o.CustomerName); len(f) > 0 {
		return f[0]
	}
	return o.CustomerName
}

// OrderItem is a price snapshot taken at purchase time; rows are never updated.
type OrderItem struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	ProductID    string    `json:"product_id"`
	VariantID    *string   `json:"variant_id"`
	ProductName  string    `json:"product_name"`
	VariantTitle *string   `json:"variant_title"`
	Quantity     int       `json:"quantity"`
	UnitPrice    Money     `json:"unit_price"`
	TotalPrice   Money     `json:"total_price"`
	SKU          *string   `json:"sku"`
	ImageURL     *string   `json:"image_url"`
	CreatedAt    time.Time `json:"created_at"`
}

type Profile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}
