package payments

import (
	"context"
	"errors"

	"github.com/daluzconsciente/tienda-api/internal/orders"
)

var ErrInvalidPaymentID = errors.New("invalid payment id")

type PreferenceItem struct {
	ID         string
	Title      string
	PictureURL string
	CurrencyID string
	Quantity   int
	UnitPrice  orders.Money
}

type Payer struct {
	Name    string
	Surname string
	Email   string
}

type BackURLs struct {
	Success string
	Failure string
	Pending string
}

type PreferenceInput struct {
	// OrderID travels as external_reference and comes back on the payment.
	OrderID         string
	Items           []PreferenceItem
	Payer           Payer
	BackURLs        BackURLs
	NotificationURL string
}

type Preference struct {
	ID        string
	InitPoint string
}

// Payment is the gateway's authoritative view of a payment.
type Payment struct {
	ID                string
	Status            string
	ExternalReference string
	PaymentMethodID   string
	Installments      int
	TransactionAmount orders.Money
	NetReceivedAmount orders.Money
	Fees              orders.Money
}

// Update converts the payment into the order update the webhook applies.
// Amounts are only carried for approved payments.
func (p Payment) Update() orders.PaymentUpdate {
	u := orders.PaymentUpdate{
		OrderID:       p.ExternalReference,
		PaymentID:     p.ID,
		GatewayStatus: p.Status,
		PaymentMethod: p.PaymentMethodID,
		Installments:  p.Installments,
	}
	if p.Status == orders.GatewayApproved {
		amount, net, fees := p.TransactionAmount, p.NetReceivedAmount, p.Fees
		u.TransactionAmount, u.NetReceivedAmount, u.Fees = &amount, &net, &fees
	}
	return u
}

type Gateway interface {
	CreatePreference(ctx context.Context, in PreferenceInput) (Preference, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
}
