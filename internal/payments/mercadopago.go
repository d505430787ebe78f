package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

type MercadoPago struct {
	prefs   preference.Client
	pays    payment.Client
	sandbox bool
}

var _ Gateway = (*MercadoPago)(nil)

// NewMercadoPago builds the gateway client. With sandbox set the returned
// init point is the sandbox checkout URL.
func NewMercadoPago(accessToken string, sandbox bool) (*MercadoPago, error) {
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &MercadoPago{
		prefs:   preference.NewClient(cfg),
		pays:    payment.NewClient(cfg),
		sandbox: sandbox,
	}, nil
}

func (m *MercadoPago) CreatePreference(ctx context.Context, in PreferenceInput) (Preference, error) {
	res, err := m.prefs.Create(ctx, preferenceRequest(in))
	if err != nil {
		return Preference{}, fmt.Errorf("create preference: %w", err)
	}
	p := Preference{ID: res.ID, InitPoint: res.InitPoint}
	if m.sandbox && res.SandboxInitPoint != "" {
		p.InitPoint = res.SandboxInitPoint
	}
	return p, nil
}

func (m *MercadoPago) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	id, err := strconv.Atoi(paymentID)
	if err != nil || id <= 0 {
		return Payment{}, fmt.Errorf("%w: %q", ErrInvalidPaymentID, paymentID)
	}
	res, err := m.pays.Get(ctx, id)
	if err != nil {
		return Payment{}, fmt.Errorf("get payment %d: %w", id, err)
	}
	return toPayment(res), nil
}

func preferenceRequest(in PreferenceInput) preference.Request {
	items := make([]preference.ItemRequest, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, preference.ItemRequest{
			ID:         it.ID,
			Title:      it.Title,
			PictureURL: it.PictureURL,
			CurrencyID: it.CurrencyID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice.Float64(),
		})
	}
	return preference.Request{
		Items: items,
		Payer: &preference.PayerRequest{
			Name:    in.Payer.Name,
			Surname: in.Payer.Surname,
			Email:   in.Payer.Email,
		},
		BackURLs: &preference.BackURLsRequest{
			Success: in.BackURLs.Success,
			Failure: in.BackURLs.Failure,
			Pending: in.BackURLs.Pending,
		},
		NotificationURL:   in.NotificationURL,
		ExternalReference: in.OrderID,
		AutoReturn:        "approved",
	}
}

func toPayment(res *payment.Response) Payment {
	var fees orders.Money
	for _, f := range res.FeeDetails {
		fees += orders.MoneyFromFloat(f.Amount)
	}
	return Payment{
		ID:                strconv.Itoa(res.ID),
		Status:            res.Status,
		ExternalReference: res.ExternalReference,
		PaymentMethodID:   res.PaymentMethodID,
		Installments:      res.Installments,
		TransactionAmount: orders.MoneyFromFloat(res.TransactionAmount),
		NetReceivedAmount: orders.MoneyFromFloat(res.TransactionDetails.NetReceivedAmount),
		Fees:              fees,
	}
}
