package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/authx"
	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/payments"
)

var ErrGateway = errors.New("payment gateway unavailable")

type OrderStore interface {
	CreatePendingOrder(ctx context.Context, in orders.NewOrder) (*orders.Order, error)
	SetPreference(ctx context.Context, orderID, preferenceID string) error
	CancelPending(ctx context.Context, orderID, reason string) (bool, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	GetProfile(ctx context.Context, userID string) (*orders.Profile, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) ([]byte, bool, error)
	Set(ctx context.Context, orderID string, body []byte) error
}

type Service struct {
	Orders    OrderStore
	Gateway   payments.Gateway
	Cache     StatusCache
	Publisher events.Publisher
	// PublicURL is the storefront base URL, without trailing slash.
	PublicURL   string
	Currency    string
	ServiceName string
}

type Result struct {
	ID          string `json:"id"`
	InitPoint   string `json:"init_point"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// Create turns a cart into a pending order and a hosted checkout preference.
func (s *Service) Create(ctx context.Context, userID string, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	c := req.CustomerInfo
	in := orders.NewOrder{
		UserID:          userID,
		Email:           strings.TrimSpace(c.Email),
		CustomerName:    strings.TrimSpace(c.FirstName + " " + c.LastName),
		Phone:           c.Phone,
		ShippingAddress: req.address(),
		Currency:        s.Currency,
		Lines:           req.lines(),
	}
	if in.Phone == "" {
		if p, err := s.Orders.GetProfile(ctx, userID); err == nil && p.Phone != nil {
			in.Phone = *p.Phone
		}
	}

	o, err := s.Orders.CreatePendingOrder(ctx, in)
	if err != nil {
		return Result{}, err
	}

	pref, err := s.Gateway.CreatePreference(ctx, s.preferenceInput(o, c))
	if err != nil {
		s.abandon(ctx, o, err)
		return Result{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if err := s.Orders.SetPreference(ctx, o.ID, pref.ID); err != nil {
		return Result{}, fmt.Errorf("save preference for order %s: %w", o.ID, err)
	}
	o.PreferenceID = &pref.ID

	s.cache(ctx, o)
	slog.Info("checkout created", "order_id", o.ID, "order_number", o.OrderNumber, "total", o.TotalAmount.String())

	return Result{ID: pref.ID, InitPoint: pref.InitPoint, OrderID: o.ID, OrderNumber: o.OrderNumber}, nil
}

func (s *Service) preferenceInput(o *orders.Order, c CustomerInfo) payments.PreferenceInput {
	items := make([]payments.PreferenceItem, 0, len(o.Items))
	for _, it := range o.Items {
		title := it.ProductName
		if it.VariantTitle != nil && *it.VariantTitle != "" {
			title += " - " + *it.VariantTitle
		}
		pi := payments.PreferenceItem{
			ID:         it.ProductID,
			Title:      title,
			CurrencyID: o.Currency,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		}
		if it.ImageURL != nil {
			pi.PictureURL = *it.ImageURL
		}
		items = append(items, pi)
	}
	if o.ShippingCost > 0 {
		items = append(items, payments.PreferenceItem{
			ID: "shipping", Title: "Envío", CurrencyID: o.Currency, Quantity: 1, UnitPrice: o.ShippingCost,
		})
	}
	back := func(result string) string {
		return fmt.Sprintf("%s/checkout/%s?order_id=%s", s.PublicURL, result, o.ID)
	}
	return payments.PreferenceInput{
		OrderID: o.ID,
		Items:   items,
		Payer:   payments.Payer{Name: c.FirstName, Surname: c.LastName, Email: o.Email},
		BackURLs: payments.BackURLs{
			Success: back("success"),
			Failure: back("failure"),
			Pending: back("pending"),
		},
		NotificationURL: s.PublicURL + "/api/webhooks/mercadopago",
	}
}

// abandon cancels an order whose preference could not be created. Anything
// left pending is picked up by the reconciler.
func (s *Service) abandon(ctx context.Context, o *orders.Order, cause error) {
	slog.Error("create preference failed", "order_id", o.ID, "err", cause)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	ok, err := s.Orders.CancelPending(ctx, o.ID, "cancelado: no se pudo iniciar el pago")
	if err != nil {
		slog.Error("cancel abandoned order", "order_id", o.ID, "err", err)
		return
	}
	if ok {
		events.Emit(ctx, s.Publisher, s.ServiceName, events.EventOrderStatusChanged, o.ID, "",
			events.OrderStatusChangedPayload{
				OrderID: o.ID, From: string(orders.StatusPending), To: string(orders.StatusCancelled), Source: events.SourceCheckout,
			})
	}
}

// StatusView is the polling payload for GET /api/checkout.
type StatusView struct {
	Success      bool          `json:"success"`
	OrderID      string        `json:"order_id"`
	OrderNumber  string        `json:"order_number"`
	Status       orders.Status `json:"status"`
	TotalAmount  orders.Money  `json:"total_amount"`
	Currency     string        `json:"currency"`
	PreferenceID *string       `json:"preference_id"`
	CreatedAt    time.Time     `json:"created_at"`
}

type cachedStatus struct {
	View   StatusView `json:"view"`
	UserID string     `json:"user_id"`
}

func viewOf(o *orders.Order) cachedStatus {
	return cachedStatus{
		UserID: o.UserID,
		View: StatusView{
			Success:      true,
			OrderID:      o.ID,
			OrderNumber:  o.OrderNumber,
			Status:       o.Status,
			TotalAmount:  o.TotalAmount,
			Currency:     o.Currency,
			PreferenceID: o.PreferenceID,
			CreatedAt:    o.CreatedAt,
		},
	}
}

func (s *Service) cache(ctx context.Context, o *orders.Order) {
	if s.Cache == nil {
		return
	}
	b, err := json.Marshal(viewOf(o))
	if err == nil {
		err = s.Cache.Set(ctx, o.ID, b)
	}
	if err != nil {
		slog.Warn("cache order status", "order_id", o.ID, "err", err)
	}
}

// Status returns the polling view for an order. Anonymous callers may poll
// any order id; authenticated customers only see their own orders.
func (s *Service) Status(ctx context.Context, orderID string, caller *authx.Identity) (StatusView, error) {
	if !orders.ValidID(orderID) {
		return StatusView{}, orders.ErrNotFound
	}
	entry, ok := s.cached(ctx, orderID)
	if !ok {
		o, err := s.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return StatusView{}, err
		}
		entry = viewOf(o)
		s.cache(ctx, o)
	}
	if caller != nil && caller.UserID != entry.UserID && !caller.Staff() {
		return StatusView{}, orders.ErrNotFound
	}
	return entry.View, nil
}

func (s *Service) cached(ctx context.Context, orderID string) (cachedStatus, bool) {
	var entry cachedStatus
	if s.Cache == nil {
		return entry, false
	}
	b, ok, err := s.Cache.Get(ctx, orderID)
	if err != nil {
		slog.Warn("read order status cache", "order_id", orderID, "err", err)
		return entry, false
	}
	if !ok || json.Unmarshal(b, &entry) != nil {
		return entry, false
	}
	return entry, true
}
