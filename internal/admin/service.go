package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/daluzconsciente/tienda-api/internal/mailer"
	"github.com/daluzconsciente/tienda-api/internal/orders"
)

var (
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrInvalidFilter       = errors.New("invalid list filter")
	ErrInvalidNotification = errors.New("invalid notification")
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type OrderStore interface {
	List(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	UpdateFields(ctx context.Context, orderID string, p orders.Patch, guard func(prev orders.Status) error) (orders.Status, *orders.Order, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, orderID string) error
}

type Service struct {
	Orders    OrderStore
	Activity  ActivityLogger
	Mailer    mailer.Sender
	Cache     Invalidator
	Publisher events.Publisher

	ServiceName string
	StoreURL    string
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]orders.Order, error) {
	f := orders.ListFilter{Status: orders.Status(status), Limit: limit, Offset: offset}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, status)
	}
	if f.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidFilter)
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return s.Orders.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	if !orders.ValidID(orderID) {
		return nil, orders.ErrNotFound
	}
	return s.Orders.GetOrder(ctx, orderID)
}

// Update applies an operator patch. Fulfillment moves to shipped or delivered
// stamp the matching timestamp unless one is given.
func (s *Service) Update(ctx context.Context, adminID, orderID string, p orders.Patch) (*orders.Order, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidPatch)
	}
	if p.FulfillmentStatus != nil {
		now := s.now()
		switch *p.FulfillmentStatus {
		case orders.FulfillmentShipped:
			if p.ShippedAt == nil {
				p.ShippedAt = &now
			}
		case orders.FulfillmentDelivered:
			if p.DeliveredAt == nil {
				p.DeliveredAt = &now
			}
		}
	}
	return s.apply(ctx, adminID, orderID, p, ActionOrderUpdated)
}

// Cancel soft-deletes an order: the row stays, status becomes cancelled.
func (s *Service) Cancel(ctx context.Context, adminID, orderID string) (*orders.Order, error) {
	st := orders.StatusCancelled
	return s.apply(ctx, adminID, orderID, orders.Patch{Status: &st}, ActionOrderCancelled)
}

func (s *Service) apply(ctx context.Context, adminID, orderID string, p orders.Patch, action string) (*orders.Order, error) {
	if !orders.ValidID(orderID) {
		return nil, orders.ErrNotFound
	}
	guard := func(prev orders.Status) error {
		if p.Status == nil || *p.Status == prev || orders.CanTransition(prev, *p.Status) {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, *p.Status)
	}
	prev, o, err := s.Orders.UpdateFields(ctx, orderID, p, guard)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, orderID); err != nil {
			slog.Warn("invalidate order status cache", "order_id", orderID, "err", err)
		}
	}
	s.log(ctx, Activity{
		AdminID: adminID, Action: action, EntityType: "order", EntityID: orderID,
		Details: map[string]any{"changes": changes(p), "previous_status": prev},
	})
	if o.Status != prev {
		events.Emit(ctx, s.Publisher, s.ServiceName, events.EventOrderStatusChanged, orderID, "",
			events.OrderStatusChangedPayload{OrderID: orderID, From: string(prev), To: string(o.Status), Source: events.SourceAdmin})
	}
	return o, nil
}

type NotifyRequest struct {
	Type    mailer.Kind `json:"type"`
	Subject string      `json:"subject,omitempty"`
	Message string      `json:"message,omitempty"`
}

// validate accepts every template kind except the confirmation, which only
// the payment flow sends.
func (r NotifyRequest) validate() error {
	if !r.Type.Valid() || r.Type == mailer.KindConfirmation {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, r.Type)
	}
	if r.Type == mailer.KindCustom && strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: custom notification needs a message", ErrInvalidNotification)
	}
	return nil
}

// Notify sends a templated email about the order to its customer.
func (s *Service) Notify(ctx context.Context, adminID, orderID string, req NotifyRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	msg, err := mailer.Render(req.Type, mailer.Data{Order: o, Subject: req.Subject, Message: req.Message, StoreURL: s.StoreURL})
	if err != nil {
		return err
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify order %s: %w", orderID, err)
	}
	s.log(ctx, Activity{
		AdminID: adminID, Action: ActionOrderNotified, EntityType: "order", EntityID: orderID,
		Details: map[string]any{"type": req.Type, "to": o.Email},
	})
	return nil
}

func (s *Service) log(ctx context.Context, a Activity) {
	if s.Activity == nil {
		return
	}
	if err := s.Activity.Log(ctx, a); err != nil {
		slog.Warn("write admin activity", "action", a.Action, "entity_id", a.EntityID, "err", err)
	}
}

func changes(p orders.Patch) map[string]any {
	out := map[string]any{}
	if p.Status != nil {
		out["status"] = *p.Status
	}
	if p.PaymentStatus != nil {
		out["payment_status"] = *p.PaymentStatus
	}
	if p.FulfillmentStatus != nil {
		out["fulfillment_status"] = *p.FulfillmentStatus
	}
	if p.TrackingNumber != nil {
		out["tracking_number"] = *p.TrackingNumber
	}
	if p.TrackingURL != nil {
		out["tracking_url"] = *p.TrackingURL
	}
	if p.ShippingCarrier != nil {
		out["shipping_carrier"] = *p.ShippingCarrier
	}
	if p.Notes != nil {
		out["notes"] = *p.Notes
	}
	if p.ShippedAt != nil {
		out["shipped_at"] = *p.ShippedAt
	}
	if p.DeliveredAt != nil {
		out["delivered_at"] = *p.DeliveredAt
	}
	return out
}
