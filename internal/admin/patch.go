package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/orders"
)

var ErrInvalidPatch = errors.New("invalid order patch")

// patchBody lists the only fields an operator may change.
type patchBody struct {
	Status            *orders.Status            `json:"status"`
	PaymentStatus     *string                   `json:"payment_status"`
	FulfillmentStatus *orders.FulfillmentStatus `json:"fulfillment_status"`
	TrackingNumber    *string                   `json:"tracking_number"`
	TrackingURL       *string                   `json:"tracking_url"`
	ShippingCarrier   *string                   `json:"shipping_carrier"`
	Notes             *string                   `json:"notes"`
	ShippedAt         *time.Time                `json:"shipped_at"`
	DeliveredAt       *time.Time                `json:"delivered_at"`
}

// DecodePatch reads a PATCH body. Unknown fields and invalid enum values are
// rejected.
func DecodePatch(r io.Reader) (orders.Patch, error) {
	var b patchBody
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return orders.Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if b.Status != nil && !b.Status.Valid() {
		return orders.Patch{}, fmt.Errorf("%w: unknown status %q", ErrInvalidPatch, *b.Status)
	}
	if b.FulfillmentStatus != nil && !b.FulfillmentStatus.Valid() {
		return orders.Patch{}, fmt.Errorf("%w: unknown fulfillment_status %q", ErrInvalidPatch, *b.FulfillmentStatus)
	}
	p := orders.Patch(b)
	if p.Empty() {
		return p, fmt.Errorf("%w: no fields", ErrInvalidPatch)
	}
	return p, nil
}
