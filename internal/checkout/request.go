package checkout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/daluzconsciente/tienda-api/internal/orders"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidAddress  = errors.New("address number must be a positive integer")
	ErrMissingCustomer = errors.New("customer name and email are required")
)

// CartItem is a browser cart line. Price is accepted for compatibility and
// ignored: lines are re-priced from the catalog.
type CartItem struct {
	ProductID string       `json:"productId"`
	VariantID string       `json:"variantId,omitempty"`
	Name      string       `json:"name"`
	Price     orders.Money `json:"price"`
	Quantity  int          `json:"quantity"`
	Image     string       `json:"image,omitempty"`
	Size      string       `json:"size,omitempty"`
	SKU       string       `json:"sku,omitempty"`
}

// AddressNumber accepts both "742" and 742.
type AddressNumber string

func (n *AddressNumber) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = AddressNumber(strings.TrimSpace(s))
		return nil
	}
	*n = AddressNumber(b)
	return nil
}

func (n AddressNumber) Int() (int, bool) {
	v, err := strconv.Atoi(string(n))
	return v, err == nil && v > 0
}

type CustomerInfo struct {
	FirstName     string        `json:"firstName"`
	LastName      string        `json:"lastName"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone,omitempty"`
	Address       string        `json:"address"`
	AddressNumber AddressNumber `json:"addressNumber"`
	Apartment     string        `json:"apartment,omitempty"`
	City          string        `json:"city"`
	Province      string        `json:"province"`
	PostalCode    string        `json:"postalCode"`
	Country       string        `json:"country,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

type Request struct {
	Items        []CartItem   `json:"items"`
	CustomerInfo CustomerInfo `json:"customerInfo"`
}

func (r Request) Validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyCart
	}
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			return orders.ErrInvalidQuantity
		}
		if !orders.ValidID(it.ProductID) {
			return fmt.Errorf("%w: %q", orders.ErrProductUnavailable, it.ProductID)
		}
		if it.VariantID != "" && !orders.ValidID(it.VariantID) {
			return fmt.Errorf("%w: variant %q", orders.ErrProductUnavailable, it.VariantID)
		}
	}
	c := r.CustomerInfo
	if strings.TrimSpace(c.Email) == "" || strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return ErrMissingCustomer
	}
	if _, ok := c.AddressNumber.Int(); !ok {
		return ErrInvalidAddress
	}
	return nil
}

func (r Request) address() orders.Address {
	c := r.CustomerInfo
	country := c.Country
	if country == "" {
		country = "AR"
	}
	return orders.Address{
		Street:     strings.TrimSpace(c.Address),
		Number:     string(c.AddressNumber),
		Apartment:  c.Apartment,
		City:       c.City,
		Province:   c.Province,
		PostalCode: c.PostalCode,
		Country:    country,
		Notes:      c.Notes,
	}
}

func (r Request) lines() []orders.LineInput {
	out := make([]orders.LineInput, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, orders.LineInput{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return out
}
