package orders

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (centavos). JSON renders it as a plain
// decimal number, e.g. 1234.50.
type Money int64

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(2).Round(0).IntPart())
}

func MoneyFromFloat(f float64) Money { return MoneyFromDecimal(decimal.NewFromFloat(f)) }

func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }

// Float64 is only meant for gateway payloads, which take floating amounts.
func (m Money) Float64() float64 { return m.Decimal().InexactFloat64() }

func (m Money) Times(qty int) Money { return m * Money(qty) }

func (m Money) String() string { return m.Decimal().StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", b, err)
	}
	*m = MoneyFromDecimal(d)
	return nil
}
