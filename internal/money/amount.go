// Package money provides the fixed-point decimal type used for every
// ledger amount and balance. No binary floating-point is used anywhere
// in the engine.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Precision and Scale describe the storage shape required by spec.md:
// numeric(20, 8). Amounts are never rounded implicitly; arithmetic is
// exact addition/subtraction over shopspring/decimal.
const (
	Precision = 20
	Scale     = 8
)

// Amount is a non-negative-by-convention fixed-point quantity. The sign
// is enforced by callers (ledger amounts are strictly positive; balances
// are non-negative), not by the type itself.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// New wraps a decimal.Decimal.
func New(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// Parse parses a decimal string such as "100.50000000".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// FromInt constructs an amount from a whole-unit integer.
func FromInt(n int64) Amount {
	return Amount{d: decimal.NewFromInt(n)}
}

func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) String() string { return a.d.StringFixed(Scale) }

func (a Amount) Add(other Amount) Amount { return Amount{d: a.d.Add(other.d)} }

func (a Amount) Sub(other Amount) Amount { return Amount{d: a.d.Sub(other.d)} }

func (a Amount) IsPositive() bool { return a.d.IsPositive() }

func (a Amount) IsNegative() bool { return a.d.IsNegative() }

func (a Amount) IsZero() bool { return a.d.IsZero() }

// GreaterThanOrEqual reports whether a >= other.
func (a Amount) GreaterThanOrEqual(other Amount) bool {
	return a.d.Cmp(other.d) >= 0
}

// LessThan reports whether a < other.
func (a Amount) LessThan(other Amount) bool {
	return a.d.Cmp(other.d) < 0
}

// DecimalPlaces returns the number of digits after the decimal point
// needed to represent the value exactly, used to validate an amount's
// scale against an asset's declared decimals.
func (a Amount) DecimalPlaces() int32 {
	places := int32(0)
	for !a.d.Equal(a.d.Truncate(places)) {
		places++
	}
	return places
}

// MarshalJSON renders the amount as a JSON string with full scale, so
// trailing zeros survive the wire as spec.md §9 requires.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.StringFixed(Scale) + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	a.d = d
	return nil
}
