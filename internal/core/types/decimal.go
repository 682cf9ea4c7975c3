// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Storage scales of the NUMERIC(18, 4) columns.
const (
	QuantityScale int32 = 4
	MoneyScale    int32 = 4
)

// Money represents a monetary value. Stored as NUMERIC(18, 4).
type Money = decimal.Decimal

// Quantity is a consumed or stocked amount in the product's unit of measure.
// Fractional quantities are allowed down to QuantityScale decimal places.
type Quantity = decimal.Decimal

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// MustQuantity creates a Quantity from a string, panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	return decimal.RequireFromString(s)
}

// NewQuantity creates a Quantity from an integer number of units.
func NewQuantity(units int64) Quantity {
	return decimal.NewFromInt(units)
}

// Zero returns zero value.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// FitsScale reports whether d has at most scale decimal places.
func FitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// LineAmount returns quantity × unit price rounded half away from zero to
// MoneyScale, the value the net_amount column stores.
func LineAmount(qty Quantity, unitPrice Money) Money {
	return qty.Mul(unitPrice).Round(MoneyScale)
}
