// Package types provides the numeric helpers behind money and number
// attributes.
package types

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money is the runtime type of money attributes.
type Money = decimal.Decimal

// MustMoney parses s and panics on error. Used for range literals.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RoundFloat rounds f half away from zero to the given number of fraction digits.
func RoundFloat(f float64, digits int) float64 {
	if digits < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return decimal.NewFromFloat(f).Round(int32(digits)).InexactFloat64()
}

// RoundMoney rounds m to the given number of fraction digits.
func RoundMoney(m Money, digits int) Money {
	if digits < 0 {
		return m
	}
	return m.Round(int32(digits))
}

// ToDecimal converts any supported numeric value to a decimal.
// Used for range checks that must compare integers, floats and money uniformly.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case string:
		return decimal.NewFromString(n)
	}
	return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
}
