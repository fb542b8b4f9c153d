// Package money holds the fixed-precision helpers used for cash, prices and
// cost basis. All amounts are shopspring decimals; share counts are int64.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// CostPlaces is the precision kept for weighted-average cost.
	CostPlaces int32 = 6

	// PercentPlaces is the precision kept for percentage figures.
	PercentPlaces int32 = 6
)

var (
	Zero    = decimal.Zero
	Hundred = decimal.NewFromInt(100)
)

// Notional returns price * qty exactly.
func Notional(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// WeightedAverage blends an existing holding with a new fill.
//
//	(oldAvg*oldQty + price*qty) / (oldQty + qty)
//
// The result is rounded half away from zero to CostPlaces.
func WeightedAverage(oldAvg decimal.Decimal, oldQty int64, price decimal.Decimal, qty int64) decimal.Decimal {
	total := oldQty + qty
	if total <= 0 {
		return price.Round(CostPlaces)
	}
	cost := Notional(oldAvg, oldQty).Add(Notional(price, qty))
	return cost.DivRound(decimal.NewFromInt(total), CostPlaces+4).Round(CostPlaces)
}

// Percent returns delta/base*100 rounded to PercentPlaces. ok is false when
// base is not positive.
func Percent(delta, base decimal.Decimal) (decimal.Decimal, bool) {
	if !base.IsPositive() {
		return decimal.Zero, false
	}
	return delta.Mul(Hundred).DivRound(base, PercentPlaces+4).Round(PercentPlaces), true
}

// Parse parses a decimal amount, rejecting empty input.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for constants. It panics on bad input.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Null wraps d as a valid NullDecimal.
func Null(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
