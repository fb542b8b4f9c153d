// Package indicators computes moving averages over daily closes.
package indicators

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MA calculates the Simple Moving Average of the last period closes.
func MA(closes []decimal.Decimal, period int) (float64, error) {
	if err := check(closes, period); err != nil {
		return 0, err
	}

	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c.InexactFloat64()
	}
	return sum / float64(period), nil
}

// EMA calculates the Exponential Moving Average for the given period,
// seeded with the SMA of the first period closes.
func EMA(closes []decimal.Decimal, period int) (float64, error) {
	if err := check(closes, period); err != nil {
		return 0, err
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for _, c := range closes[:period] {
		sma += c.InexactFloat64()
	}
	ema := sma / float64(period)

	for _, c := range closes[period:] {
		ema = (c.InexactFloat64()-ema)*multiplier + ema
	}
	return ema, nil
}

func check(closes []decimal.Decimal, period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < period {
		return fmt.Errorf("not enough closes: need %d, got %d", period, len(closes))
	}
	return nil
}
