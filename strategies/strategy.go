// Package strategies holds built-in signal sources that decide from price
// history alone.
package strategies

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/execution"
	"github.com/shopspring/decimal"
)

// History is the close-price lookback a strategy decides on.
// *market.Series implements it.
type History interface {
	Closes(symbol string, asOf time.Time) []decimal.Decimal
}

// Params configures StrategyByName.
type Params struct {
	Fast     int
	Slow     int
	Quantity int64
}

// StrategyByName builds a signal source by name.
func StrategyByName(name string, hist History, p Params) (execution.SignalSource, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "noop", "none", "hold":
		return NoopStrategy{}, nil

	case "ema-cross", "emacross":
		s := &EMACross{Fast: p.Fast, Slow: p.Slow, Quantity: p.Quantity, History: hist}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: noop, ema-cross)", name)
	}
}
