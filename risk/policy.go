// Package risk applies pre-trade limits to signals before they reach the
// ledger.
package risk

import "github.com/shopspring/decimal"

// Policy limits are fractions of account equity. A zero limit is not
// checked.
type Policy struct {
	// MaxTradePct caps a single buy's notional.
	MaxTradePct decimal.Decimal
	// MaxPositionPct caps one symbol's value after the buy.
	MaxPositionPct decimal.Decimal
	// MinCashReservePct is the cash that must remain after a buy.
	MinCashReservePct decimal.Decimal
}

// DefaultPolicy is 10% per trade, 30% per symbol and a 5% cash reserve.
func DefaultPolicy() Policy {
	return Policy{
		MaxTradePct:       decimal.RequireFromString("0.10"),
		MaxPositionPct:    decimal.RequireFromString("0.30"),
		MinCashReservePct: decimal.RequireFromString("0.05"),
	}
}

// Snapshot is the account state a signal is checked against. Values maps
// symbol to the current market value of the open position.
type Snapshot struct {
	Cash      decimal.Decimal
	Equity    decimal.Decimal
	Values    map[string]decimal.Decimal
	Available map[string]int64
}
