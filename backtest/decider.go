package backtest

import (
	"context"
	"time"

	"github.com/rustyeddy/papertrade/ledger"
)

// DecisionRequest is what a Decider sees on one trading day.
type DecisionRequest struct {
	RunID   string
	Account string
	Date    time.Time
	AsOf    time.Time
	Symbols []string
}

// Decider places the day's orders through t. An error fails the run.
type Decider interface {
	Decide(ctx context.Context, req DecisionRequest, t ledger.Trader) error
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, req DecisionRequest, t ledger.Trader) error

func (f DeciderFunc) Decide(ctx context.Context, req DecisionRequest, t ledger.Trader) error {
	return f(ctx, req, t)
}

// Hold never trades.
var Hold = DeciderFunc(func(context.Context, DecisionRequest, ledger.Trader) error { return nil })
