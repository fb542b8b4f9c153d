package risk

import (
	"context"
	"fmt"

	"github.com/rustyeddy/papertrade/execution"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Filter drops signals that break Policy. With Resize set, an oversized
// buy is shrunk to the largest allowed quantity instead of dropped.
type Filter struct {
	Policy Policy
	Prices market.Feed
	Resize bool
	Log    *zap.Logger
}

var _ execution.Filter = (*Filter)(nil)

func (f *Filter) Filter(ctx context.Context, dc execution.DecisionContext, signals []execution.Signal) ([]execution.Signal, error) {
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}

	snap, err := f.snapshot(ctx, dc)
	if err != nil {
		return nil, err
	}

	out := make([]execution.Signal, 0, len(signals))
	for _, sig := range signals {
		var px decimal.Decimal
		if sig.Action == execution.ActionBuy {
			p, ok, err := f.Prices.Price(ctx, sig.Symbol, dc.AsOf)
			if err != nil {
				return nil, fmt.Errorf("risk: price %s: %w", sig.Symbol, err)
			}
			if ok {
				px = p
			}
		}

		d := Evaluate(f.Policy, sig, px, snap)
		if !d.Allowed && f.Resize && sig.Action == execution.ActionBuy && d.MaxQuantity > 0 && px.IsPositive() {
			log.Info("buy resized by risk policy",
				zap.String("symbol", sig.Symbol),
				zap.Int64("requested", sig.Quantity),
				zap.Int64("allowed", d.MaxQuantity))
			sig.Quantity = d.MaxQuantity
			d = Evaluate(f.Policy, sig, px, snap)
		}
		if !d.Allowed {
			log.Warn("signal rejected by risk policy",
				zap.String("symbol", sig.Symbol),
				zap.String("action", string(sig.Action)),
				zap.String("reason", d.Reason()))
			continue
		}

		// Later signals in the batch see the effect of earlier approved ones.
		switch sig.Action {
		case execution.ActionBuy:
			snap.Cash = snap.Cash.Sub(d.Notional)
			snap.Values[sig.Symbol] = snap.Values[sig.Symbol].Add(d.Notional)
		case execution.ActionSell:
			snap.Available[sig.Symbol] -= sig.Quantity
		}
		out = append(out, sig)
	}
	return out, nil
}

// snapshot values open positions at the feed's price, falling back to the
// stored market price and then to average cost.
func (f *Filter) snapshot(ctx context.Context, dc execution.DecisionContext) (Snapshot, error) {
	s := Snapshot{
		Cash:      dc.Account.Balance,
		Equity:    dc.Account.Balance,
		Values:    make(map[string]decimal.Decimal, len(dc.Positions)),
		Available: make(map[string]int64, len(dc.Positions)),
	}
	for _, p := range dc.Positions {
		if !p.IsOpen() {
			continue
		}
		px, ok, err := f.Prices.Price(ctx, p.Symbol, dc.AsOf)
		if err != nil {
			return Snapshot{}, fmt.Errorf("risk: price %s: %w", p.Symbol, err)
		}
		if !ok {
			px = p.AverageCost
			if p.MarketPrice.Valid {
				px = p.MarketPrice.Decimal
			}
		}
		v := money.Notional(px, p.Quantity)
		s.Values[p.Symbol] = s.Values[p.Symbol].Add(v)
		s.Available[p.Symbol] += p.Available
		s.Equity = s.Equity.Add(v)
	}
	return s, nil
}
