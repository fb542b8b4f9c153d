package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/papertrade/execution"
	"github.com/rustyeddy/papertrade/indicators"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/shopspring/decimal"
)

// EMACross trades each symbol long-only on a fast/slow EMA crossover:
//   - Bull cross (fast-slow goes from <=0 to >0) buys Quantity when flat
//   - Bear cross (fast-slow goes from >=0 to <0) sells every available share
//
// The diff is recomputed from History each day, so the source keeps no state
// and replays identically.
type EMACross struct {
	Fast     int
	Slow     int
	Quantity int64
	History  History
}

var _ execution.SignalSource = (*EMACross)(nil)

func (s *EMACross) Validate() error {
	if s.Fast <= 0 || s.Slow <= 0 {
		return fmt.Errorf("ema-cross: periods must be positive (fast=%d slow=%d)", s.Fast, s.Slow)
	}
	if s.Fast >= s.Slow {
		return fmt.Errorf("ema-cross: fast period %d must be shorter than slow %d", s.Fast, s.Slow)
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("ema-cross: quantity must be positive, got %d", s.Quantity)
	}
	if s.History == nil {
		return fmt.Errorf("ema-cross: History is required")
	}
	return nil
}

func (s *EMACross) Signals(ctx context.Context, dc execution.DecisionContext) ([]execution.Signal, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	held := make(map[string]ledger.Position, len(dc.Positions))
	for _, p := range dc.Positions {
		if p.IsOpen() {
			held[p.Symbol] = p
		}
	}

	var out []execution.Signal
	for _, sym := range dc.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		closes := s.History.Closes(sym, dc.AsOf)
		// Need the slow EMA on both today and yesterday.
		if len(closes) < s.Slow+1 {
			continue
		}
		prev, err := s.diff(closes[:len(closes)-1])
		if err != nil {
			return nil, err
		}
		diff, err := s.diff(closes)
		if err != nil {
			return nil, err
		}

		pos, open := held[sym]
		switch {
		case diff > 0 && prev <= 0 && !open:
			out = append(out, execution.Signal{
				Symbol:    sym,
				Action:    execution.ActionBuy,
				Quantity:  s.Quantity,
				Rationale: fmt.Sprintf("BullCross EMA(%d)/EMA(%d)", s.Fast, s.Slow),
			})
		case diff < 0 && prev >= 0 && open && pos.Available > 0:
			out = append(out, execution.Signal{
				Symbol:    sym,
				Action:    execution.ActionSell,
				Quantity:  pos.Available,
				Rationale: fmt.Sprintf("BearCross EMA(%d)/EMA(%d)", s.Fast, s.Slow),
			})
		}
	}
	return out, nil
}

func (s *EMACross) diff(closes []decimal.Decimal) (float64, error) {
	fast, err := indicators.EMA(closes, s.Fast)
	if err != nil {
		return 0, err
	}
	slow, err := indicators.EMA(closes, s.Slow)
	if err != nil {
		return 0, err
	}
	return fast - slow, nil
}
