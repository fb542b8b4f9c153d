package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"go.uber.org/zap"
)

var (
	ErrInvalidSignal = errors.New("invalid signal")
	ErrNoPrice       = errors.New("no price available")
)

// Result is the outcome of one signal.
type Result struct {
	Signal    Signal
	Skipped   bool
	Execution *ledger.Execution
	Err       error
}

// Summary counts what happened to a batch of signals.
type Summary struct {
	Total    int
	Executed int
	Skipped  int
	Failed   int
	Results  []Result
	Errors   []string
}

func (s *Summary) fail(sig Signal, err error) {
	s.Failed++
	s.Results = append(s.Results, Result{Signal: sig, Err: err})
	s.Errors = append(s.Errors, fmt.Sprintf("%s %s: %v", sig.Action, sig.Symbol, err))
}

// Executor fills signals at the feed's price. In Strict mode the first failed
// signal stops the batch and is returned; otherwise failures are recorded in
// the Summary and the rest of the batch still runs. Storage and feed errors
// always stop the batch.
type Executor struct {
	Trader ledger.Trader
	Prices market.Feed
	Strict bool
	Log    *zap.Logger
}

func (x *Executor) logger() *zap.Logger {
	if x.Log == nil {
		return zap.NewNop()
	}
	return x.Log
}

func (x *Executor) Execute(ctx context.Context, account string, asOf time.Time, signals []Signal) (Summary, error) {
	if x.Trader == nil {
		return Summary{}, fmt.Errorf("execution: Trader is required")
	}
	if x.Prices == nil {
		return Summary{}, fmt.Errorf("execution: Prices is required")
	}
	log := x.logger()

	sum := Summary{Total: len(signals)}
	for _, sig := range signals {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		switch sig.Action {
		case ActionHold, ActionWait:
			sum.Skipped++
			sum.Results = append(sum.Results, Result{Signal: sig, Skipped: true})
			continue
		case ActionBuy, ActionSell:
		default:
			if err := x.failed(&sum, sig, fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, sig.Action)); err != nil {
				return sum, err
			}
			continue
		}

		if sig.Symbol == "" || sig.Quantity <= 0 {
			if err := x.failed(&sum, sig, fmt.Errorf("%w: need a symbol and positive quantity, got %q x %d",
				ErrInvalidSignal, sig.Symbol, sig.Quantity)); err != nil {
				return sum, err
			}
			continue
		}

		px, ok, err := x.Prices.Price(ctx, sig.Symbol, asOf)
		if err != nil {
			return sum, fmt.Errorf("price %s: %w", sig.Symbol, err)
		}
		if !ok {
			if err := x.failed(&sum, sig, fmt.Errorf("%w: %s as of %s", ErrNoPrice, sig.Symbol, asOf.Format(time.RFC3339))); err != nil {
				return sum, err
			}
			continue
		}

		req := ledger.OrderRequest{
			Account:  account,
			Symbol:   sig.Symbol,
			Quantity: sig.Quantity,
			Price:    px,
			Type:     ledger.MarketOrder,
			Notes:    sig.Rationale,
		}
		var ex ledger.Execution
		if sig.Action == ActionBuy {
			ex, err = x.Trader.PlaceBuy(ctx, req)
		} else {
			ex, err = x.Trader.PlaceSell(ctx, req)
		}
		if err != nil {
			if !ledger.IsRejection(err) {
				return sum, err
			}
			if err := x.failed(&sum, sig, err); err != nil {
				return sum, err
			}
			continue
		}

		sum.Executed++
		sum.Results = append(sum.Results, Result{Signal: sig, Execution: &ex})
	}

	log.Debug("signals executed",
		zap.String("account", account),
		zap.Int("total", sum.Total),
		zap.Int("executed", sum.Executed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

func (x *Executor) failed(sum *Summary, sig Signal, err error) error {
	sum.fail(sig, err)
	x.logger().Warn("signal not executed",
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)),
		zap.Error(err))
	if x.Strict {
		return fmt.Errorf("%s %s: %w", sig.Action, sig.Symbol, err)
	}
	return nil
}

// Workflow is the daily decide-and-execute pipeline: read the account, ask
// the source for signals, filter them and execute the survivors.
type Workflow struct {
	Source   SignalSource
	Filter   Filter
	Executor *Executor
	// OnSummary, when set, sees each day's summary.
	OnSummary func(req backtest.DecisionRequest, s Summary)
}

var _ backtest.Decider = (*Workflow)(nil)

func (w *Workflow) Decide(ctx context.Context, req backtest.DecisionRequest, t ledger.Trader) error {
	if w.Source == nil {
		return fmt.Errorf("execution: Source is required")
	}
	if w.Executor == nil {
		return fmt.Errorf("execution: Executor is required")
	}

	acct, err := t.Snapshot(ctx, req.Account)
	if err != nil {
		return err
	}
	positions, err := t.OpenPositions(ctx, req.Account)
	if err != nil {
		return err
	}
	dc := DecisionContext{AsOf: req.AsOf, Account: acct, Positions: positions, Symbols: req.Symbols}

	signals, err := w.Source.Signals(ctx, dc)
	if err != nil {
		return fmt.Errorf("signals: %w", err)
	}
	filter := w.Filter
	if filter == nil {
		filter = AllowAll
	}
	if signals, err = filter.Filter(ctx, dc, signals); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	x := *w.Executor
	x.Trader = t
	sum, err := x.Execute(ctx, req.Account, req.AsOf, signals)
	if w.OnSummary != nil {
		w.OnSummary(req, sum)
	}
	return err
}
