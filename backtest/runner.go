// Package backtest replays trading days against a dedicated ledger account
// and records the resulting equity curve.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultInitialCapital is used when Config.InitialCapital is zero.
var DefaultInitialCapital = decimal.NewFromInt(1_000_000)

// Config describes one backtest.
type Config struct {
	Name           string
	Symbols        []string
	Start          time.Time
	End            time.Time
	IntervalDays   int
	InitialCapital decimal.Decimal
	// AccountNumber overrides the generated "BT-..." account.
	AccountNumber string
}

func (c Config) withDefaults() Config {
	if c.IntervalDays == 0 {
		c.IntervalDays = 1
	}
	if c.InitialCapital.IsZero() {
		c.InitialCapital = DefaultInitialCapital
	}
	c.Start, c.End = equity.Day(c.Start), equity.Day(c.End)
	syms := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			syms = append(syms, s)
		}
	}
	c.Symbols = syms
	return c
}

func (c Config) Validate() error {
	c = c.withDefaults()
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("backtest: name is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("backtest: at least one symbol is required")
	}
	if c.Start.IsZero() || c.End.IsZero() {
		return fmt.Errorf("backtest: start and end dates are required")
	}
	if c.End.Before(c.Start) {
		return fmt.Errorf("backtest: end %s is before start %s",
			c.End.Format(equity.DateLayout), c.Start.Format(equity.DateLayout))
	}
	if c.IntervalDays < 1 {
		return fmt.Errorf("backtest: interval_days must be at least 1")
	}
	if !c.InitialCapital.IsPositive() {
		return fmt.Errorf("backtest: initial capital must be positive")
	}
	return nil
}

// Result is a finished run and its curve.
type Result struct {
	Run   Run
	Curve *equity.Curve
}

// Runner drives a Decider day by day over a dedicated account.
type Runner struct {
	Ledger   *ledger.Engine
	Runs     RunStore
	Prices   market.Feed
	Decider  Decider
	Calendar Calendar
	Log      *zap.Logger
	Tracer   trace.Tracer
	Metrics  *Metrics

	// Concurrency bounds in-flight price lookups while marking to market.
	Concurrency int
	Now         func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Runner) check() error {
	if r.Ledger == nil {
		return fmt.Errorf("backtest: Ledger is required")
	}
	if r.Runs == nil {
		return fmt.Errorf("backtest: Runs is required")
	}
	if r.Prices == nil {
		return fmt.Errorf("backtest: Prices is required")
	}
	if r.Decider == nil {
		return fmt.Errorf("backtest: Decider is required")
	}
	return nil
}

// Run executes the backtest:
//  1. create the run record and its account, seed the curve with capital
//  2. for each trading day: decide, mark open positions, append the point
//  3. compute summary metrics and mark the run COMPLETED
//
// Any failure after the run record exists marks it FAILED with the error
// message; the error is returned.
func (r *Runner) Run(ctx context.Context, cfg Config) (Result, error) {
	if err := r.check(); err != nil {
		return Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	cfg = cfg.withDefaults()

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	tracer := r.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/rustyeddy/papertrade/backtest")
	}
	cal := r.Calendar
	if cal == nil {
		cal = WeekdayCalendar{}
	}

	ctx, span := tracer.Start(ctx, "backtest.Run", trace.WithAttributes(
		attribute.String("name", cfg.Name),
		attribute.StringSlice("symbols", cfg.Symbols),
		attribute.String("start", cfg.Start.Format(equity.DateLayout)),
		attribute.String("end", cfg.End.Format(equity.DateLayout)),
	))
	defer span.End()

	now := r.now()
	run := Run{
		ID:             id.New(),
		Name:           cfg.Name,
		Symbols:        cfg.Symbols,
		Start:          cfg.Start,
		End:            cfg.End,
		IntervalDays:   cfg.IntervalDays,
		InitialCapital: cfg.InitialCapital,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Runs.CreateRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("backtest: create run: %w", err)
	}
	log = log.With(zap.String("run_id", run.ID), zap.String("name", cfg.Name))
	span.SetAttributes(attribute.String("run_id", run.ID))

	curve := &equity.Curve{}
	err := r.execute(ctx, cfg, &run, curve, cal, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.ErrorMessage = err.Error()
		if aerr := run.advance(StatusFailed, r.now()); aerr != nil {
			err = errors.Join(err, aerr)
		} else if uerr := r.Runs.UpdateRun(context.WithoutCancel(ctx), run); uerr != nil {
			// WithoutCancel: the failure is recorded even when ctx was cancelled.
			err = errors.Join(err, fmt.Errorf("backtest: mark failed: %w", uerr))
		}
		r.Metrics.runFinished(run.Status)
		log.Error("backtest failed", zap.Error(err))
		return Result{Run: run, Curve: curve}, err
	}

	r.Metrics.runFinished(run.Status)
	log.Info("backtest completed",
		zap.String("account", run.AccountNumber),
		zap.Int("points", curve.Len()),
		zap.Stringer("final_equity", run.FinalEquity.Decimal),
		zap.Stringer("total_return", run.TotalReturn.Decimal))
	return Result{Run: run, Curve: curve}, nil
}

func (r *Runner) execute(ctx context.Context, cfg Config, run *Run, curve *equity.Curve, cal Calendar, log *zap.Logger) error {
	number := cfg.AccountNumber
	if number == "" {
		var err error
		if number, err = id.AccountNumber("BT"); err != nil {
			return err
		}
	}
	_, err := r.Ledger.OpenAccount(ctx, ledger.OpenAccountRequest{
		Number: number,
		Name:   "Backtest " + cfg.Name,
		Description: fmt.Sprintf("Backtest account: %s ~ %s",
			cfg.Start.Format(equity.DateLayout), cfg.End.Format(equity.DateLayout)),
		InitialCash: cfg.InitialCapital,
	})
	if err != nil {
		return err
	}

	run.AccountNumber = number
	if err := run.advance(StatusRunning, r.now()); err != nil {
		return err
	}
	if err := r.Runs.UpdateRun(ctx, *run); err != nil {
		return fmt.Errorf("backtest: mark running: %w", err)
	}

	seed := equity.Point{
		Date:        cfg.Start,
		Equity:      cfg.InitialCapital,
		Cash:        cfg.InitialCapital,
		MarketValue: decimal.Zero,
	}
	if err := r.record(ctx, run.ID, curve, seed); err != nil {
		return err
	}

	days := cal.TradingDays(cfg.Start, cfg.End, cfg.IntervalDays)
	log.Info("backtest started",
		zap.String("account", number),
		zap.Int("trading_days", len(days)),
		zap.Stringer("capital", cfg.InitialCapital))

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}
		asOf := EndOfDay(day)
		req := DecisionRequest{RunID: run.ID, Account: number, Date: day, AsOf: asOf, Symbols: cfg.Symbols}
		if err := r.Decider.Decide(ctx, req, r.Ledger); err != nil {
			return fmt.Errorf("%s: decide: %w", day.Format(equity.DateLayout), err)
		}

		cash, mv, err := r.valuate(ctx, number, asOf)
		if err != nil {
			return fmt.Errorf("%s: mark to market: %w", day.Format(equity.DateLayout), err)
		}
		p := equity.Point{Date: day, Equity: cash.Add(mv), Cash: cash, MarketValue: mv}
		if err := r.record(ctx, run.ID, curve, p); err != nil {
			return err
		}
		r.Metrics.dayDone()
		log.Debug("trading day done",
			zap.String("date", day.Format(equity.DateLayout)),
			zap.Stringer("equity", p.Equity))
	}

	if fe, ok := curve.FinalEquity(); ok {
		run.FinalEquity = money.Null(fe)
	}
	if tr, ok := curve.TotalReturn(); ok {
		run.TotalReturn = money.Null(tr)
	}
	if s, ok := curve.Sharpe(equity.TradingDaysPerYear); ok {
		run.SharpeRatio = money.Null(decimal.NewFromFloat(s).Round(money.PercentPlaces))
	}
	if dd, ok := curve.MaxDrawdown(); ok {
		run.MaxDrawdown = money.Null(decimal.NewFromFloat(dd).Round(money.PercentPlaces))
	}
	if err := run.advance(StatusCompleted, r.now()); err != nil {
		return err
	}
	if err := r.Runs.UpdateRun(ctx, *run); err != nil {
		return fmt.Errorf("backtest: mark completed: %w", err)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, runID string, curve *equity.Curve, p equity.Point) error {
	stored, err := curve.Add(p)
	if err != nil {
		return err
	}
	if err := r.Runs.AppendEquity(ctx, runID, stored); err != nil {
		return fmt.Errorf("backtest: append equity: %w", err)
	}
	return nil
}

// valuate returns the account's cash and the market value of its open
// positions as of asOf. Lookups run concurrently; the sum is taken in
// position order so the result does not depend on scheduling.
func (r *Runner) valuate(ctx context.Context, account string, asOf time.Time) (cash, mv decimal.Decimal, err error) {
	acct, err := r.Ledger.Snapshot(ctx, account)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	positions, err := r.Ledger.OpenPositions(ctx, account)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	prices := make([]decimal.Decimal, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)
	for i, p := range positions {
		g.Go(func() error {
			px, ok, err := r.Prices.Price(gctx, p.Symbol, asOf)
			if err != nil {
				return fmt.Errorf("price %s: %w", p.Symbol, err)
			}
			switch {
			case ok:
				prices[i] = px
			case p.MarketPrice.Valid:
				prices[i] = p.MarketPrice.Decimal
			default:
				prices[i] = p.AverageCost
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	mv = decimal.Zero
	for i, p := range positions {
		mv = mv.Add(money.Notional(prices[i], p.Quantity))
	}
	return acct.Balance, mv, nil
}
