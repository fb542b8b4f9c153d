package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/execution"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/risk"
	"github.com/rustyeddy/papertrade/strategies"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay scripted signals over historical closes",
	Long: `Backtest opens a dedicated account, replays each trading day between
start and end, and records the daily equity curve.

Prices are a CSV of date,symbol,close. Signals are a CSV of
date,symbol,action,quantity[,confidence,rationale]. Without signals the run
uses --strategy (ema-cross trades a fast/slow EMA crossover on the closes),
or holds cash when no strategy is set.

Example:
  papertrade backtest run --prices closes.csv --signals signals.csv \
    --symbols AAPL,MSFT --start 2024-01-01 --end 2024-03-31 --capital 100000`,
}

var backtestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest",
	RunE:  runBacktest,
}

var backtestShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktestShow,
}

var backtestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backtest runs, newest first",
	RunE:  runBacktestList,
}

var (
	btName        string
	btSymbols     []string
	btStart       string
	btEnd         string
	btInterval    int
	btCapital     string
	btPrices      string
	btSignals     string
	btAccount     string
	btCurveOut    string
	btConcurrency int
	btLenient     bool
	btStrategy    string
	btFast        int
	btSlow        int
	btQuantity    int64
	btListLimit   int
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestShowCmd)
	backtestCmd.AddCommand(backtestListCmd)

	f := backtestRunCmd.Flags()
	f.StringVar(&btName, "name", "", "run name (default backtest.name)")
	f.StringSliceVar(&btSymbols, "symbols", nil, "comma separated symbols (default backtest.symbols)")
	f.StringVar(&btStart, "start", "", "first day, YYYY-MM-DD (default backtest.start)")
	f.StringVar(&btEnd, "end", "", "last day, YYYY-MM-DD (default backtest.end)")
	f.IntVar(&btInterval, "interval", 0, "calendar days between steps (default backtest.interval_days)")
	f.StringVar(&btCapital, "capital", "", "initial capital (default backtest.initial_capital)")
	f.StringVar(&btPrices, "prices", "", "price CSV path (default backtest.prices_file)")
	f.StringVar(&btSignals, "signals", "", "signal CSV path (default backtest.signals_file)")
	f.StringVar(&btAccount, "account", "", "account number to open instead of a generated BT-... one")
	f.StringVar(&btCurveOut, "curve", "", "write the equity curve CSV to this path")
	f.IntVar(&btConcurrency, "concurrency", 0, "parallel price lookups while marking to market")
	f.BoolVar(&btLenient, "lenient", false, "record rejected signals instead of failing the run")
	f.StringVar(&btStrategy, "strategy", "", "built-in strategy when no signals are given: noop, ema-cross")
	f.IntVar(&btFast, "fast", 0, "ema-cross fast period (default backtest.strategy.fast)")
	f.IntVar(&btSlow, "slow", 0, "ema-cross slow period (default backtest.strategy.slow)")
	f.Int64Var(&btQuantity, "qty", 0, "ema-cross shares per entry (default backtest.strategy.quantity)")

	backtestShowCmd.Flags().StringVar(&btCurveOut, "curve", "", "write the equity curve CSV to this path")
	backtestListCmd.Flags().IntVarP(&btListLimit, "limit", "l", 20, "maximum runs to show (0 for all)")
}

// runConfig merges flags over the backtest section of the config.
func runConfig(a *app) (backtest.Config, error) {
	bc := a.cfg.Backtest
	if btName != "" {
		bc.Name = btName
	}
	if len(btSymbols) > 0 {
		bc.Symbols = btSymbols
	}
	if btStart != "" {
		bc.Start = btStart
	}
	if btEnd != "" {
		bc.End = btEnd
	}
	if btInterval != 0 {
		bc.IntervalDays = btInterval
	}
	if btCapital != "" {
		bc.InitialCapital = btCapital
	}

	start, end, err := bc.Dates()
	if err != nil {
		return backtest.Config{}, err
	}
	capital, err := bc.Capital()
	if err != nil {
		return backtest.Config{}, fmt.Errorf("capital: %w", err)
	}
	cfg := backtest.Config{
		Name:           bc.Name,
		Symbols:        bc.Symbols,
		Start:          start,
		End:            end,
		IntervalDays:   bc.IntervalDays,
		InitialCapital: capital,
		AccountNumber:  btAccount,
	}
	return cfg, cfg.Validate()
}

func pathOr(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func loadPrices(path string) (*market.Series, error) {
	if path == "" {
		return nil, fmt.Errorf("a price file is required (--prices or backtest.prices_file)")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return market.LoadCSV(f)
}

func loadScript(path string) (*execution.Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return execution.LoadScript(f)
}

// signalSource picks the signals file when one is set, then the configured
// strategy. A nil source means hold.
func signalSource(a *app, series *market.Series) (execution.SignalSource, error) {
	if path := pathOr(btSignals, a.cfg.Backtest.SignalsFile); path != "" {
		script, err := loadScript(path)
		if err != nil {
			return nil, fmt.Errorf("signals: %w", err)
		}
		return script, nil
	}

	sc := a.cfg.Backtest.Strategy
	name := pathOr(btStrategy, sc.Name)
	if name == "" {
		return nil, nil
	}
	p := strategies.Params{Fast: sc.Fast, Slow: sc.Slow, Quantity: sc.Quantity}
	if btFast != 0 {
		p.Fast = btFast
	}
	if btSlow != 0 {
		p.Slow = btSlow
	}
	if btQuantity != 0 {
		p.Quantity = btQuantity
	}
	return strategies.StrategyByName(name, series, p)
}

// priceFeed wraps the series in the Redis cache when one is configured.
func priceFeed(ctx context.Context, a *app, series market.Feed) (market.Feed, error) {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return series, nil
	}
	rdb, err := market.NewRedisClient(ctx, market.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, func() { _ = rdb.Close() })
	return market.NewCachedFeed(series, rdb, rc.TTL.Duration, a.log.Named("price-cache")), nil
}

// riskFilter returns the configured pre-trade policy, or AllowAll when
// risk checks are disabled.
func riskFilter(a *app, feed market.Feed) (execution.Filter, error) {
	rc := a.cfg.Risk
	if !rc.Enabled {
		return execution.AllowAll, nil
	}
	trade, position, reserve, err := rc.Limits()
	if err != nil {
		return nil, fmt.Errorf("risk: %w", err)
	}
	return &risk.Filter{
		Policy: risk.Policy{MaxTradePct: trade, MaxPositionPct: position, MinCashReservePct: reserve},
		Prices: feed,
		Resize: rc.Resize,
		Log:    a.log.Named("risk"),
	}, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		cfg, err := runConfig(a)
		if err != nil {
			return err
		}
		series, err := loadPrices(pathOr(btPrices, a.cfg.Backtest.PricesFile))
		if err != nil {
			return fmt.Errorf("prices: %w", err)
		}
		feed, err := priceFeed(ctx, a, series)
		if err != nil {
			return err
		}

		source, err := signalSource(a, series)
		if err != nil {
			return err
		}
		var decider backtest.Decider = backtest.Hold
		if source != nil {
			filter, err := riskFilter(a, feed)
			if err != nil {
				return err
			}
			log := a.log.Named("execution")
			decider = &execution.Workflow{
				Source:   source,
				Filter:   filter,
				Executor: &execution.Executor{Prices: feed, Strict: !btLenient, Log: log},
				OnSummary: func(req backtest.DecisionRequest, s execution.Summary) {
					for _, e := range s.Errors {
						log.Warn("signal failed", zap.String("date", req.Date.Format(equity.DateLayout)), zap.String("error", e))
					}
				},
			}
		}

		concurrency := btConcurrency
		if concurrency == 0 {
			concurrency = a.cfg.Backtest.Concurrency
		}
		runner := &backtest.Runner{
			Ledger:      a.engine,
			Runs:        a.backend,
			Prices:      feed,
			Decider:     decider,
			Log:         a.log.Named("backtest"),
			Metrics:     a.btMetric,
			Concurrency: concurrency,
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Running backtest %q: %s from %s to %s\n\n", cfg.Name,
			strings.Join(cfg.Symbols, ","), cfg.Start.Format(equity.DateLayout), cfg.End.Format(equity.DateLayout))

		res, err := runner.Run(ctx, cfg)
		if res.Run.ID != "" {
			backtest.PrintResult(out, res)
		}
		if err != nil {
			return err
		}
		return writeCurve(out, res.Curve)
	})
}

func writeCurve(out io.Writer, c *equity.Curve) error {
	if btCurveOut == "" || c == nil {
		return nil
	}
	f, err := os.Create(btCurveOut)
	if err != nil {
		return err
	}
	if err := c.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Equity curve written: %s\n", btCurveOut)
	return nil
}

func runBacktestShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		run, err := a.backend.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		points, err := a.backend.ListEquity(ctx, run.ID)
		if err != nil {
			return err
		}
		res := backtest.Result{Run: run, Curve: equity.NewCurve(points)}
		out := cmd.OutOrStdout()
		backtest.PrintResult(out, res)
		return writeCurve(out, res.Curve)
	})
}

func runBacktestList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		runs, err := a.backend.ListRuns(ctx, btListLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No backtest runs")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPERIOD\tRETURN\tCREATED")
		for _, r := range runs {
			ret := "-"
			if r.TotalReturn.Valid {
				ret = r.TotalReturn.Decimal.StringFixed(2) + "%"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s ~ %s\t%s\t%s\n", r.ID, r.Name, r.Status,
				r.Start.Format(equity.DateLayout), r.End.Format(equity.DateLayout), ret,
				r.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}
