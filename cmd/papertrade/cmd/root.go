package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/config"
	"github.com/rustyeddy/papertrade/internal/telemetry"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/logging"
	"github.com/rustyeddy/papertrade/store"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "A paper-trading ledger and daily backtest runner",
	Long: `Papertrade keeps simulated brokerage accounts and replays trading days.

It provides tools for:
  - Opening paper accounts and settling buy/sell orders
  - Tracking positions, cost basis and realized P/L
  - Replaying scripted signals over historical closes
  - Recording equity curves with return, Sharpe and drawdown

Storage is sqlite by default; Postgres and an in-memory store are available.`,
	SilenceUsage: true,
}

var (
	cfgFile     string
	metricsAddr string
	logLevel    string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); PAPERTRADE_* env vars apply either way")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, nil
}

// app is the wiring shared by commands that touch the ledger.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	backend  store.Backend
	engine   *ledger.Engine
	btMetric *backtest.Metrics
	cleanup  []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.cleanup = append(a.cleanup, func() { _ = log.Sync() })

	shutdown, err := telemetry.InitTracing(cfg.Tracing.Enabled, cfg.Tracing.Service, version, os.Stderr)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.cleanup = append(a.cleanup, func() { _ = shutdown(context.Background()) })

	var reg prometheus.Registerer = prometheus.NewRegistry()
	if cfg.Metrics.Addr != "" {
		r := telemetry.NewRegistry()
		stop, err := telemetry.ServeMetrics(cfg.Metrics.Addr, r, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		a.cleanup = append(a.cleanup, stop)
		reg = r
	}

	backend, err := store.Open(ctx, store.Options{
		Driver:      cfg.Store.Driver,
		DSN:         cfg.Store.DSN,
		MaxConns:    cfg.Store.MaxConns,
		BusyTimeout: cfg.Store.BusyTimeout.Duration,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.backend = backend
	a.cleanup = append(a.cleanup, func() { _ = backend.Close() })

	a.engine = ledger.NewEngine(backend,
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithMetrics(ledger.NewMetrics(reg)),
		ledger.WithTracer(otel.Tracer("github.com/rustyeddy/papertrade/ledger")),
	)
	a.btMetric = backtest.NewMetrics(reg)
	return a, nil
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// accountOr returns flag when set, else the configured default account.
func (a *app) accountOr(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Account.Number
}
