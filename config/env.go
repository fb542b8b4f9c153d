package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAPERTRADE_"

// loadDotEnv reads ./.env when present. Variables already set in the
// environment win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Store.Driver, "STORE_DRIVER")
	setStr(&cfg.Store.DSN, "STORE_DSN")
	setInt(&cfg.Store.MaxConns, "STORE_MAX_CONNS")
	setDuration(&cfg.Store.BusyTimeout, "STORE_BUSY_TIMEOUT")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setDuration(&cfg.Redis.TTL, "REDIS_TTL")

	setStr(&cfg.Log.Level, "LOG_LEVEL")
	setStr(&cfg.Log.Encoding, "LOG_ENCODING")
	setStr(&cfg.Log.File, "LOG_FILE")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setStr(&cfg.Tracing.Service, "TRACING_SERVICE")

	setStr(&cfg.Metrics.Addr, "METRICS_ADDR")

	setStr(&cfg.Account.Number, "ACCOUNT_NUMBER")
	setStr(&cfg.Account.Name, "ACCOUNT_NAME")
	setStr(&cfg.Account.InitialCash, "ACCOUNT_INITIAL_CASH")

	setStr(&cfg.Backtest.Name, "BACKTEST_NAME")
	setStringSlice(&cfg.Backtest.Symbols, "BACKTEST_SYMBOLS")
	setStr(&cfg.Backtest.Start, "BACKTEST_START")
	setStr(&cfg.Backtest.End, "BACKTEST_END")
	setInt(&cfg.Backtest.IntervalDays, "BACKTEST_INTERVAL_DAYS")
	setStr(&cfg.Backtest.InitialCapital, "BACKTEST_INITIAL_CAPITAL")
	setStr(&cfg.Backtest.PricesFile, "BACKTEST_PRICES_FILE")
	setStr(&cfg.Backtest.SignalsFile, "BACKTEST_SIGNALS_FILE")
	setStr(&cfg.Backtest.Strategy.Name, "BACKTEST_STRATEGY")
	setInt(&cfg.Backtest.Strategy.Fast, "BACKTEST_STRATEGY_FAST")
	setInt(&cfg.Backtest.Strategy.Slow, "BACKTEST_STRATEGY_SLOW")
	setInt64(&cfg.Backtest.Strategy.Quantity, "BACKTEST_STRATEGY_QUANTITY")

	setBool(&cfg.Risk.Enabled, "RISK_ENABLED")
	setStr(&cfg.Risk.MaxTradePct, "RISK_MAX_TRADE_PCT")
	setStr(&cfg.Risk.MaxPositionPct, "RISK_MAX_POSITION_PCT")
	setStr(&cfg.Risk.MinCashReservePct, "RISK_MIN_CASH_RESERVE_PCT")
	setBool(&cfg.Risk.Resize, "RISK_RESIZE")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
