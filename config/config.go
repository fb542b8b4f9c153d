// Package config loads papertrade settings from YAML, JSON or TOML files
// with PAPERTRADE_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete papertrade configuration.
type Config struct {
	Store    StoreConfig    `json:"store" yaml:"store" toml:"store"`
	Redis    RedisConfig    `json:"redis" yaml:"redis" toml:"redis"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing" toml:"tracing"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" toml:"metrics"`
	Account  AccountConfig  `json:"account" yaml:"account" toml:"account"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest" toml:"backtest"`
	Risk     RiskConfig     `json:"risk" yaml:"risk" toml:"risk"`
}

// StoreConfig selects the ledger database.
type StoreConfig struct {
	Driver      string   `json:"driver" yaml:"driver" toml:"driver"` // "memory", "sqlite" or "postgres"
	DSN         string   `json:"dsn" yaml:"dsn" toml:"dsn"`
	MaxConns    int      `json:"max_conns,omitempty" yaml:"max_conns,omitempty" toml:"max_conns,omitempty"`
	BusyTimeout Duration `json:"busy_timeout" yaml:"busy_timeout" toml:"busy_timeout"`
}

// RedisConfig enables the price cache when Addr is set.
type RedisConfig struct {
	Addr     string   `json:"addr,omitempty" yaml:"addr,omitempty" toml:"addr,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	DB       int      `json:"db" yaml:"db" toml:"db"`
	TTL      Duration `json:"ttl" yaml:"ttl" toml:"ttl"`
}

// LogConfig controls the zap logger. File enables rotated file output.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Encoding   string `json:"encoding" yaml:"encoding" toml:"encoding"` // "console" or "json"
	File       string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty" toml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty" toml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty" toml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty" toml:"compress,omitempty"`
}

type TracingConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Service string `json:"service" yaml:"service" toml:"service"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" toml:"addr,omitempty"`
}

// AccountConfig is the default account for the order commands.
type AccountConfig struct {
	Number      string `json:"number" yaml:"number" toml:"number"`
	Name        string `json:"name" yaml:"name" toml:"name"`
	InitialCash string `json:"initial_cash" yaml:"initial_cash" toml:"initial_cash"`
}

// BacktestConfig holds defaults for "backtest run". Dates are YYYY-MM-DD.
type BacktestConfig struct {
	Name           string         `json:"name" yaml:"name" toml:"name"`
	Symbols        []string       `json:"symbols" yaml:"symbols" toml:"symbols"`
	Start          string         `json:"start,omitempty" yaml:"start,omitempty" toml:"start,omitempty"`
	End            string         `json:"end,omitempty" yaml:"end,omitempty" toml:"end,omitempty"`
	IntervalDays   int            `json:"interval_days" yaml:"interval_days" toml:"interval_days"`
	InitialCapital string         `json:"initial_capital" yaml:"initial_capital" toml:"initial_capital"`
	PricesFile     string         `json:"prices_file,omitempty" yaml:"prices_file,omitempty" toml:"prices_file,omitempty"`
	SignalsFile    string         `json:"signals_file,omitempty" yaml:"signals_file,omitempty" toml:"signals_file,omitempty"`
	Concurrency    int            `json:"concurrency,omitempty" yaml:"concurrency,omitempty" toml:"concurrency,omitempty"`
	Strategy       StrategyConfig `json:"strategy" yaml:"strategy" toml:"strategy"`
}

// StrategyConfig selects a built-in signal source used when no signals
// file is given. An empty Name holds cash.
type StrategyConfig struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Fast     int    `json:"fast" yaml:"fast" toml:"fast"`
	Slow     int    `json:"slow" yaml:"slow" toml:"slow"`
	Quantity int64  `json:"quantity" yaml:"quantity" toml:"quantity"`
}

// RiskConfig enables pre-trade limits on backtest signals. Limits are
// fractions of equity; "0" disables one.
type RiskConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	MaxTradePct       string `json:"max_trade_pct" yaml:"max_trade_pct" toml:"max_trade_pct"`
	MaxPositionPct    string `json:"max_position_pct" yaml:"max_position_pct" toml:"max_position_pct"`
	MinCashReservePct string `json:"min_cash_reserve_pct" yaml:"min_cash_reserve_pct" toml:"min_cash_reserve_pct"`
	Resize            bool   `json:"resize" yaml:"resize" toml:"resize"`
}

// Limits parses the three limits in declaration order.
func (r RiskConfig) Limits() (trade, position, reserve decimal.Decimal, err error) {
	if trade, err = parseMoney(r.MaxTradePct); err != nil {
		return
	}
	if position, err = parseMoney(r.MaxPositionPct); err != nil {
		return
	}
	reserve, err = parseMoney(r.MinCashReservePct)
	return
}

// Duration is a time.Duration written as a string such as "5s" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:      "sqlite",
			DSN:         "./papertrade.db",
			BusyTimeout: Duration{5 * time.Second},
		},
		Redis: RedisConfig{
			TTL: Duration{24 * time.Hour},
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Tracing: TracingConfig{
			Service: "papertrade",
		},
		Account: AccountConfig{
			Number:      "PAPER-001",
			Name:        "Paper Account",
			InitialCash: "100000",
		},
		Backtest: BacktestConfig{
			Name:           "backtest",
			IntervalDays:   1,
			InitialCapital: "1000000",
			Strategy:       StrategyConfig{Fast: 10, Slow: 30, Quantity: 100},
		},
		Risk: RiskConfig{
			MaxTradePct:       "0.10",
			MaxPositionPct:    "0.30",
			MinCashReservePct: "0.05",
		},
	}
}

type format int

const (
	formatYAML format = iota
	formatJSON
	formatTOML
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".toml":
		return formatTOML
	default:
		return formatYAML
	}
}

// LoadFromFile reads path on top of Default(), loads a .env file if one is
// present, applies PAPERTRADE_* overrides and validates the result. The
// format follows the extension: .json, .toml, anything else is YAML.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	switch formatOf(path) {
	case formatJSON:
		err = json.Unmarshal(data, cfg)
	case formatTOML:
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	loadDotEnv()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FromEnv is Default() with .env and PAPERTRADE_* overrides applied, for
// running without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	loadDotEnv()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration in the format implied by the extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch formatOf(path) {
	case formatJSON:
		data, err = json.MarshalIndent(c, "", "  ")
	case formatTOML:
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var (
	validDrivers   = map[string]bool{"memory": true, "sqlite": true, "postgres": true}
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validEncodings = map[string]bool{"console": true, "json": true}
)

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validDrivers[strings.ToLower(c.Store.Driver)] {
		add("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		add("store.dsn is required")
	}
	if c.Store.MaxConns < 0 {
		add("store.max_conns must not be negative")
	}
	if c.Redis.Addr != "" && c.Redis.TTL.Duration <= 0 {
		add("redis.ttl must be positive")
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if !validEncodings[strings.ToLower(c.Log.Encoding)] {
		add("log.encoding %q is not one of console, json", c.Log.Encoding)
	}
	if c.Tracing.Enabled && c.Tracing.Service == "" {
		add("tracing.service is required when tracing is enabled")
	}

	if c.Account.Number == "" {
		add("account.number is required")
	}
	if d, err := parseMoney(c.Account.InitialCash); err != nil {
		add("account.initial_cash: %v", err)
	} else if d.IsNegative() {
		add("account.initial_cash must not be negative")
	}

	bt := c.Backtest
	if bt.IntervalDays < 0 {
		add("backtest.interval_days must not be negative")
	}
	if st := bt.Strategy; st.Name != "" {
		if st.Fast <= 0 || st.Slow <= 0 || st.Fast >= st.Slow {
			add("backtest.strategy: want 0 < fast < slow, got fast=%d slow=%d", st.Fast, st.Slow)
		}
		if st.Quantity <= 0 {
			add("backtest.strategy.quantity must be positive")
		}
	}
	if d, err := parseMoney(bt.InitialCapital); err != nil {
		add("backtest.initial_capital: %v", err)
	} else if d.IsNegative() {
		add("backtest.initial_capital must not be negative")
	}
	start, serr := parseDate(bt.Start)
	if serr != nil {
		add("backtest.start: %v", serr)
	}
	end, eerr := parseDate(bt.End)
	if eerr != nil {
		add("backtest.end: %v", eerr)
	}
	if serr == nil && eerr == nil && !start.IsZero() && !end.IsZero() && end.Before(start) {
		add("backtest.end must not be before backtest.start")
	}

	if trade, position, reserve, err := c.Risk.Limits(); err != nil {
		add("risk: %v", err)
	} else {
		for _, l := range []struct {
			name string
			v    decimal.Decimal
		}{{"max_trade_pct", trade}, {"max_position_pct", position}, {"min_cash_reserve_pct", reserve}} {
			if l.v.IsNegative() || l.v.GreaterThan(decimal.NewFromInt(1)) {
				add("risk.%s must be between 0 and 1", l.name)
			}
		}
	}
	return errors.Join(errs...)
}

// Cash is InitialCash as a decimal; empty means zero.
func (a AccountConfig) Cash() (decimal.Decimal, error) {
	return parseMoney(a.InitialCash)
}

// Capital is InitialCapital as a decimal; empty means zero.
func (b BacktestConfig) Capital() (decimal.Decimal, error) {
	return parseMoney(b.InitialCapital)
}

// Dates returns the parsed start and end; unset dates are zero.
func (b BacktestConfig) Dates() (start, end time.Time, err error) {
	if start, err = parseDate(b.Start); err != nil {
		return
	}
	end, err = parseDate(b.End)
	return
}

func parseMoney(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return money.Parse(s)
}

func parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(equity.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
