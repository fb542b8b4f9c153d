// Package store implements the ledger and backtest repositories on memory,
// sqlite and Postgres.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/ledger"
)

// Backend is everything the CLI needs from one database.
type Backend interface {
	ledger.Store
	backtest.RunStore
	Close() error
}

type Options struct {
	Driver      string // "memory", "sqlite" or "postgres"
	DSN         string // file path for sqlite, URL for postgres
	MaxConns    int
	BusyTimeout time.Duration
}

func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "memory", "mem":
		return NewMemory(), nil
	case "sqlite", "sqlite3", "":
		if opts.DSN == "" {
			return nil, fmt.Errorf("store: sqlite requires a path")
		}
		return OpenSQLite(opts.DSN, opts.BusyTimeout)
	case "postgres", "pg", "pgx":
		return NewPostgres(ctx, PostgresConfig{DSN: opts.DSN, MaxConns: opts.MaxConns})
	default:
		return nil, fmt.Errorf("store: unknown driver %q (supported: memory, sqlite, postgres)", opts.Driver)
	}
}

func (m *Memory) Close() error { return nil }
