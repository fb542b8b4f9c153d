package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/equity"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrRunNotFound  = errors.New("backtest run not found")
	ErrRunFinalized = errors.New("backtest run is finalized")
)

// Run is the persisted record of one backtest.
type Run struct {
	ID             string
	Name           string
	Symbols        []string
	Start          time.Time
	End            time.Time
	IntervalDays   int
	InitialCapital decimal.Decimal
	AccountNumber  string
	Status         Status
	FinalEquity    decimal.NullDecimal
	TotalReturn    decimal.NullDecimal
	SharpeRatio    decimal.NullDecimal
	MaxDrawdown    decimal.NullDecimal
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RunStore persists runs and their daily equity. Implementations reject any
// change to a run whose stored status is terminal with ErrRunFinalized.
type RunStore interface {
	CreateRun(ctx context.Context, r Run) error
	UpdateRun(ctx context.Context, r Run) error
	AppendEquity(ctx context.Context, runID string, p equity.Point) error
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns runs newest first. limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListEquity(ctx context.Context, runID string) ([]equity.Point, error)
}

// JoinSymbols and SplitSymbols convert the symbol list to and from its
// stored comma-separated form.
func JoinSymbols(symbols []string) string {
	return strings.Join(symbols, ",")
}

func SplitSymbols(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CheckTransition validates a status change from -> to.
func CheckTransition(from, to Status) error {
	if from.Terminal() {
		return fmt.Errorf("%w: status %s", ErrRunFinalized, from)
	}
	switch {
	case from == to:
		return nil
	case from == StatusPending && (to == StatusRunning || to == StatusFailed):
		return nil
	case from == StatusRunning && to.Terminal():
		return nil
	}
	return fmt.Errorf("backtest: invalid status transition %s -> %s", from, to)
}

// advance moves r to status to, or returns why it cannot.
func (r *Run) advance(to Status, at time.Time) error {
	if err := CheckTransition(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	r.UpdatedAt = at
	return nil
}
