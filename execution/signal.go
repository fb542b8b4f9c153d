// Package execution turns trading signals into ledger orders.
package execution

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/ledger"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
	ActionWait Action = "wait"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionBuy, ActionSell, ActionHold, ActionWait:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q (supported: buy, sell, hold, wait)", s)
}

// Signal is one trade recommendation.
type Signal struct {
	Symbol     string
	Action     Action
	Quantity   int64
	Confidence float64
	Rationale  string
}

// DecisionContext is the account state a SignalSource decides on.
type DecisionContext struct {
	AsOf      time.Time
	Account   ledger.Account
	Positions []ledger.Position
	Symbols   []string
}

// SignalSource produces the day's signals. In production this is a model
// call; tests and the CLI use Script.
type SignalSource interface {
	Signals(ctx context.Context, dc DecisionContext) ([]Signal, error)
}

// Filter may drop or resize signals before execution, e.g. a risk check.
type Filter interface {
	Filter(ctx context.Context, dc DecisionContext, signals []Signal) ([]Signal, error)
}

type allowAll struct{}

func (allowAll) Filter(_ context.Context, _ DecisionContext, s []Signal) ([]Signal, error) {
	return s, nil
}

// AllowAll passes every signal through.
var AllowAll Filter = allowAll{}

// Script replays fixed signals keyed by calendar date.
type Script struct {
	byDay map[time.Time][]Signal
}

var _ SignalSource = (*Script)(nil)

func NewScript() *Script {
	return &Script{byDay: make(map[time.Time][]Signal)}
}

func (s *Script) Add(day time.Time, sig Signal) {
	d := equity.Day(day)
	s.byDay[d] = append(s.byDay[d], sig)
}

// Days lists the dates that carry signals, in order.
func (s *Script) Days() []time.Time {
	out := make([]time.Time, 0, len(s.byDay))
	for d := range s.byDay {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (s *Script) Signals(_ context.Context, dc DecisionContext) ([]Signal, error) {
	return append([]Signal(nil), s.byDay[equity.Day(dc.AsOf)]...), nil
}

// LoadScript reads "date,symbol,action,quantity[,confidence,rationale]" rows.
// A header row is skipped.
func LoadScript(r io.Reader) (*Script, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	s := NewScript()
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("signals csv: %w", err)
		}
		line++
		if len(rec) == 0 || strings.HasPrefix(strings.TrimSpace(rec[0]), "#") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("signals csv line %d: want date,symbol,action,quantity", line)
		}

		day, err := time.Parse(equity.DateLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("signals csv line %d: bad date %q", line, rec[0])
		}
		action, err := ParseAction(rec[2])
		if err != nil {
			return nil, fmt.Errorf("signals csv line %d: %w", line, err)
		}
		sig := Signal{Symbol: strings.ToUpper(strings.TrimSpace(rec[1])), Action: action}
		if q := strings.TrimSpace(rec[3]); q != "" {
			if sig.Quantity, err = strconv.ParseInt(q, 10, 64); err != nil {
				return nil, fmt.Errorf("signals csv line %d: bad quantity %q", line, q)
			}
		}
		if len(rec) > 4 && strings.TrimSpace(rec[4]) != "" {
			if sig.Confidence, err = strconv.ParseFloat(strings.TrimSpace(rec[4]), 64); err != nil {
				return nil, fmt.Errorf("signals csv line %d: bad confidence %q", line, rec[4])
			}
		}
		if len(rec) > 5 {
			sig.Rationale = strings.TrimSpace(rec[5])
		}
		s.Add(day, sig)
	}
	return s, nil
}
