// Package market provides the price lookups used to fill orders and mark
// positions to market.
package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
)

// Feed returns the latest known price of symbol at or before asOf. ok is
// false when no price is known; that is not an error.
type Feed interface {
	Price(ctx context.Context, symbol string, asOf time.Time) (price decimal.Decimal, ok bool, err error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context, symbol string, asOf time.Time) (decimal.Decimal, bool, error)

func (f FeedFunc) Price(ctx context.Context, symbol string, asOf time.Time) (decimal.Decimal, bool, error) {
	return f(ctx, symbol, asOf)
}

type bar struct {
	at    time.Time
	close decimal.Decimal
}

// Series is an in-memory close-price history per symbol.
type Series struct {
	mu   sync.RWMutex
	bars map[string][]bar
}

var _ Feed = (*Series)(nil)

func NewSeries() *Series {
	return &Series{bars: make(map[string][]bar)}
}

// Add records a close for symbol at t. Bars may be added in any order.
func (s *Series) Add(symbol string, t time.Time, px decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs := s.bars[symbol]
	i := sort.Search(len(bs), func(i int) bool { return !bs[i].at.Before(t) })
	if i < len(bs) && bs[i].at.Equal(t) {
		bs[i].close = px
		return
	}
	bs = append(bs, bar{})
	copy(bs[i+1:], bs[i:])
	bs[i] = bar{at: t, close: px}
	s.bars[symbol] = bs
}

func (s *Series) Price(ctx context.Context, symbol string, asOf time.Time) (decimal.Decimal, bool, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bs := s.bars[symbol]
	i := sort.Search(len(bs), func(i int) bool { return bs[i].at.After(asOf) })
	if i == 0 {
		return decimal.Zero, false, nil
	}
	return bs[i-1].close, true, nil
}

// Closes returns symbol's closes at or before asOf, oldest first.
func (s *Series) Closes(symbol string, asOf time.Time) []decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bs := s.bars[symbol]
	n := sort.Search(len(bs), func(i int) bool { return bs[i].at.After(asOf) })
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = bs[i].close
	}
	return out
}

// Symbols lists the symbols with at least one bar.
func (s *Series) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// LoadCSV reads "date,symbol,close" rows into a Series. A header row is
// skipped. Dates are YYYY-MM-DD (the close is taken at 16:00 UTC) or RFC3339.
func LoadCSV(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	s := NewSeries()
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("prices csv: %w", err)
		}
		line++
		if len(rec) == 0 || strings.HasPrefix(strings.TrimSpace(rec[0]), "#") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("prices csv line %d: want date,symbol,close", line)
		}

		at, err := parseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("prices csv line %d: %w", line, err)
		}
		px, err := money.Parse(rec[2])
		if err != nil {
			return nil, fmt.Errorf("prices csv line %d: %w", line, err)
		}
		if !px.IsPositive() {
			return nil, fmt.Errorf("prices csv line %d: close must be positive", line)
		}
		s.Add(strings.ToUpper(strings.TrimSpace(rec[1])), at, px)
	}
	return s, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q", s)
	}
	return t.Add(16 * time.Hour), nil
}
