// Package equity tracks the daily equity curve of a backtest account and
// derives its reporting metrics.
package equity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
)

// TradingDaysPerYear annualizes daily figures.
const TradingDaysPerYear = 252

// DateLayout is the calendar-date format used for points in storage and CSV.
const DateLayout = "2006-01-02"

var ErrOutOfOrder = errors.New("equity: point date precedes the previous point")

// Point is one end-of-day observation. DailyReturn is a percentage and is
// unset for the first point or when the previous equity was not positive.
type Point struct {
	Date        time.Time
	Equity      decimal.Decimal
	Cash        decimal.Decimal
	MarketValue decimal.Decimal
	DailyReturn decimal.NullDecimal
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Curve is an append-only ordered series of points.
type Curve struct {
	points []Point
}

// NewCurve builds a curve from already-computed points, e.g. loaded from
// storage. Points are sorted by date.
func NewCurve(points []Point) *Curve {
	ps := append([]Point(nil), points...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Date.Before(ps[j].Date) })
	return &Curve{points: ps}
}

// Add appends p, filling DailyReturn from the previous point. It returns the
// stored point.
func (c *Curve) Add(p Point) (Point, error) {
	p.Date = Day(p.Date)
	p.DailyReturn = decimal.NullDecimal{}
	if n := len(c.points); n > 0 {
		prev := c.points[n-1]
		if p.Date.Before(prev.Date) {
			return Point{}, fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
				p.Date.Format(DateLayout), prev.Date.Format(DateLayout))
		}
		if r, ok := money.Percent(p.Equity.Sub(prev.Equity), prev.Equity); ok {
			p.DailyReturn = money.Null(r)
		}
	}
	c.points = append(c.points, p)
	return p, nil
}

// Points returns a copy of the series.
func (c *Curve) Points() []Point {
	return append([]Point(nil), c.points...)
}

func (c *Curve) Len() int { return len(c.points) }

// FinalEquity is the last point's equity. ok is false on an empty curve.
func (c *Curve) FinalEquity() (decimal.Decimal, bool) {
	if len(c.points) == 0 {
		return decimal.Zero, false
	}
	return c.points[len(c.points)-1].Equity, true
}

// TotalReturn is (last-first)/first*100. It needs at least two points and a
// positive initial equity.
func (c *Curve) TotalReturn() (decimal.Decimal, bool) {
	if len(c.points) < 2 {
		return decimal.Zero, false
	}
	first := c.points[0].Equity
	last := c.points[len(c.points)-1].Equity
	return money.Percent(last.Sub(first), first)
}

// Returns lists the known daily returns as fractions (1% is 0.01).
func (c *Curve) Returns() []float64 {
	out := make([]float64, 0, len(c.points))
	for _, p := range c.points {
		if p.DailyReturn.Valid {
			out = append(out, p.DailyReturn.Decimal.InexactFloat64()/100)
		}
	}
	return out
}

// Volatility is the annualized sample standard deviation of daily returns.
func (c *Curve) Volatility(periodsPerYear int) (float64, bool) {
	_, std, ok := meanStd(c.Returns())
	if !ok {
		return 0, false
	}
	return std * math.Sqrt(float64(periodsPerYear)), true
}

// Sharpe is the annualized Sharpe ratio with a zero risk-free rate. It is
// unavailable for fewer than two returns or zero variance.
func (c *Curve) Sharpe(periodsPerYear int) (float64, bool) {
	mean, std, ok := meanStd(c.Returns())
	if !ok || std == 0 {
		return 0, false
	}
	return mean / std * math.Sqrt(float64(periodsPerYear)), true
}

// MaxDrawdown is the worst peak-to-trough decline in percent, reported as a
// non-positive number (-12.5 means a 12.5% drawdown).
func (c *Curve) MaxDrawdown() (float64, bool) {
	if len(c.points) < 2 {
		return 0, false
	}
	peak := c.points[0].Equity
	worst := decimal.Zero
	for _, p := range c.points {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		dd, _ := money.Percent(p.Equity.Sub(peak), peak)
		if dd.LessThan(worst) {
			worst = dd
		}
	}
	return worst.InexactFloat64(), true
}

func meanStd(xs []float64) (mean, std float64, ok bool) {
	if len(xs) < 2 {
		return 0, 0, false
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	std = math.Sqrt(ss / float64(len(xs)-1))
	return mean, std, true
}
