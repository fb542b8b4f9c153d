package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func fmtDays(ds []time.Time) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Format("2006-01-02")
	}
	return out
}

func TestWeekdayCalendar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		start    string
		end      string
		interval int
		want     []string
	}{
		{"one week", "2024-01-01", "2024-01-07", 1,
			[]string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}},
		{"weekend only", "2024-01-06", "2024-01-07", 1, []string{}},
		{"every other day", "2024-01-01", "2024-01-10", 2,
			[]string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-09"}},
		{"zero interval is daily", "2024-01-04", "2024-01-05", 0, []string{"2024-01-04", "2024-01-05"}},
		{"end before start", "2024-01-05", "2024-01-01", 1, []string{}},
		{"single day", "2024-01-03", "2024-01-03", 1, []string{"2024-01-03"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeekdayCalendar{}.TradingDays(date(tt.start), date(tt.end), tt.interval)
			assert.Equal(t, tt.want, fmtDays(got))
		})
	}
}

func TestHolidayCalendar(t *testing.T) {
	t.Parallel()

	cal := NewHolidayCalendar(date("2024-01-01"), date("2024-01-15").Add(10*time.Hour))
	got := cal.TradingDays(date("2024-01-01"), date("2024-01-16"), 7)
	assert.Equal(t, []string{"2024-01-08"}, fmtDays(got))
}

func TestEndOfDay(t *testing.T) {
	t.Parallel()

	eod := EndOfDay(date("2024-01-02").Add(9 * time.Hour))
	assert.Equal(t, date("2024-01-02").Add(24*time.Hour-time.Nanosecond), eod)
}

func TestCheckTransition(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckTransition(StatusPending, StatusRunning))
	assert.NoError(t, CheckTransition(StatusRunning, StatusCompleted))
	assert.NoError(t, CheckTransition(StatusRunning, StatusFailed))
	assert.NoError(t, CheckTransition(StatusPending, StatusFailed))
	assert.Error(t, CheckTransition(StatusPending, StatusCompleted))
	assert.True(t, errors.Is(CheckTransition(StatusCompleted, StatusRunning), ErrRunFinalized))
	assert.True(t, errors.Is(CheckTransition(StatusFailed, StatusFailed), ErrRunFinalized))
}

func TestSymbolsRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AAPL,MSFT", JoinSymbols([]string{"AAPL", "MSFT"}))
	assert.Equal(t, []string{"AAPL", "MSFT"}, SplitSymbols(" AAPL, ,MSFT "))
	assert.Nil(t, SplitSymbols(""))
}
