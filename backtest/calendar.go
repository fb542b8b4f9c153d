package backtest

import (
	"time"

	"github.com/rustyeddy/papertrade/equity"
)

// Calendar enumerates the trading days a backtest steps through.
type Calendar interface {
	TradingDays(start, end time.Time, intervalDays int) []time.Time
}

// WeekdayCalendar treats every Monday to Friday as a trading day. Exchange
// holidays are not known to it; see HolidayCalendar.
type WeekdayCalendar struct{}

// TradingDays steps from start to end inclusive by intervalDays calendar
// days and keeps the weekdays. An interval below 1 is treated as 1.
func (WeekdayCalendar) TradingDays(start, end time.Time, intervalDays int) []time.Time {
	return stepDays(start, end, intervalDays, func(time.Time) bool { return false })
}

// HolidayCalendar is a WeekdayCalendar that also skips listed dates.
type HolidayCalendar struct {
	holidays map[time.Time]bool
}

func NewHolidayCalendar(days ...time.Time) HolidayCalendar {
	h := HolidayCalendar{holidays: make(map[time.Time]bool, len(days))}
	for _, d := range days {
		h.holidays[equity.Day(d)] = true
	}
	return h
}

func (h HolidayCalendar) TradingDays(start, end time.Time, intervalDays int) []time.Time {
	return stepDays(start, end, intervalDays, func(d time.Time) bool { return h.holidays[d] })
}

func stepDays(start, end time.Time, intervalDays int, skip func(time.Time) bool) []time.Time {
	if intervalDays < 1 {
		intervalDays = 1
	}
	start, end = equity.Day(start), equity.Day(end)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, intervalDays) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		if skip(d) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// EndOfDay is the as-of instant used for a trading day's prices.
func EndOfDay(d time.Time) time.Time {
	return equity.Day(d).Add(24*time.Hour - time.Nanosecond)
}
