package risk

import (
	"fmt"

	"github.com/rustyeddy/papertrade/execution"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	Notional decimal.Decimal
	// MaxQuantity is the largest buy the policy would allow at this price.
	MaxQuantity int64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

func (d Decision) Reason() string {
	if len(d.Violations) == 0 {
		return ""
	}
	msg := d.Violations[0].Msg
	for _, v := range d.Violations[1:] {
		msg += "; " + v.Msg
	}
	return msg
}

func pct(d decimal.Decimal) string {
	return d.Mul(money.Hundred).StringFixed(2) + "%"
}

// Evaluate checks one signal priced at px against p.
func Evaluate(p Policy, sig execution.Signal, px decimal.Decimal, s Snapshot) Decision {
	d := Decision{Allowed: true}

	switch sig.Action {
	case execution.ActionHold, execution.ActionWait:
		return d
	case execution.ActionSell:
		avail, ok := s.Available[sig.Symbol]
		if !ok {
			d.add("NO_POSITION", fmt.Sprintf("no %s position to sell", sig.Symbol))
		} else if sig.Quantity > avail {
			d.add("INSUFFICIENT_AVAILABLE",
				fmt.Sprintf("%s available %d, requested %d", sig.Symbol, avail, sig.Quantity))
		}
		return d
	case execution.ActionBuy:
	default:
		d.add("UNKNOWN_ACTION", fmt.Sprintf("unknown action %q", sig.Action))
		return d
	}

	if !s.Equity.IsPositive() {
		d.add("NO_EQUITY", "account equity is not positive")
		return d
	}
	if !px.IsPositive() {
		d.add("NO_PRICE", fmt.Sprintf("no price for %s", sig.Symbol))
		return d
	}

	d.Notional = money.Notional(px, sig.Quantity)
	d.MaxQuantity = maxQuantity(p, px, s, sig.Symbol)

	if p.MaxTradePct.IsPositive() {
		limit := s.Equity.Mul(p.MaxTradePct)
		if d.Notional.GreaterThan(limit) {
			d.add("TRADE_TOO_LARGE", fmt.Sprintf("trade %s exceeds %s of equity",
				d.Notional.StringFixed(2), pct(p.MaxTradePct)))
		}
	}
	if p.MaxPositionPct.IsPositive() {
		after := s.Values[sig.Symbol].Add(d.Notional)
		if after.GreaterThan(s.Equity.Mul(p.MaxPositionPct)) {
			d.add("POSITION_TOO_LARGE", fmt.Sprintf("%s position %s exceeds %s of equity",
				sig.Symbol, after.StringFixed(2), pct(p.MaxPositionPct)))
		}
	}
	if p.MinCashReservePct.IsPositive() {
		left := s.Cash.Sub(d.Notional)
		if left.LessThan(s.Equity.Mul(p.MinCashReservePct)) {
			d.add("CASH_RESERVE", fmt.Sprintf("cash after trade %s is below the %s reserve",
				left.StringFixed(2), pct(p.MinCashReservePct)))
		}
	}
	return d
}

// maxQuantity is the largest whole-share buy that satisfies every limit.
func maxQuantity(p Policy, px decimal.Decimal, s Snapshot, symbol string) int64 {
	budget := s.Cash
	if p.MaxTradePct.IsPositive() {
		budget = decimal.Min(budget, s.Equity.Mul(p.MaxTradePct))
	}
	if p.MaxPositionPct.IsPositive() {
		budget = decimal.Min(budget, s.Equity.Mul(p.MaxPositionPct).Sub(s.Values[symbol]))
	}
	if p.MinCashReservePct.IsPositive() {
		budget = decimal.Min(budget, s.Cash.Sub(s.Equity.Mul(p.MinCashReservePct)))
	}
	if !budget.IsPositive() {
		return 0
	}
	return budget.Div(px).Floor().IntPart()
}
