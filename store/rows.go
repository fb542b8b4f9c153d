package store

import (
	"fmt"
	"time"

	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/shopspring/decimal"
)

// scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
// Money and date columns are always selected as text.
type scanner interface {
	Scan(dest ...any) error
}

func dec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad decimal %q: %w", s, err)
	}
	return d, nil
}

func nullDec(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := dec(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// nullText is the write-side counterpart of nullDec.
func nullText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len(equity.DateLayout) {
		s = s[:len(equity.DateLayout)]
	}
	t, err := time.Parse(equity.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}

func decs(srcs []string, dsts ...*decimal.Decimal) error {
	for i, s := range srcs {
		d, err := dec(s)
		if err != nil {
			return err
		}
		*dsts[i] = d
	}
	return nil
}

func scanAccount(row scanner) (ledger.Account, error) {
	var a ledger.Account
	var bal, bp, rpl string
	if err := row.Scan(&a.ID, &a.Number, &a.Name, &a.Description,
		&bal, &bp, &rpl, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return ledger.Account{}, err
	}
	if err := decs([]string{bal, bp, rpl}, &a.Balance, &a.BuyingPower, &a.RealizedPnL); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func scanPosition(row scanner) (ledger.Position, error) {
	var p ledger.Position
	var side, status, avg, mv, upl, rpl string
	var mp, pt, sl *string
	if err := row.Scan(&p.ID, &p.Account, &p.Symbol, &side,
		&p.Quantity, &p.Available, &avg, &mp, &mv, &upl, &rpl,
		&status, &pt, &sl, &p.Notes, &p.OpenedAt, &p.UpdatedAt); err != nil {
		return ledger.Position{}, err
	}
	p.Side = ledger.Side(side)
	p.Status = ledger.PositionStatus(status)
	if err := decs([]string{avg, mv, upl, rpl}, &p.AverageCost, &p.MarketValue, &p.UnrealizedPnL, &p.RealizedPnL); err != nil {
		return ledger.Position{}, err
	}
	var err error
	if p.MarketPrice, err = nullDec(mp); err != nil {
		return ledger.Position{}, err
	}
	if p.ProfitTarget, err = nullDec(pt); err != nil {
		return ledger.Position{}, err
	}
	if p.StopLoss, err = nullDec(sl); err != nil {
		return ledger.Position{}, err
	}
	return p, nil
}

func scanOrder(row scanner) (ledger.Order, error) {
	var o ledger.Order
	var side, typ, status, price string
	var avg *string
	if err := row.Scan(&o.ID, &o.Account, &o.Symbol, &side, &typ,
		&o.Quantity, &price, &status, &o.ExecutedQuantity, &avg,
		&o.Notes, &o.CreatedAt); err != nil {
		return ledger.Order{}, err
	}
	o.Side = ledger.OrderSide(side)
	o.Type = ledger.OrderType(typ)
	o.Status = ledger.OrderStatus(status)
	var err error
	if o.Price, err = dec(price); err != nil {
		return ledger.Order{}, err
	}
	if o.AveragePrice, err = nullDec(avg); err != nil {
		return ledger.Order{}, err
	}
	return o, nil
}

func scanRun(row scanner) (backtest.Run, error) {
	var r backtest.Run
	var symbols, start, end, capital, status string
	var fe, tr, sr, md *string
	if err := row.Scan(&r.ID, &r.Name, &symbols, &start, &end,
		&r.IntervalDays, &capital, &r.AccountNumber, &status,
		&fe, &tr, &sr, &md, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return backtest.Run{}, err
	}
	r.Symbols = backtest.SplitSymbols(symbols)
	r.Status = backtest.Status(status)

	var err error
	if r.Start, err = parseDate(start); err != nil {
		return backtest.Run{}, err
	}
	if r.End, err = parseDate(end); err != nil {
		return backtest.Run{}, err
	}
	if r.InitialCapital, err = dec(capital); err != nil {
		return backtest.Run{}, err
	}
	for _, f := range []struct {
		src *string
		dst *decimal.NullDecimal
	}{{fe, &r.FinalEquity}, {tr, &r.TotalReturn}, {sr, &r.SharpeRatio}, {md, &r.MaxDrawdown}} {
		if *f.dst, err = nullDec(f.src); err != nil {
			return backtest.Run{}, err
		}
	}
	return r, nil
}

func scanPoint(row scanner) (equity.Point, error) {
	var p equity.Point
	var date, eq, cash, mv string
	var ret *string
	if err := row.Scan(&date, &eq, &cash, &mv, &ret); err != nil {
		return equity.Point{}, err
	}
	var err error
	if p.Date, err = parseDate(date); err != nil {
		return equity.Point{}, err
	}
	if err := decs([]string{eq, cash, mv}, &p.Equity, &p.Cash, &p.MarketValue); err != nil {
		return equity.Point{}, err
	}
	if p.DailyReturn, err = nullDec(ret); err != nil {
		return equity.Point{}, err
	}
	return p, nil
}
