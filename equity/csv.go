package equity

import (
	"encoding/csv"
	"fmt"
	"io"
)

var csvHeader = []string{"date", "equity", "cash", "market_value", "daily_return"}

// WriteCSV writes the curve with one row per point. Output depends only on
// the points, so identical runs produce identical bytes.
func (c *Curve) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range c.points {
		ret := ""
		if p.DailyReturn.Valid {
			ret = p.DailyReturn.Decimal.StringFixed(6)
		}
		row := []string{
			p.Date.Format(DateLayout),
			p.Equity.StringFixed(2),
			p.Cash.StringFixed(2),
			p.MarketValue.StringFixed(2),
			ret,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write equity row %s: %w", row[0], err)
		}
	}
	cw.Flush()
	return cw.Error()
}
