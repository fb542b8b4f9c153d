package backtest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/equity"
	"github.com/shopspring/decimal"
)

func orNA(d decimal.NullDecimal, places int32, suffix string) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.StringFixed(places) + suffix
}

// PrintResult writes a human readable summary of a run.
func PrintResult(w io.Writer, res Result) {
	r := res.Run
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.ID)
	fmt.Fprintf(w, "Name:          %s\n", r.Name)
	fmt.Fprintf(w, "Created:       %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Status:        %s\n", r.Status)
	fmt.Fprintf(w, "Account:       %s\n", r.AccountNumber)
	fmt.Fprintf(w, "Symbols:       %s\n", strings.Join(r.Symbols, ", "))
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:         %s\n", r.ErrorMessage)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(equity.DateLayout))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(equity.DateLayout))
	fmt.Fprintf(w, "Interval:      %d day(s)\n", r.IntervalDays)
	if res.Curve != nil {
		fmt.Fprintf(w, "Points:        %d\n", res.Curve.Len())
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Capital: %s\n", r.InitialCapital.StringFixed(2))
	fmt.Fprintf(w, "Final Equity:  %s\n", orNA(r.FinalEquity, 2, ""))
	fmt.Fprintf(w, "Return:        %s\n", orNA(r.TotalReturn, 2, "%"))
	fmt.Fprintf(w, "Sharpe:        %s\n", orNA(r.SharpeRatio, 2, ""))
	fmt.Fprintf(w, "Max Drawdown:  %s\n", orNA(r.MaxDrawdown, 2, "%"))

	if res.Curve != nil {
		if vol, ok := res.Curve.Volatility(equity.TradingDaysPerYear); ok {
			fmt.Fprintf(w, "Volatility:    %.2f%%\n", vol*100)
		}
	}
	fmt.Fprintln(w, "==================================================")
}
