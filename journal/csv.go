// Package journal exports an account's order log.
package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/papertrade/ledger"
)

var header = []string{
	"order_id", "account", "time", "symbol", "side", "type",
	"quantity", "price", "status", "executed_quantity", "average_price", "notes",
}

// CSVJournal writes orders as CSV rows, one per RecordOrder.
type CSVJournal struct {
	w *csv.Writer
}

// NewCSV writes the header row to w.
func NewCSV(w io.Writer) (*CSVJournal, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return &CSVJournal{w: cw}, nil
}

func (j *CSVJournal) RecordOrder(o ledger.Order) error {
	avg := ""
	if o.AveragePrice.Valid {
		avg = o.AveragePrice.Decimal.String()
	}
	err := j.w.Write([]string{
		o.ID,
		o.Account,
		o.CreatedAt.UTC().Format(time.RFC3339),
		o.Symbol,
		string(o.Side),
		string(o.Type),
		strconv.FormatInt(o.Quantity, 10),
		o.Price.String(),
		string(o.Status),
		strconv.FormatInt(o.ExecutedQuantity, 10),
		avg,
		o.Notes,
	})
	if err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

// WriteOrders writes orders oldest first, whatever order they arrive in.
func WriteOrders(w io.Writer, orders []ledger.Order) error {
	j, err := NewCSV(w)
	if err != nil {
		return err
	}
	for i := len(orders) - 1; i >= 0; i-- {
		if err := j.RecordOrder(orders[i]); err != nil {
			return err
		}
	}
	return nil
}
