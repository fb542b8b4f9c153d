package journal

import (
	"bytes"
	"testing"
	"time"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOrdersOldestFirst(t *testing.T) {
	at := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	newest := ledger.Order{
		ID: "O2", Account: "A-1", Symbol: "AAPL", Side: ledger.Sell, Type: ledger.MarketOrder,
		Quantity: 40, Price: money.MustParse("105"), Status: ledger.OrderFilled, ExecutedQuantity: 40,
		AveragePrice: decimal.NewNullDecimal(money.MustParse("105")), Notes: "take profit, partial",
		CreatedAt: at.Add(48 * time.Hour),
	}
	oldest := ledger.Order{
		ID: "O1", Account: "A-1", Symbol: "AAPL", Side: ledger.Buy, Type: ledger.MarketOrder,
		Quantity: 100, Price: money.MustParse("102.5"), Status: ledger.OrderFailed, CreatedAt: at,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, []ledger.Order{newest, oldest}))
	assert.Equal(t,
		"order_id,account,time,symbol,side,type,quantity,price,status,executed_quantity,average_price,notes\n"+
			"O1,A-1,2024-01-02T16:00:00Z,AAPL,BUY,MARKET,100,102.5,FAILED,0,,\n"+
			"O2,A-1,2024-01-04T16:00:00Z,AAPL,SELL,MARKET,40,105,FILLED,40,105,\"take profit, partial\"\n",
		buf.String())
}

func TestWriteOrdersEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, nil))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}
