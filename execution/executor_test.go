package execution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/execution"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/money"
	"github.com/rustyeddy/papertrade/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var day = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T, cash string) (*ledger.Engine, *market.Series) {
	t.Helper()
	eng := ledger.NewEngine(store.NewMemory(), ledger.WithLogger(zaptest.NewLogger(t)))
	_, err := eng.OpenAccount(context.Background(), ledger.OpenAccountRequest{
		Number:      "ACC-1",
		Name:        "exec",
		InitialCash: money.MustParse(cash),
	})
	require.NoError(t, err)

	feed := market.NewSeries()
	feed.Add("AAPL", day.Add(16*time.Hour), money.MustParse("100"))
	feed.Add("MSFT", day.Add(16*time.Hour), money.MustParse("300"))
	return eng, feed
}

func TestExecuteFillsAndSkips(t *testing.T) {
	t.Parallel()
	eng, feed := setup(t, "10000")
	x := &execution.Executor{Trader: eng, Prices: feed, Log: zaptest.NewLogger(t)}

	sum, err := x.Execute(context.Background(), "ACC-1", backtest.EndOfDay(day), []execution.Signal{
		{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 10, Rationale: "entry"},
		{Symbol: "AAPL", Action: execution.ActionHold},
		{Symbol: "MSFT", Action: execution.ActionWait},
		{Symbol: "AAPL", Action: execution.ActionSell, Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Executed)
	assert.Equal(t, 2, sum.Skipped)
	assert.Zero(t, sum.Failed)
	require.NotNil(t, sum.Results[0].Execution)
	assert.Equal(t, "entry", sum.Results[0].Execution.Order.Notes)
	assert.True(t, sum.Results[1].Skipped)

	acct, err := eng.Snapshot(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, "9400", acct.Balance.String())

	pos, err := eng.OpenPositions(context.Background(), "ACC-1")
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.EqualValues(t, 6, pos[0].Quantity)
}

func TestExecuteLenientRecordsFailures(t *testing.T) {
	t.Parallel()
	eng, feed := setup(t, "1000")
	x := &execution.Executor{Trader: eng, Prices: feed}

	sum, err := x.Execute(context.Background(), "ACC-1", backtest.EndOfDay(day), []execution.Signal{
		{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 0},
		{Symbol: "TSLA", Action: execution.ActionBuy, Quantity: 1},
		{Symbol: "MSFT", Action: execution.ActionBuy, Quantity: 10},
		{Symbol: "AAPL", Action: execution.ActionSell, Quantity: 1},
		{Symbol: "AAPL", Action: "short", Quantity: 1},
		{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Executed)
	assert.Equal(t, 5, sum.Failed)
	assert.Len(t, sum.Errors, 5)

	assert.ErrorIs(t, sum.Results[0].Err, execution.ErrInvalidSignal)
	assert.ErrorIs(t, sum.Results[1].Err, execution.ErrNoPrice)
	assert.ErrorIs(t, sum.Results[2].Err, ledger.ErrInsufficientBuyingPower)
	assert.ErrorIs(t, sum.Results[3].Err, ledger.ErrPositionNotFound)
	assert.ErrorIs(t, sum.Results[4].Err, execution.ErrInvalidSignal)
	assert.NotNil(t, sum.Results[5].Execution)
}

func TestExecuteStrictStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	eng, feed := setup(t, "1000")
	x := &execution.Executor{Trader: eng, Prices: feed, Strict: true}

	sum, err := x.Execute(context.Background(), "ACC-1", backtest.EndOfDay(day), []execution.Signal{
		{Symbol: "MSFT", Action: execution.ActionBuy, Quantity: 10},
		{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 5},
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBuyingPower)
	assert.Contains(t, err.Error(), "buy MSFT")
	assert.Zero(t, sum.Executed)
	assert.Equal(t, 1, sum.Failed)

	acct, err := eng.Snapshot(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance.String())
}

type brokenTrader struct {
	ledger.Trader
	err error
}

func (b brokenTrader) PlaceBuy(context.Context, ledger.OrderRequest) (ledger.Execution, error) {
	return ledger.Execution{}, b.err
}

func TestExecuteReturnsInfrastructureErrors(t *testing.T) {
	t.Parallel()
	_, feed := setup(t, "1000")
	disk := errors.New("disk full")
	x := &execution.Executor{Trader: brokenTrader{err: disk}, Prices: feed}

	sum, err := x.Execute(context.Background(), "ACC-1", backtest.EndOfDay(day), []execution.Signal{
		{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 1},
		{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 1},
	})
	require.ErrorIs(t, err, disk)
	assert.Zero(t, sum.Executed)
	assert.Zero(t, sum.Failed)

	feedErr := errors.New("feed down")
	x = &execution.Executor{
		Trader: brokenTrader{},
		Prices: market.FeedFunc(func(context.Context, string, time.Time) (decimal.Decimal, bool, error) {
			return decimal.Zero, false, feedErr
		}),
	}
	_, err = x.Execute(context.Background(), "ACC-1", day, []execution.Signal{
		{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 1},
	})
	require.ErrorIs(t, err, feedErr)
}

func TestExecuteRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := (&execution.Executor{}).Execute(context.Background(), "ACC-1", day, nil)
	assert.EqualError(t, err, "execution: Trader is required")
}

type capFilter struct{ max int64 }

func (f capFilter) Filter(_ context.Context, dc execution.DecisionContext, in []execution.Signal) ([]execution.Signal, error) {
	out := make([]execution.Signal, 0, len(in))
	for _, s := range in {
		if s.Action == execution.ActionBuy && dc.Account.Balance.LessThan(money.MustParse("500")) {
			continue
		}
		if s.Quantity > f.max {
			s.Quantity = f.max
		}
		out = append(out, s)
	}
	return out, nil
}

func TestWorkflowDecide(t *testing.T) {
	t.Parallel()
	eng, feed := setup(t, "10000")

	script := execution.NewScript()
	script.Add(day, execution.Signal{Symbol: "AAPL", Action: execution.ActionBuy, Quantity: 50})
	script.Add(day, execution.Signal{Symbol: "MSFT", Action: execution.ActionHold})

	var got []execution.Summary
	w := &execution.Workflow{
		Source:    script,
		Filter:    capFilter{max: 20},
		Executor:  &execution.Executor{Prices: feed, Strict: true},
		OnSummary: func(_ backtest.DecisionRequest, s execution.Summary) { got = append(got, s) },
	}

	req := backtest.DecisionRequest{Account: "ACC-1", Date: day, AsOf: backtest.EndOfDay(day), Symbols: []string{"AAPL", "MSFT"}}
	require.NoError(t, w.Decide(context.Background(), req, eng))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Executed)
	assert.Equal(t, 1, got[0].Skipped)

	pos, err := eng.OpenPositions(context.Background(), "ACC-1")
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.EqualValues(t, 20, pos[0].Quantity)
	assert.Nil(t, w.Executor.Trader, "the shared executor is not mutated")

	err = w.Decide(context.Background(), backtest.DecisionRequest{Account: "NOPE", AsOf: req.AsOf}, eng)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
