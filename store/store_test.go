package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendCase struct {
	name string
	open func(t *testing.T) Backend
}

func backends() []backendCase {
	return []backendCase{
		{"memory", func(t *testing.T) Backend { return NewMemory() }},
		{"sqlite", func(t *testing.T) Backend {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"))
			require.NoError(t, err)
			return s
		}},
		{"postgres", func(t *testing.T) Backend {
			dsn := os.Getenv("PAPERTRADE_TEST_PG_DSN")
			if dsn == "" {
				t.Skip("PAPERTRADE_TEST_PG_DSN not set")
			}
			s, err := NewPostgres(context.Background(), PostgresConfig{DSN: dsn})
			require.NoError(t, err)
			return s
		}},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.open(t)
			t.Cleanup(func() { _ = b.Close() })
			fn(t, b)
		})
	}
}

// uniq keeps account numbers distinct in a shared Postgres database.
func uniq(prefix string) string {
	return prefix + "-" + id.New()
}

func openAccount(t *testing.T, e *ledger.Engine, cash string) string {
	t.Helper()
	number := uniq("T")
	_, err := e.OpenAccount(context.Background(), ledger.OpenAccountRequest{
		Number:      number,
		Name:        "test",
		InitialCash: money.MustParse(cash),
	})
	require.NoError(t, err)
	return number
}

func TestAccountLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		e := ledger.NewEngine(b)
		number := openAccount(t, e, "100000")

		a, err := b.Account(ctx, number)
		require.NoError(t, err)
		assert.Equal(t, "100000", a.Balance.String())
		assert.Equal(t, "100000", a.BuyingPower.String())
		assert.True(t, a.RealizedPnL.IsZero())
		assert.True(t, a.Active)

		_, err = e.OpenAccount(ctx, ledger.OpenAccountRequest{Number: number, InitialCash: money.MustParse("1")})
		assert.ErrorIs(t, err, ledger.ErrAccountExists)

		_, err = b.Account(ctx, "missing-"+number)
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

		_, err = e.DeactivateAccount(ctx, number)
		require.NoError(t, err)
		a, err = b.Account(ctx, number)
		require.NoError(t, err)
		assert.False(t, a.Active)
	})
}

func TestSettlementRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		e := ledger.NewEngine(b)
		number := openAccount(t, e, "100000")

		_, err := e.PlaceBuy(ctx, ledger.OrderRequest{Account: number, Symbol: "MSFT", Quantity: 10, Price: money.MustParse("370.10")})
		require.NoError(t, err)
		_, err = e.PlaceBuy(ctx, ledger.OrderRequest{Account: number, Symbol: "AAPL", Quantity: 100, Price: money.MustParse("100")})
		require.NoError(t, err)
		_, err = e.PlaceSell(ctx, ledger.OrderRequest{Account: number, Symbol: "AAPL", Quantity: 40, Price: money.MustParse("150")})
		require.NoError(t, err)

		a, err := b.Account(ctx, number)
		require.NoError(t, err)
		assert.Equal(t, "92299", a.Balance.String())
		assert.Equal(t, "2000", a.RealizedPnL.String())

		ps, err := b.Positions(ctx, number, true)
		require.NoError(t, err)
		require.Len(t, ps, 2)
		assert.Equal(t, "AAPL", ps[0].Symbol)
		assert.Equal(t, int64(60), ps[0].Quantity)
		assert.Equal(t, "100", ps[0].AverageCost.String())
		require.True(t, ps[0].MarketPrice.Valid)
		assert.Equal(t, "150", ps[0].MarketPrice.Decimal.String())
		assert.Equal(t, "3000", ps[0].UnrealizedPnL.String())
		assert.Equal(t, "2000", ps[0].RealizedPnL.String())
		assert.False(t, ps[0].StopLoss.Valid)
		assert.Equal(t, "MSFT", ps[1].Symbol)

		orders, err := b.Orders(ctx, number, 0)
		require.NoError(t, err)
		require.Len(t, orders, 3)
		assert.Equal(t, ledger.Sell, orders[0].Side)
		assert.Equal(t, "MSFT", orders[2].Symbol)
		assert.Equal(t, ledger.OrderFilled, orders[0].Status)
		assert.Equal(t, int64(40), orders[0].ExecutedQuantity)

		limited, err := b.Orders(ctx, number, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		_, err = e.PlaceSell(ctx, ledger.OrderRequest{Account: number, Symbol: "AAPL", Quantity: 60, Price: money.MustParse("90")})
		require.NoError(t, err)
		open, err := b.Positions(ctx, number, true)
		require.NoError(t, err)
		assert.Len(t, open, 1)
		all, err := b.Positions(ctx, number, false)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, ledger.PositionClosed, all[0].Status)
		assert.Equal(t, int64(0), all[0].Quantity)
	})
}

func TestRollbackDiscardsWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		e := ledger.NewEngine(b)
		number := openAccount(t, e, "1000")

		boom := errors.New("boom")
		err := ledger.InTx(ctx, b, func(tx ledger.Tx) error {
			a, err := tx.LockAccount(ctx, number)
			if err != nil {
				return err
			}
			a.Balance = money.MustParse("1")
			if err := tx.UpdateAccount(ctx, a); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		a, err := b.Account(ctx, number)
		require.NoError(t, err)
		assert.Equal(t, "1000", a.Balance.String())

		// A rollback also releases the lock for the next writer.
		_, err = e.PlaceBuy(ctx, ledger.OrderRequest{Account: number, Symbol: "X", Quantity: 1, Price: money.MustParse("10")})
		require.NoError(t, err)
	})
}

func TestConcurrentBuysNeverOverdraw(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		e := ledger.NewEngine(b)
		number := openAccount(t, e, "1000")

		const workers = 12
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = e.PlaceBuy(ctx, ledger.OrderRequest{
					Account: number, Symbol: "ACME", Quantity: 1, Price: money.MustParse("100"),
				})
			}(i)
		}
		wg.Wait()

		filled := 0
		for _, err := range errs {
			if err == nil {
				filled++
				continue
			}
			assert.ErrorIs(t, err, ledger.ErrInsufficientBuyingPower)
		}
		assert.Equal(t, 10, filled)

		a, err := b.Account(ctx, number)
		require.NoError(t, err)
		assert.True(t, a.Balance.IsZero())
		ps, err := b.Positions(ctx, number, true)
		require.NoError(t, err)
		require.Len(t, ps, 1)
		assert.Equal(t, int64(10), ps[0].Quantity)
	})
}

func TestRunStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		run := backtest.Run{
			ID:             id.New(),
			Name:           "smoke",
			Symbols:        []string{"AAPL", "MSFT"},
			Start:          start,
			End:            start.AddDate(0, 0, 7),
			IntervalDays:   1,
			InitialCapital: money.MustParse("1000000"),
			Status:         backtest.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, b.CreateRun(ctx, run))

		got, err := b.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.Symbols, got.Symbols)
		assert.True(t, run.Start.Equal(got.Start))
		assert.Equal(t, backtest.StatusPending, got.Status)
		assert.False(t, got.FinalEquity.Valid)

		curve := &equity.Curve{}
		for i, v := range []string{"1000000", "1000000", "1010000.5"} {
			p, err := curve.Add(equity.Point{Date: start.AddDate(0, 0, i), Equity: money.MustParse(v), Cash: money.MustParse(v)})
			require.NoError(t, err)
			require.NoError(t, b.AppendEquity(ctx, run.ID, p))
		}

		run.Status = backtest.StatusCompleted
		run.FinalEquity = money.Null(money.MustParse("1010000.5"))
		run.TotalReturn = money.Null(money.MustParse("1.00005"))
		run.UpdatedAt = now.Add(time.Second)
		require.NoError(t, b.UpdateRun(ctx, run))

		got, err = b.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, backtest.StatusCompleted, got.Status)
		assert.Equal(t, "1010000.5", got.FinalEquity.Decimal.String())

		pts, err := b.ListEquity(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, pts, 3)
		for i, want := range curve.Points() {
			assert.True(t, want.Date.Equal(pts[i].Date))
			assert.True(t, want.Equity.Equal(pts[i].Equity))
			assert.True(t, want.Cash.Equal(pts[i].Cash))
			assert.Equal(t, want.DailyReturn.Valid, pts[i].DailyReturn.Valid)
			assert.True(t, want.DailyReturn.Decimal.Equal(pts[i].DailyReturn.Decimal))
		}

		run.ErrorMessage = "late"
		assert.ErrorIs(t, b.UpdateRun(ctx, run), backtest.ErrRunFinalized)
		assert.ErrorIs(t, b.AppendEquity(ctx, run.ID, pts[0]), backtest.ErrRunFinalized)

		_, err = b.GetRun(ctx, "nope")
		assert.ErrorIs(t, err, backtest.ErrRunNotFound)

		runs, err := b.ListRuns(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Options{Driver: "mongo"})
	assert.Error(t, err)

	b, err := Open(context.Background(), Options{Driver: "memory"})
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
