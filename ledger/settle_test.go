package ledger

import (
	"testing"
	"time"

	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

func acct(cash string) Account {
	c := money.MustParse(cash)
	return Account{Number: "A-1", Balance: c, BuyingPower: c, RealizedPnL: decimal.Zero, Active: true}
}

func TestApplySettlement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		side     OrderSide
		cash     string
		realized string
		wantBal  string
		wantRPL  string
		wantErr  error
	}{
		{"buy within balance", Buy, "400", "0", "600", "0", nil},
		{"buy exactly balance", Buy, "1000", "0", "0", "0", nil},
		{"buy one cent over", Buy, "1000.01", "0", "1000", "0", ErrInsufficientBuyingPower},
		{"sell books profit", Sell, "250", "50", "1250", "50", nil},
		{"sell books loss", Sell, "250", "-75.5", "1250", "-75.5", nil},
		{"zero cash", Buy, "0", "0", "1000", "0", ErrInvalidOrderInput},
		{"negative cash", Sell, "-1", "0", "1000", "0", ErrInvalidOrderInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplySettlement(acct("1000"), tt.side, money.MustParse(tt.cash), money.MustParse(tt.realized))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, money.MustParse(tt.wantBal).String(), got.Balance.String())
			assert.Equal(t, got.Balance.String(), got.BuyingPower.String())
			assert.Equal(t, money.MustParse(tt.wantRPL).String(), got.RealizedPnL.String())
		})
	}
}

func TestApplySettlementChecksBuyingPowerSeparately(t *testing.T) {
	t.Parallel()

	a := acct("1000")
	a.BuyingPower = money.MustParse("500")
	_, err := ApplySettlement(a, Buy, money.MustParse("600"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInsufficientBuyingPower)
}

func TestRealizedPnL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2000", RealizedPnL(Long, money.MustParse("100"), money.MustParse("150"), 40).String())
	assert.Equal(t, "-400", RealizedPnL(Long, money.MustParse("100"), money.MustParse("90"), 40).String())
	assert.Equal(t, "400", RealizedPnL(Short, money.MustParse("100"), money.MustParse("90"), 40).String())
}

func TestUnrealizedPnL(t *testing.T) {
	t.Parallel()

	p := Position{Side: Long, Quantity: 10, AverageCost: money.MustParse("50")}
	assert.True(t, UnrealizedPnL(p).IsZero(), "no market price")

	p.MarketPrice = money.Null(money.MustParse("55"))
	assert.Equal(t, "50", UnrealizedPnL(p).String())

	p.Quantity = 0
	assert.True(t, UnrealizedPnL(p).IsZero())
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	t.Parallel()

	p, err := ApplyBuy(nil, "A-1", "AAPL", 10, money.MustParse("100"), t0)
	require.NoError(t, err)
	assert.Equal(t, Long, p.Side)
	assert.Equal(t, PositionOpen, p.Status)
	assert.Equal(t, "1000", p.MarketValue.String())
	assert.True(t, p.UnrealizedPnL.IsZero())
	assert.NotEmpty(t, p.ID)

	p, err = ApplyBuy(&p, "A-1", "AAPL", 10, money.MustParse("120"), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.Quantity)
	assert.Equal(t, int64(20), p.Available)
	assert.Equal(t, "110", p.AverageCost.String())
	assert.Equal(t, "120", p.MarketPrice.Decimal.String())
	assert.Equal(t, "2400", p.MarketValue.String())
	assert.Equal(t, "200", p.UnrealizedPnL.String())
	assert.Equal(t, t0, p.OpenedAt)
}

func TestApplyBuyReopensClosedPosition(t *testing.T) {
	t.Parallel()

	p, err := ApplyBuy(nil, "A-1", "AAPL", 10, money.MustParse("100"), t0)
	require.NoError(t, err)
	p, err = ApplySell(p, 10, money.MustParse("90"), money.MustParse("-100"), t0)
	require.NoError(t, err)
	require.Equal(t, PositionClosed, p.Status)

	p, err = ApplyBuy(&p, "A-1", "AAPL", 5, money.MustParse("80"), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, PositionOpen, p.Status)
	assert.Equal(t, int64(5), p.Quantity)
	assert.Equal(t, "80", p.AverageCost.String())
	assert.Equal(t, "-100", p.RealizedPnL.String())
	assert.Equal(t, t0.Add(time.Hour), p.OpenedAt)
}

func TestApplySell(t *testing.T) {
	t.Parallel()

	p, err := ApplyBuy(nil, "A-1", "AAPL", 100, money.MustParse("100"), t0)
	require.NoError(t, err)

	p, err = ApplySell(p, 40, money.MustParse("150"), money.MustParse("2000"), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(60), p.Quantity)
	assert.Equal(t, PositionOpen, p.Status)
	assert.Equal(t, "100", p.AverageCost.String())
	assert.Equal(t, "9000", p.MarketValue.String())
	assert.Equal(t, "3000", p.UnrealizedPnL.String())
	assert.Equal(t, "2000", p.RealizedPnL.String())

	_, err = ApplySell(p, 61, money.MustParse("150"), decimal.Zero, t0)
	assert.ErrorIs(t, err, ErrInsufficientPositionQuantity)

	p, err = ApplySell(p, 60, money.MustParse("150"), money.MustParse("3000"), t0)
	require.NoError(t, err)
	assert.Equal(t, PositionClosed, p.Status)
	assert.Equal(t, int64(0), p.Quantity)
	assert.Equal(t, int64(0), p.Available)
	assert.True(t, p.MarketValue.IsZero())
	assert.True(t, p.UnrealizedPnL.IsZero())
	assert.Equal(t, "5000", p.RealizedPnL.String())
}

func TestIsRejection(t *testing.T) {
	t.Parallel()

	_, err := ApplySettlement(acct("1"), Buy, money.MustParse("2"), decimal.Zero)
	assert.True(t, IsRejection(err))
	assert.False(t, IsRejection(assert.AnError))
	assert.False(t, IsRejection(nil))
}
