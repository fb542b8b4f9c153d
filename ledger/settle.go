package ledger

import (
	"fmt"
	"time"

	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
)

// ApplySettlement moves cash for a filled order. A buy needs cashAmount to be
// covered by both Balance and BuyingPower; equality is allowed. A sell credits
// cash and books realizedDelta, which may be negative.
func ApplySettlement(acct Account, side OrderSide, cashAmount, realizedDelta decimal.Decimal) (Account, error) {
	if !cashAmount.IsPositive() {
		return acct, fmt.Errorf("%w: cash amount must be positive, got %s", ErrInvalidOrderInput, cashAmount)
	}

	switch side {
	case Buy:
		if cashAmount.GreaterThan(acct.Balance) || cashAmount.GreaterThan(acct.BuyingPower) {
			return acct, fmt.Errorf("%w: need %s, balance %s, buying power %s",
				ErrInsufficientBuyingPower, cashAmount, acct.Balance, acct.BuyingPower)
		}
		acct.Balance = acct.Balance.Sub(cashAmount)
		acct.BuyingPower = acct.BuyingPower.Sub(cashAmount)
	case Sell:
		acct.Balance = acct.Balance.Add(cashAmount)
		acct.BuyingPower = acct.BuyingPower.Add(cashAmount)
		acct.RealizedPnL = acct.RealizedPnL.Add(realizedDelta)
	default:
		return acct, fmt.Errorf("%w: unknown side %q", ErrInvalidOrderInput, side)
	}
	return acct, nil
}

// RealizedPnL is the profit of closing qty shares at execPrice against avgCost.
func RealizedPnL(side Side, avgCost, execPrice decimal.Decimal, qty int64) decimal.Decimal {
	diff := execPrice.Sub(avgCost)
	if side == Short {
		diff = avgCost.Sub(execPrice)
	}
	return diff.Mul(decimal.NewFromInt(qty))
}

// UnrealizedPnL marks the position at its stored market price. It is zero
// when no price is known or no shares are held.
func UnrealizedPnL(p Position) decimal.Decimal {
	if !p.MarketPrice.Valid || p.Quantity <= 0 {
		return decimal.Zero
	}
	return RealizedPnL(p.Side, p.AverageCost, p.MarketPrice.Decimal, p.Quantity)
}

// Revalue marks p to price and recomputes market value and unrealized P/L.
func Revalue(p Position, price decimal.Decimal) Position {
	p.MarketPrice = money.Null(price)
	if p.Quantity <= 0 {
		p.MarketValue = decimal.Zero
		p.UnrealizedPnL = decimal.Zero
		return p
	}
	p.MarketValue = money.Notional(price, p.Quantity)
	p.UnrealizedPnL = UnrealizedPnL(p)
	return p
}

// ApplyBuy adds qty shares at price to existing, or opens a new long
// position when existing is nil. A closed position restarts its cost basis at
// price and keeps its cumulative realized P/L.
func ApplyBuy(existing *Position, account, symbol string, qty int64, price decimal.Decimal, now time.Time) (Position, error) {
	if qty <= 0 {
		return Position{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrderInput, qty)
	}
	if !price.IsPositive() {
		return Position{}, fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrderInput, price)
	}

	if existing == nil {
		p := Position{
			ID:          id.New(),
			Account:     account,
			Symbol:      symbol,
			Side:        Long,
			Quantity:    qty,
			Available:   qty,
			AverageCost: price.Round(money.CostPlaces),
			RealizedPnL: decimal.Zero,
			Status:      PositionOpen,
			OpenedAt:    now,
			UpdatedAt:   now,
		}
		return Revalue(p, price), nil
	}

	p := *existing
	if p.Quantity <= 0 {
		p.Quantity = 0
		p.Available = 0
		p.AverageCost = price.Round(money.CostPlaces)
		p.OpenedAt = now
	} else {
		p.AverageCost = money.WeightedAverage(p.AverageCost, p.Quantity, price, qty)
	}
	p.Quantity += qty
	p.Available += qty
	p.Status = PositionOpen
	p.UpdatedAt = now
	return Revalue(p, price), nil
}

// ApplySell removes qty shares filled at price. The caller has already
// checked qty against Available. A position that reaches zero is CLOSED with
// zero market value and unrealized P/L.
func ApplySell(p Position, qty int64, price, realizedDelta decimal.Decimal, now time.Time) (Position, error) {
	if qty <= 0 {
		return p, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrderInput, qty)
	}
	if qty > p.Available {
		return p, fmt.Errorf("%w: have %d available, need %d", ErrInsufficientPositionQuantity, p.Available, qty)
	}

	p.Quantity -= qty
	p.Available -= qty
	p.RealizedPnL = p.RealizedPnL.Add(realizedDelta)
	p.UpdatedAt = now

	if p.Quantity <= 0 {
		p.Quantity = 0
		p.Available = 0
		p.MarketPrice = money.Null(price)
		p.MarketValue = decimal.Zero
		p.UnrealizedPnL = decimal.Zero
		p.Status = PositionClosed
		return p, nil
	}
	return Revalue(p, price), nil
}
