// Package ledger is the paper-trading account and position book. It settles
// filled orders against an account's cash and buying power and keeps each
// holding's weighted-average cost and realized/unrealized P/L.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

type OrderType string

const (
	MarketOrder OrderType = "MARKET"
	LimitOrder  OrderType = "LIMIT"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Account is a simulated cash account. Balance and BuyingPower move together
// on every settlement; RealizedPnL accumulates over closed lots.
type Account struct {
	ID          string
	Number      string
	Name        string
	Description string
	Balance     decimal.Decimal
	BuyingPower decimal.Decimal
	RealizedPnL decimal.Decimal
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Position is the holding of one symbol on one side of an account.
// (Account, Symbol, Side) is unique.
type Position struct {
	ID            string
	Account       string
	Symbol        string
	Side          Side
	Quantity      int64
	Available     int64
	AverageCost   decimal.Decimal
	MarketPrice   decimal.NullDecimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	Status        PositionStatus
	ProfitTarget  decimal.NullDecimal
	StopLoss      decimal.NullDecimal
	Notes         string
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

// IsOpen reports whether the position still holds shares.
func (p Position) IsOpen() bool {
	return p.Status == PositionOpen && p.Quantity > 0
}

// Order is an append-only record of a settled (or rejected) order.
type Order struct {
	ID               string
	Account          string
	Symbol           string
	Side             OrderSide
	Type             OrderType
	Quantity         int64
	Price            decimal.Decimal
	Status           OrderStatus
	ExecutedQuantity int64
	AveragePrice     decimal.NullDecimal
	Notes            string
	CreatedAt        time.Time
}

// OpenAccountRequest describes a new account.
type OpenAccountRequest struct {
	Number      string
	Name        string
	Description string
	InitialCash decimal.Decimal
}

// OrderRequest is a market order filled immediately at Price.
type OrderRequest struct {
	Account  string
	Symbol   string
	Quantity int64
	Price    decimal.Decimal
	Type     OrderType
	Notes    string
}

// Execution is the result of a settled order.
type Execution struct {
	Order    Order
	Position Position
	Account  Account
}
