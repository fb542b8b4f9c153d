package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Trader is the order surface handed to decision makers.
type Trader interface {
	PlaceBuy(ctx context.Context, req OrderRequest) (Execution, error)
	PlaceSell(ctx context.Context, req OrderRequest) (Execution, error)
	Snapshot(ctx context.Context, account string) (Account, error)
	OpenPositions(ctx context.Context, account string) ([]Position, error)
}

// Engine settles orders against a Store. Every PlaceBuy/PlaceSell runs in a
// single transaction that locks the account row first and the position row
// second.
type Engine struct {
	store   Store
	log     *zap.Logger
	now     func() time.Time
	metrics *Metrics
	tracer  trace.Tracer
}

var _ Trader = (*Engine)(nil)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the timestamp source for orders and positions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func NewEngine(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		log:    zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer("github.com/rustyeddy/papertrade/ledger"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the repository the engine settles against.
func (e *Engine) Store() Store { return e.store }

// OpenAccount creates an account whose balance and buying power both start at
// InitialCash.
func (e *Engine) OpenAccount(ctx context.Context, req OpenAccountRequest) (Account, error) {
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return Account{}, fmt.Errorf("%w: account number is required", ErrInvalidOrderInput)
	}
	if req.InitialCash.IsNegative() {
		return Account{}, fmt.Errorf("%w: initial cash must not be negative", ErrInvalidOrderInput)
	}

	now := e.now()
	acct := Account{
		ID:          id.New(),
		Number:      number,
		Name:        req.Name,
		Description: req.Description,
		Balance:     req.InitialCash,
		BuyingPower: req.InitialCash,
		RealizedPnL: decimal.Zero,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := InTx(ctx, e.store, func(tx Tx) error {
		return tx.InsertAccount(ctx, acct)
	})
	if err != nil {
		return Account{}, fmt.Errorf("open account %q: %w", number, err)
	}

	e.log.Info("account opened",
		zap.String("account", number),
		zap.Stringer("cash", req.InitialCash))
	return acct, nil
}

// DeactivateAccount marks an account inactive. Accounts are never deleted.
func (e *Engine) DeactivateAccount(ctx context.Context, number string) (Account, error) {
	var acct Account
	err := InTx(ctx, e.store, func(tx Tx) error {
		a, err := tx.LockAccount(ctx, number)
		if err != nil {
			return err
		}
		a.Active = false
		a.UpdatedAt = e.now()
		acct = a
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		return Account{}, fmt.Errorf("deactivate account %q: %w", number, err)
	}
	return acct, nil
}

func (e *Engine) Snapshot(ctx context.Context, account string) (Account, error) {
	return e.store.Account(ctx, account)
}

func (e *Engine) OpenPositions(ctx context.Context, account string) ([]Position, error) {
	if _, err := e.store.Account(ctx, account); err != nil {
		return nil, err
	}
	return e.store.Positions(ctx, account, true)
}

// Positions returns every position of account, closed ones included.
func (e *Engine) Positions(ctx context.Context, account string) ([]Position, error) {
	if _, err := e.store.Account(ctx, account); err != nil {
		return nil, err
	}
	return e.store.Positions(ctx, account, false)
}

func (e *Engine) Orders(ctx context.Context, account string, limit int) ([]Order, error) {
	if _, err := e.store.Account(ctx, account); err != nil {
		return nil, err
	}
	return e.store.Orders(ctx, account, limit)
}

func validateOrder(req OrderRequest) (OrderRequest, error) {
	req.Account = strings.TrimSpace(req.Account)
	req.Symbol = strings.TrimSpace(req.Symbol)
	switch {
	case req.Account == "":
		return req, fmt.Errorf("%w: account is required", ErrInvalidOrderInput)
	case req.Symbol == "":
		return req, fmt.Errorf("%w: symbol is required", ErrInvalidOrderInput)
	case req.Quantity <= 0:
		return req, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrderInput, req.Quantity)
	case !req.Price.IsPositive():
		return req, fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrderInput, req.Price)
	}
	if req.Type == "" {
		req.Type = MarketOrder
	}
	return req, nil
}

func (e *Engine) filledOrder(req OrderRequest, side OrderSide, now time.Time) Order {
	return Order{
		ID:               id.New(),
		Account:          req.Account,
		Symbol:           req.Symbol,
		Side:             side,
		Type:             req.Type,
		Quantity:         req.Quantity,
		Price:            req.Price,
		Status:           OrderFilled,
		ExecutedQuantity: req.Quantity,
		AveragePrice:     money.Null(req.Price),
		Notes:            req.Notes,
		CreatedAt:        now,
	}
}

// PlaceBuy fills a buy of req.Quantity shares at req.Price. It fails with
// ErrInsufficientBuyingPower when the notional exceeds balance or buying
// power; nothing is written in that case.
func (e *Engine) PlaceBuy(ctx context.Context, req OrderRequest) (exec Execution, err error) {
	ctx, span := e.startSpan(ctx, "ledger.PlaceBuy", req)
	cash := decimal.Zero
	defer func() { e.finish(span, Buy, req, cash, exec, err) }()

	req, err = validateOrder(req)
	if err != nil {
		return Execution{}, err
	}
	cash = money.Notional(req.Price, req.Quantity)

	err = InTx(ctx, e.store, func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, req.Account)
		if err != nil {
			return err
		}
		existing, found, err := tx.LockPosition(ctx, req.Account, req.Symbol, Long)
		if err != nil {
			return err
		}

		acct, err = ApplySettlement(acct, Buy, cash, decimal.Zero)
		if err != nil {
			return err
		}

		now := e.now()
		var prev *Position
		if found {
			prev = &existing
		}
		pos, err := ApplyBuy(prev, req.Account, req.Symbol, req.Quantity, req.Price, now)
		if err != nil {
			return err
		}
		acct.UpdatedAt = now
		order := e.filledOrder(req, Buy, now)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}
		exec = Execution{Order: order, Position: pos, Account: acct}
		return nil
	})
	if err != nil {
		return Execution{}, err
	}
	return exec, nil
}

// PlaceSell fills a sell of req.Quantity shares from the long position in
// req.Symbol, booking realized P/L against its average cost.
func (e *Engine) PlaceSell(ctx context.Context, req OrderRequest) (exec Execution, err error) {
	ctx, span := e.startSpan(ctx, "ledger.PlaceSell", req)
	cash := decimal.Zero
	defer func() { e.finish(span, Sell, req, cash, exec, err) }()

	req, err = validateOrder(req)
	if err != nil {
		return Execution{}, err
	}
	cash = money.Notional(req.Price, req.Quantity)

	err = InTx(ctx, e.store, func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, req.Account)
		if err != nil {
			return err
		}
		pos, found, err := tx.LockPosition(ctx, req.Account, req.Symbol, Long)
		if err != nil {
			return err
		}
		if !found || pos.Quantity <= 0 {
			return fmt.Errorf("%w: %s %s", ErrPositionNotFound, req.Account, req.Symbol)
		}
		if pos.Available < req.Quantity {
			return fmt.Errorf("%w: %s has %d available, need %d",
				ErrInsufficientPositionQuantity, req.Symbol, pos.Available, req.Quantity)
		}

		realized := RealizedPnL(pos.Side, pos.AverageCost, req.Price, req.Quantity)
		acct, err = ApplySettlement(acct, Sell, cash, realized)
		if err != nil {
			return err
		}

		now := e.now()
		pos, err = ApplySell(pos, req.Quantity, req.Price, realized, now)
		if err != nil {
			return err
		}
		acct.UpdatedAt = now
		order := e.filledOrder(req, Sell, now)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}
		exec = Execution{Order: order, Position: pos, Account: acct}
		return nil
	})
	if err != nil {
		return Execution{}, err
	}
	return exec, nil
}

func (e *Engine) startSpan(ctx context.Context, name string, req OrderRequest) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("account", req.Account),
		attribute.String("symbol", req.Symbol),
		attribute.Int64("quantity", req.Quantity),
		attribute.String("price", req.Price.String()),
	))
}

func (e *Engine) finish(span trace.Span, side OrderSide, req OrderRequest, cash decimal.Decimal, exec Execution, err error) {
	defer span.End()
	e.metrics.observe(side, cash, err)

	fields := []zap.Field{
		zap.String("account", req.Account),
		zap.String("side", string(side)),
		zap.String("symbol", req.Symbol),
		zap.Int64("quantity", req.Quantity),
		zap.Stringer("price", req.Price),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if IsRejection(err) {
			e.log.Info("order rejected", append(fields, zap.Error(err))...)
		} else {
			e.log.Error("order failed", append(fields, zap.Error(err))...)
		}
		return
	}

	span.SetAttributes(attribute.String("order_id", exec.Order.ID))
	e.log.Info("order filled", append(fields,
		zap.String("order_id", exec.Order.ID),
		zap.Stringer("cash", cash),
		zap.Stringer("balance", exec.Account.Balance),
		zap.Int64("position_qty", exec.Position.Quantity),
	)...)
}
