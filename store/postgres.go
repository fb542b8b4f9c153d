package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/ledger"
)

const (
	pgAccountCols = `id, account_number, name, description, balance::text, buying_power::text,
	realized_pnl::text, is_active, created_at, updated_at`
	pgPositionCols = `id, account_number, symbol, side, quantity, available_quantity,
	average_cost::text, market_price::text, market_value::text, unrealized_pnl::text,
	realized_pnl::text, status, profit_target::text, stop_loss::text, notes, opened_at, updated_at`
	pgOrderCols = `id, account_number, symbol, side, order_type, quantity, price::text,
	status, executed_quantity, average_price::text, notes, created_at`
	pgRunCols = `id, name, symbols, start_date::text, end_date::text, interval_days,
	initial_capital::text, account_number, status, final_equity::text, total_return::text,
	sharpe_ratio::text, max_drawdown::text, error_message, created_at, updated_at`
)

// PostgresConfig holds connection parameters for the Postgres store.
type PostgresConfig struct {
	DSN      string
	MaxConns int
	MinConns int
}

// Postgres is a Store and RunStore on a pgx pool. Lock methods use
// SELECT ... FOR UPDATE.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ ledger.Store      = (*Postgres)(nil)
	_ backtest.RunStore = (*Postgres)(nil)
)

// NewPostgres creates a pool from cfg and applies the schema.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	p := NewPostgresFromPool(pool)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns the pool.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}

func (s *Postgres) Begin(ctx context.Context) (ledger.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (s *Postgres) Account(ctx context.Context, number string) (ledger.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+pgAccountCols+` FROM accounts WHERE account_number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, number)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("postgres: account %s: %w", number, err)
	}
	return a, nil
}

func (s *Postgres) Positions(ctx context.Context, account string, openOnly bool) ([]ledger.Position, error) {
	q := `SELECT ` + pgPositionCols + ` FROM positions WHERE account_number = $1`
	if openOnly {
		q += ` AND status = 'OPEN' AND quantity > 0`
	}
	q += ` ORDER BY symbol, side`

	rows, err := s.pool.Query(ctx, q, account)
	if err != nil {
		return nil, fmt.Errorf("postgres: positions %s: %w", account, err)
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) Orders(ctx context.Context, account string, limit int) ([]ledger.Order, error) {
	q := `SELECT ` + pgOrderCols + ` FROM orders WHERE account_number = $1 ORDER BY id DESC`
	args := []any{account}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: orders %s: %w", account, err)
	}
	defer rows.Close()

	var out []ledger.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx   pgx.Tx
	done bool
}

func (t *pgTx) LockAccount(ctx context.Context, number string) (ledger.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+pgAccountCols+` FROM accounts WHERE account_number = $1 FOR UPDATE`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, number)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("postgres: lock account %s: %w", number, err)
	}
	return a, nil
}

func (t *pgTx) LockPosition(ctx context.Context, account, symbol string, side ledger.Side) (ledger.Position, bool, error) {
	p, err := scanPosition(t.tx.QueryRow(ctx,
		`SELECT `+pgPositionCols+` FROM positions
		WHERE account_number = $1 AND symbol = $2 AND side = $3 FOR UPDATE`,
		account, symbol, string(side)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Position{}, false, nil
	}
	if err != nil {
		return ledger.Position{}, false, fmt.Errorf("postgres: lock position %s/%s: %w", account, symbol, err)
	}
	return p, true, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts
		(id, account_number, name, description, balance, buying_power, realized_pnl, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)`,
		a.ID, a.Number, a.Name, a.Description,
		a.Balance.String(), a.BuyingPower.String(), a.RealizedPnL.String(),
		a.Active, a.CreatedAt, a.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, a.Number)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert account %s: %w", a.Number, err)
	}
	return nil
}

func (t *pgTx) UpdateAccount(ctx context.Context, a ledger.Account) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET name = $1, description = $2, balance = $3::numeric,
		buying_power = $4::numeric, realized_pnl = $5::numeric, is_active = $6, updated_at = $7
		WHERE account_number = $8`,
		a.Name, a.Description, a.Balance.String(), a.BuyingPower.String(),
		a.RealizedPnL.String(), a.Active, a.UpdatedAt, a.Number,
	)
	if err != nil {
		return fmt.Errorf("postgres: update account %s: %w", a.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, a.Number)
	}
	return nil
}

func (t *pgTx) SavePosition(ctx context.Context, p ledger.Position) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO positions
		(id, account_number, symbol, side, quantity, available_quantity, average_cost,
		 market_price, market_value, unrealized_pnl, realized_pnl, status,
		 profit_target, stop_loss, notes, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric,
		 $11::numeric, $12, $13::numeric, $14::numeric, $15, $16, $17)
		ON CONFLICT (account_number, symbol, side) DO UPDATE SET
		 quantity = EXCLUDED.quantity,
		 available_quantity = EXCLUDED.available_quantity,
		 average_cost = EXCLUDED.average_cost,
		 market_price = EXCLUDED.market_price,
		 market_value = EXCLUDED.market_value,
		 unrealized_pnl = EXCLUDED.unrealized_pnl,
		 realized_pnl = EXCLUDED.realized_pnl,
		 status = EXCLUDED.status,
		 profit_target = EXCLUDED.profit_target,
		 stop_loss = EXCLUDED.stop_loss,
		 notes = EXCLUDED.notes,
		 opened_at = EXCLUDED.opened_at,
		 updated_at = EXCLUDED.updated_at`,
		p.ID, p.Account, p.Symbol, string(p.Side), p.Quantity, p.Available, p.AverageCost.String(),
		nullText(p.MarketPrice), p.MarketValue.String(), p.UnrealizedPnL.String(), p.RealizedPnL.String(),
		string(p.Status), nullText(p.ProfitTarget), nullText(p.StopLoss), p.Notes, p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s/%s: %w", p.Account, p.Symbol, err)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o ledger.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders
		(id, account_number, symbol, side, order_type, quantity, price, status,
		 executed_quantity, average_price, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10::numeric, $11, $12)`,
		o.ID, o.Account, o.Symbol, string(o.Side), string(o.Type), o.Quantity, o.Price.String(),
		string(o.Status), o.ExecutedQuantity, nullText(o.AveragePrice), o.Notes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

func (s *Postgres) CreateRun(ctx context.Context, r backtest.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backtest_runs (id, name, symbols, start_date, end_date, interval_days,
		 initial_capital, account_number, status, final_equity, total_return, sharpe_ratio,
		 max_drawdown, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7::numeric, $8, $9, $10::numeric,
		 $11::numeric, $12::numeric, $13::numeric, $14, $15, $16)`,
		r.ID, r.Name, backtest.JoinSymbols(r.Symbols),
		r.Start.Format(equity.DateLayout), r.End.Format(equity.DateLayout),
		r.IntervalDays, r.InitialCapital.String(), r.AccountNumber, string(r.Status),
		nullText(r.FinalEquity), nullText(r.TotalReturn), nullText(r.SharpeRatio), nullText(r.MaxDrawdown),
		r.ErrorMessage, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", r.ID, err)
	}
	return nil
}

func pgRunGuard(ctx context.Context, tx pgx.Tx, id string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM backtest_runs WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", backtest.ErrRunNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("postgres: run %s: %w", id, err)
	}
	if backtest.Status(status).Terminal() {
		return fmt.Errorf("%w: %s is %s", backtest.ErrRunFinalized, id, status)
	}
	return nil
}

func (s *Postgres) UpdateRun(ctx context.Context, r backtest.Run) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgRunGuard(ctx, tx, r.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE backtest_runs SET account_number = $1, status = $2, final_equity = $3::numeric,
			total_return = $4::numeric, sharpe_ratio = $5::numeric, max_drawdown = $6::numeric,
			error_message = $7, updated_at = $8
			WHERE id = $9`,
			r.AccountNumber, string(r.Status), nullText(r.FinalEquity), nullText(r.TotalReturn),
			nullText(r.SharpeRatio), nullText(r.MaxDrawdown), r.ErrorMessage, r.UpdatedAt, r.ID,
		)
		if err != nil {
			return fmt.Errorf("postgres: update run %s: %w", r.ID, err)
		}
		return nil
	})
}

func (s *Postgres) AppendEquity(ctx context.Context, runID string, p equity.Point) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgRunGuard(ctx, tx, runID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO backtest_daily_equity (run_id, seq, date, equity, cash, market_value, daily_return)
			VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM backtest_daily_equity WHERE run_id = $1),
			 $2::date, $3::numeric, $4::numeric, $5::numeric, $6::numeric)`,
			runID, p.Date.Format(equity.DateLayout), p.Equity.String(), p.Cash.String(),
			p.MarketValue.String(), nullText(p.DailyReturn),
		)
		if err != nil {
			return fmt.Errorf("postgres: append equity %s: %w", runID, err)
		}
		return nil
	})
}

func (s *Postgres) GetRun(ctx context.Context, id string) (backtest.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+pgRunCols+` FROM backtest_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return backtest.Run{}, fmt.Errorf("%w: %s", backtest.ErrRunNotFound, id)
	}
	if err != nil {
		return backtest.Run{}, fmt.Errorf("postgres: run %s: %w", id, err)
	}
	return r, nil
}

func (s *Postgres) ListRuns(ctx context.Context, limit int) ([]backtest.Run, error) {
	q := `SELECT ` + pgRunCols + ` FROM backtest_runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []backtest.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) ListEquity(ctx context.Context, runID string) ([]equity.Point, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT date::text, equity::text, cash::text, market_value::text, daily_return::text
		FROM backtest_daily_equity WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: equity %s: %w", runID, err)
	}
	defer rows.Close()

	var out []equity.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan equity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
