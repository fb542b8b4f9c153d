package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/ledger"
)

const (
	sqliteAccountCols = `id, account_number, name, description, balance, buying_power,
	realized_pnl, is_active, created_at, updated_at`
	sqlitePositionCols = `id, account_number, symbol, side, quantity, available_quantity,
	average_cost, market_price, market_value, unrealized_pnl, realized_pnl, status,
	profit_target, stop_loss, notes, opened_at, updated_at`
	sqliteOrderCols = `id, account_number, symbol, side, order_type, quantity, price,
	status, executed_quantity, average_price, notes, created_at`
	sqliteRunCols = `id, name, symbols, start_date, end_date, interval_days, initial_capital,
	account_number, status, final_equity, total_return, sharpe_ratio, max_drawdown,
	error_message, created_at, updated_at`
)

// SQLite is a Store and RunStore on a single sqlite file. Write transactions
// start with BEGIN IMMEDIATE, which takes the database write lock up front;
// that is what makes LockAccount/LockPosition exclusive.
type SQLite struct {
	db *sql.DB
}

var (
	_ ledger.Store      = (*SQLite)(nil)
	_ backtest.RunStore = (*SQLite)(nil)
)

// SQLiteDSN builds a go-sqlite3 DSN for path with immediate transactions.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		path, busyTimeout.Milliseconds())
}

func NewSQLite(path string) (*SQLite, error) {
	return OpenSQLite(path, 0)
}

func OpenSQLite(path string, busyTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", SQLiteDSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(SQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func (s *SQLite) Begin(ctx context.Context) (ledger.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLite) Account(ctx context.Context, number string) (ledger.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAccountCols+` FROM accounts WHERE account_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, number)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("sqlite: account %s: %w", number, err)
	}
	return a, nil
}

func (s *SQLite) Positions(ctx context.Context, account string, openOnly bool) ([]ledger.Position, error) {
	q := `SELECT ` + sqlitePositionCols + ` FROM positions WHERE account_number = ?`
	if openOnly {
		q += ` AND status = 'OPEN' AND quantity > 0`
	}
	q += ` ORDER BY symbol, side`

	rows, err := s.db.QueryContext(ctx, q, account)
	if err != nil {
		return nil, fmt.Errorf("sqlite: positions %s: %w", account, err)
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Orders(ctx context.Context, account string, limit int) ([]ledger.Order, error) {
	q := `SELECT ` + sqliteOrderCols + ` FROM orders WHERE account_number = ? ORDER BY id DESC`
	args := []any{account}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: orders %s: %w", account, err)
	}
	defer rows.Close()

	var out []ledger.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type sqliteTx struct {
	tx   *sql.Tx
	done bool
}

func (t *sqliteTx) LockAccount(ctx context.Context, number string) (ledger.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+sqliteAccountCols+` FROM accounts WHERE account_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, number)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("sqlite: lock account %s: %w", number, err)
	}
	return a, nil
}

func (t *sqliteTx) LockPosition(ctx context.Context, account, symbol string, side ledger.Side) (ledger.Position, bool, error) {
	p, err := scanPosition(t.tx.QueryRowContext(ctx,
		`SELECT `+sqlitePositionCols+` FROM positions
		WHERE account_number = ? AND symbol = ? AND side = ?`, account, symbol, string(side)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Position{}, false, nil
	}
	if err != nil {
		return ledger.Position{}, false, fmt.Errorf("sqlite: lock position %s/%s: %w", account, symbol, err)
	}
	return p, true, nil
}

func (t *sqliteTx) InsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts
		(id, account_number, name, description, balance, buying_power, realized_pnl, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Number, a.Name, a.Description,
		a.Balance.String(), a.BuyingPower.String(), a.RealizedPnL.String(),
		a.Active, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, a.Number)
	}
	if err != nil {
		return fmt.Errorf("sqlite: insert account %s: %w", a.Number, err)
	}
	return nil
}

func (t *sqliteTx) UpdateAccount(ctx context.Context, a ledger.Account) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET name = ?, description = ?, balance = ?, buying_power = ?,
		realized_pnl = ?, is_active = ?, updated_at = ?
		WHERE account_number = ?`,
		a.Name, a.Description, a.Balance.String(), a.BuyingPower.String(),
		a.RealizedPnL.String(), a.Active, a.UpdatedAt, a.Number,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update account %s: %w", a.Number, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, a.Number)
	}
	return nil
}

func (t *sqliteTx) SavePosition(ctx context.Context, p ledger.Position) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO positions
		(id, account_number, symbol, side, quantity, available_quantity, average_cost,
		 market_price, market_value, unrealized_pnl, realized_pnl, status,
		 profit_target, stop_loss, notes, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_number, symbol, side) DO UPDATE SET
		 quantity = excluded.quantity,
		 available_quantity = excluded.available_quantity,
		 average_cost = excluded.average_cost,
		 market_price = excluded.market_price,
		 market_value = excluded.market_value,
		 unrealized_pnl = excluded.unrealized_pnl,
		 realized_pnl = excluded.realized_pnl,
		 status = excluded.status,
		 profit_target = excluded.profit_target,
		 stop_loss = excluded.stop_loss,
		 notes = excluded.notes,
		 opened_at = excluded.opened_at,
		 updated_at = excluded.updated_at`,
		p.ID, p.Account, p.Symbol, string(p.Side), p.Quantity, p.Available, p.AverageCost.String(),
		nullText(p.MarketPrice), p.MarketValue.String(), p.UnrealizedPnL.String(), p.RealizedPnL.String(),
		string(p.Status), nullText(p.ProfitTarget), nullText(p.StopLoss), p.Notes, p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save position %s/%s: %w", p.Account, p.Symbol, err)
	}
	return nil
}

func (t *sqliteTx) InsertOrder(ctx context.Context, o ledger.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders
		(id, account_number, symbol, side, order_type, quantity, price, status,
		 executed_quantity, average_price, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Account, o.Symbol, string(o.Side), string(o.Type), o.Quantity, o.Price.String(),
		string(o.Status), o.ExecutedQuantity, nullText(o.AveragePrice), o.Notes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert order %s: %w", o.ID, err)
	}
	return nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlite: rollback: %w", err)
	}
	return nil
}

func (s *SQLite) CreateRun(ctx context.Context, r backtest.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (`+sqliteRunCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, backtest.JoinSymbols(r.Symbols),
		r.Start.Format(equity.DateLayout), r.End.Format(equity.DateLayout),
		r.IntervalDays, r.InitialCapital.String(), r.AccountNumber, string(r.Status),
		nullText(r.FinalEquity), nullText(r.TotalReturn), nullText(r.SharpeRatio), nullText(r.MaxDrawdown),
		r.ErrorMessage, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: create run %s: %w", r.ID, err)
	}
	return nil
}

// runGuard checks that run id exists and is not finalized inside tx.
func runGuard(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM backtest_runs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", backtest.ErrRunNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: run %s: %w", id, err)
	}
	if backtest.Status(status).Terminal() {
		return fmt.Errorf("%w: %s is %s", backtest.ErrRunFinalized, id, status)
	}
	return nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) UpdateRun(ctx context.Context, r backtest.Run) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := runGuard(ctx, tx, r.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE backtest_runs SET account_number = ?, status = ?, final_equity = ?,
			total_return = ?, sharpe_ratio = ?, max_drawdown = ?, error_message = ?, updated_at = ?
			WHERE id = ?`,
			r.AccountNumber, string(r.Status), nullText(r.FinalEquity), nullText(r.TotalReturn),
			nullText(r.SharpeRatio), nullText(r.MaxDrawdown), r.ErrorMessage, r.UpdatedAt, r.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: update run %s: %w", r.ID, err)
		}
		return nil
	})
}

func (s *SQLite) AppendEquity(ctx context.Context, runID string, p equity.Point) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := runGuard(ctx, tx, runID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_daily_equity (run_id, seq, date, equity, cash, market_value, daily_return)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM backtest_daily_equity WHERE run_id = ?), ?, ?, ?, ?, ?)`,
			runID, runID, p.Date.Format(equity.DateLayout), p.Equity.String(), p.Cash.String(),
			p.MarketValue.String(), nullText(p.DailyReturn),
		)
		if err != nil {
			return fmt.Errorf("sqlite: append equity %s: %w", runID, err)
		}
		return nil
	})
}

func (s *SQLite) GetRun(ctx context.Context, id string) (backtest.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunCols+` FROM backtest_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return backtest.Run{}, fmt.Errorf("%w: %s", backtest.ErrRunNotFound, id)
	}
	if err != nil {
		return backtest.Run{}, fmt.Errorf("sqlite: run %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]backtest.Run, error) {
	q := `SELECT ` + sqliteRunCols + ` FROM backtest_runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var out []backtest.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) ListEquity(ctx context.Context, runID string) ([]equity.Point, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, equity, cash, market_value, daily_return
		FROM backtest_daily_equity WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: equity %s: %w", runID, err)
	}
	defer rows.Close()

	var out []equity.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan equity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
