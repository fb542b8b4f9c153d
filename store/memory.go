package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rustyeddy/papertrade/backtest"
	"github.com/rustyeddy/papertrade/equity"
	"github.com/rustyeddy/papertrade/ledger"
)

type posKey struct {
	account string
	symbol  string
	side    ledger.Side
}

func keyOf(p ledger.Position) posKey {
	return posKey{account: p.Account, symbol: p.Symbol, side: p.Side}
}

// Memory is an in-process Store and RunStore. Each transaction holds the
// locks of the accounts it touches until Commit or Rollback and applies its
// writes atomically at Commit.
type Memory struct {
	mu        sync.Mutex
	locks     map[string]chan struct{}
	accounts  map[string]ledger.Account
	positions map[posKey]ledger.Position
	orders    map[string][]ledger.Order

	runs   map[string]backtest.Run
	equity map[string][]equity.Point
}

var (
	_ ledger.Store      = (*Memory)(nil)
	_ backtest.RunStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		locks:     make(map[string]chan struct{}),
		accounts:  make(map[string]ledger.Account),
		positions: make(map[posKey]ledger.Position),
		orders:    make(map[string][]ledger.Order),
		runs:      make(map[string]backtest.Run),
		equity:    make(map[string][]equity.Point),
	}
}

func (m *Memory) lockFor(number string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[number]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[number] = l
	}
	return l
}

func (m *Memory) Begin(ctx context.Context) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{
		m:         m,
		held:      make(map[string]chan struct{}),
		accounts:  make(map[string]ledger.Account),
		positions: make(map[posKey]ledger.Position),
	}, nil
}

func (m *Memory) Account(ctx context.Context, number string) (ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, number)
	}
	return a, nil
}

func (m *Memory) Positions(ctx context.Context, account string, openOnly bool) ([]ledger.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Position
	for k, p := range m.positions {
		if k.account != account {
			continue
		}
		if openOnly && !p.IsOpen() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Side < out[j].Side
	})
	return out, nil
}

func (m *Memory) Orders(ctx context.Context, account string, limit int) ([]ledger.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	os := m.orders[account]
	out := make([]ledger.Order, 0, len(os))
	for i := len(os) - 1; i >= 0; i-- {
		out = append(out, os[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memTx struct {
	m         *Memory
	held      map[string]chan struct{}
	accounts  map[string]ledger.Account
	positions map[posKey]ledger.Position
	orders    []ledger.Order
	done      bool
}

func (tx *memTx) acquire(ctx context.Context, number string) error {
	if tx.done {
		return fmt.Errorf("memory: transaction already closed")
	}
	if _, ok := tx.held[number]; ok {
		return nil
	}
	l := tx.m.lockFor(number)
	select {
	case l <- struct{}{}:
		tx.held[number] = l
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *memTx) release() {
	for n, l := range tx.held {
		<-l
		delete(tx.held, n)
	}
	tx.done = true
}

func (tx *memTx) LockAccount(ctx context.Context, number string) (ledger.Account, error) {
	if err := tx.acquire(ctx, number); err != nil {
		return ledger.Account{}, err
	}
	if a, ok := tx.accounts[number]; ok {
		return a, nil
	}
	return tx.m.Account(ctx, number)
}

func (tx *memTx) LockPosition(ctx context.Context, account, symbol string, side ledger.Side) (ledger.Position, bool, error) {
	if err := tx.acquire(ctx, account); err != nil {
		return ledger.Position{}, false, err
	}
	k := posKey{account: account, symbol: symbol, side: side}
	if p, ok := tx.positions[k]; ok {
		return p, true, nil
	}
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	p, ok := tx.m.positions[k]
	return p, ok, nil
}

func (tx *memTx) InsertAccount(ctx context.Context, a ledger.Account) error {
	if err := tx.acquire(ctx, a.Number); err != nil {
		return err
	}
	if _, err := tx.m.Account(ctx, a.Number); err == nil {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, a.Number)
	}
	tx.accounts[a.Number] = a
	return nil
}

func (tx *memTx) UpdateAccount(ctx context.Context, a ledger.Account) error {
	if _, ok := tx.held[a.Number]; !ok {
		return fmt.Errorf("memory: account %s updated without lock", a.Number)
	}
	tx.accounts[a.Number] = a
	return nil
}

func (tx *memTx) SavePosition(ctx context.Context, p ledger.Position) error {
	if _, ok := tx.held[p.Account]; !ok {
		return fmt.Errorf("memory: position %s/%s saved without lock", p.Account, p.Symbol)
	}
	tx.positions[keyOf(p)] = p
	return nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o ledger.Order) error {
	if _, ok := tx.held[o.Account]; !ok {
		return fmt.Errorf("memory: order for %s inserted without lock", o.Account)
	}
	tx.orders = append(tx.orders, o)
	return nil
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("memory: transaction already closed")
	}
	tx.m.mu.Lock()
	for n, a := range tx.accounts {
		tx.m.accounts[n] = a
	}
	for k, p := range tx.positions {
		tx.m.positions[k] = p
	}
	for _, o := range tx.orders {
		tx.m.orders[o.Account] = append(tx.m.orders[o.Account], o)
	}
	tx.m.mu.Unlock()

	tx.release()
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.release()
	return nil
}

func (m *Memory) CreateRun(ctx context.Context, r backtest.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; ok {
		return fmt.Errorf("memory: run %s already exists", r.ID)
	}
	r.Symbols = append([]string(nil), r.Symbols...)
	m.runs[r.ID] = r
	return nil
}

func (m *Memory) UpdateRun(ctx context.Context, r backtest.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", backtest.ErrRunNotFound, r.ID)
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", backtest.ErrRunFinalized, r.ID, cur.Status)
	}
	r.Symbols = append([]string(nil), r.Symbols...)
	m.runs[r.ID] = r
	return nil
}

func (m *Memory) AppendEquity(ctx context.Context, runID string, p equity.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", backtest.ErrRunNotFound, runID)
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", backtest.ErrRunFinalized, runID, cur.Status)
	}
	m.equity[runID] = append(m.equity[runID], p)
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (backtest.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return backtest.Run{}, fmt.Errorf("%w: %s", backtest.ErrRunNotFound, id)
	}
	r.Symbols = append([]string(nil), r.Symbols...)
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, limit int) ([]backtest.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]backtest.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListEquity(ctx context.Context, runID string) ([]equity.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return nil, fmt.Errorf("%w: %s", backtest.ErrRunNotFound, runID)
	}
	return append([]equity.Point(nil), m.equity[runID]...), nil
}
