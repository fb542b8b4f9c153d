package ledger

import "context"

// Tx is the lock guard for one settlement. Rows returned by the Lock methods
// stay locked until Commit or Rollback. Rollback after Commit is a no-op, so
// callers may always defer it.
type Tx interface {
	// LockAccount returns ErrAccountNotFound when number does not exist.
	LockAccount(ctx context.Context, number string) (Account, error)
	// LockPosition reports found=false when the account holds no such row.
	LockPosition(ctx context.Context, account, symbol string, side Side) (p Position, found bool, err error)

	// InsertAccount returns ErrAccountExists on a duplicate number.
	InsertAccount(ctx context.Context, a Account) error
	UpdateAccount(ctx context.Context, a Account) error
	// SavePosition upserts on (Account, Symbol, Side).
	SavePosition(ctx context.Context, p Position) error
	InsertOrder(ctx context.Context, o Order) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the ledger repository. Reads outside a transaction see committed
// state only.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	Account(ctx context.Context, number string) (Account, error)
	// Positions are returned ordered by symbol then side.
	Positions(ctx context.Context, account string, openOnly bool) ([]Position, error)
	// Orders are returned newest first. limit <= 0 means no limit.
	Orders(ctx context.Context, account string, limit int) ([]Order, error)
}

// InTx runs fn inside a transaction on s. The transaction is rolled back when
// fn returns an error or panics and committed otherwise.
func InTx(ctx context.Context, s Store, fn func(tx Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
