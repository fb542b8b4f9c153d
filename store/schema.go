package store

// SQLiteSchema stores money as decimal TEXT so values round-trip exactly.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	balance TEXT NOT NULL,
	buying_power TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL REFERENCES accounts(account_number),
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	available_quantity INTEGER NOT NULL,
	average_cost TEXT NOT NULL,
	market_price TEXT,
	market_value TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	status TEXT NOT NULL,
	profit_target TEXT,
	stop_loss TEXT,
	notes TEXT NOT NULL DEFAULT '',
	opened_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (account_number, symbol, side)
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL REFERENCES accounts(account_number),
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	status TEXT NOT NULL,
	executed_quantity INTEGER NOT NULL,
	average_price TEXT,
	notes TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_number, id);

CREATE TABLE IF NOT EXISTS backtest_runs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	symbols TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	interval_days INTEGER NOT NULL,
	initial_capital TEXT NOT NULL,
	account_number TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	final_equity TEXT,
	total_return TEXT,
	sharpe_ratio TEXT,
	max_drawdown TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_daily_equity (
	run_id TEXT NOT NULL REFERENCES backtest_runs(id),
	seq INTEGER NOT NULL,
	date TEXT NOT NULL,
	equity TEXT NOT NULL,
	cash TEXT NOT NULL,
	market_value TEXT NOT NULL,
	daily_return TEXT,
	PRIMARY KEY (run_id, seq)
);
`

// PostgresSchema mirrors SQLiteSchema with NUMERIC money columns.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	balance NUMERIC NOT NULL,
	buying_power NUMERIC NOT NULL,
	realized_pnl NUMERIC NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL REFERENCES accounts(account_number),
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	available_quantity BIGINT NOT NULL,
	average_cost NUMERIC NOT NULL,
	market_price NUMERIC,
	market_value NUMERIC NOT NULL,
	unrealized_pnl NUMERIC NOT NULL,
	realized_pnl NUMERIC NOT NULL,
	status TEXT NOT NULL,
	profit_target NUMERIC,
	stop_loss NUMERIC,
	notes TEXT NOT NULL DEFAULT '',
	opened_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (account_number, symbol, side)
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL REFERENCES accounts(account_number),
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	price NUMERIC NOT NULL,
	status TEXT NOT NULL,
	executed_quantity BIGINT NOT NULL,
	average_price NUMERIC,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_number, id);

CREATE TABLE IF NOT EXISTS backtest_runs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	symbols TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	interval_days INTEGER NOT NULL,
	initial_capital NUMERIC NOT NULL,
	account_number TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	final_equity NUMERIC,
	total_return NUMERIC,
	sharpe_ratio NUMERIC,
	max_drawdown NUMERIC,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_daily_equity (
	run_id TEXT NOT NULL REFERENCES backtest_runs(id),
	seq INTEGER NOT NULL,
	date DATE NOT NULL,
	equity NUMERIC NOT NULL,
	cash NUMERIC NOT NULL,
	market_value NUMERIC NOT NULL,
	daily_return NUMERIC,
	PRIMARY KEY (run_id, seq)
);
`
