package tradelog

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL,
	bars            INTEGER NOT NULL DEFAULT 0,
	initial_balance REAL NOT NULL DEFAULT 0,
	final_balance   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(run_id),
	created_at   DATETIME NOT NULL,
	executed_at  DATETIME,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	qty          REAL NOT NULL,
	price        REAL,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	stop_price   REAL,
	triggered    BOOLEAN NOT NULL DEFAULT 0,
	reason       TEXT NOT NULL DEFAULT '',
	exec_price   REAL,
	commission   REAL NOT NULL DEFAULT 0,
	gross_pnl    REAL NOT NULL DEFAULT 0,
	realized_pnl REAL NOT NULL DEFAULT 0,
	label        TEXT NOT NULL DEFAULT '',
	seq          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE VIEW IF NOT EXISTS v_pnl_by_symbol AS
SELECT
	run_id,
	symbol,
	COUNT(*) AS fills,
	SUM(commission) AS commission,
	SUM(gross_pnl) AS gross_pnl,
	SUM(realized_pnl) AS realized_pnl
FROM trades
WHERE status = 'FILLED'
GROUP BY run_id, symbol;
`
