// Package tradelog persists backtest trade ledgers to sqlite for tabular
// analysis outside the process.
package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"margin-backtester/broker"
)

type Store struct {
	db *sql.DB
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID          string
	Symbol         string
	StartedAt      time.Time
	FinishedAt     time.Time
	Bars           int
	InitialBalance float64
	FinalBalance   float64
}

// PnLBySymbol is a row from the v_pnl_by_symbol view.
type PnLBySymbol struct {
	RunID       string
	Symbol      string
	Fills       int
	Commission  float64
	GrossPnL    float64
	RealizedPnL float64
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records one run's summary row.
func (s *Store) SaveRun(ctx context.Context, r RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, symbol, started_at, finished_at, bars,
			initial_balance, final_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			bars = excluded.bars,
			final_balance = excluded.final_balance`,
		r.RunID, r.Symbol, r.StartedAt, r.FinishedAt, r.Bars,
		r.InitialBalance, r.FinalBalance,
	)
	return err
}

// SaveTrades writes the ledger in chronological order. The ledger's slice
// order becomes the seq column so exports preserve fill order.
func (s *Store) SaveTrades(ctx context.Context, runID string, trades []broker.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trades (trade_id, run_id, created_at, executed_at,
			symbol, side, qty, price, kind, status, stop_price, triggered,
			reason, exec_price, commission, gross_pnl, realized_pnl, label, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, t := range trades {
		_, err := stmt.ExecContext(ctx,
			t.ID, runID, t.CreatedAt, nullTime(t.ExecutedAt),
			t.Symbol, string(t.Side), t.Qty, nullFloat(t.Price),
			string(t.Kind), string(t.Status), nullFloat(t.StopPrice),
			t.Triggered, t.Reason, nullFloat(t.ExecPrice),
			t.Commission, t.GrossPnL, t.RealizedPnL, t.Label, i,
		)
		if err != nil {
			return fmt.Errorf("inserting trade %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// TradesBySymbol reads back a run's fills and rejections for one symbol in
// ledger order.
func (s *Store) TradesBySymbol(ctx context.Context, runID, symbol string) ([]broker.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, created_at, executed_at, symbol, side, qty, price,
			kind, status, stop_price, triggered, reason, exec_price,
			commission, gross_pnl, realized_pnl, label
		FROM trades WHERE run_id = ? AND symbol = ? ORDER BY seq`,
		runID, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Trade
	for rows.Next() {
		var (
			t          broker.Trade
			side, kind string
			status     string
			executedAt sql.NullTime
			price      sql.NullFloat64
			stopPrice  sql.NullFloat64
			execPrice  sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.CreatedAt, &executedAt, &t.Symbol, &side,
			&t.Qty, &price, &kind, &status, &stopPrice, &t.Triggered,
			&t.Reason, &execPrice, &t.Commission, &t.GrossPnL,
			&t.RealizedPnL, &t.Label); err != nil {
			return nil, err
		}
		t.Side = broker.Side(side)
		t.Kind = broker.OrderKind(kind)
		t.Status = broker.OrderStatus(status)
		t.ExecutedAt = executedAt.Time
		t.Price = floatOrNaN(price)
		t.StopPrice = floatOrNaN(stopPrice)
		t.ExecPrice = floatOrNaN(execPrice)
		out = append(out, t)
	}
	return out, rows.Err()
}

// PnL returns per-symbol realized P&L totals for a run.
func (s *Store) PnL(ctx context.Context, runID string) ([]PnLBySymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, symbol, fills, commission, gross_pnl, realized_pnl
		FROM v_pnl_by_symbol WHERE run_id = ? ORDER BY symbol`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PnLBySymbol
	for rows.Next() {
		var p PnLBySymbol
		if err := rows.Scan(&p.RunID, &p.Symbol, &p.Fills, &p.Commission,
			&p.GrossPnL, &p.RealizedPnL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullFloat(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
