package main

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"margin-backtester/analytics"
	"margin-backtester/broker"
	"margin-backtester/marketdata"
	"margin-backtester/strategy"
	"margin-backtester/tradelog"
)

// Whole-system replay: synthetic trend data through the SMA-cross strategy,
// broker, analytics report and sqlite export.
func TestFullBacktest(t *testing.T) {
	const bars = 400
	times := make([]time.Time, bars)
	data := make([]marketdata.Bar, bars)
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < bars; i++ {
		// A rising trend with a cyclical swing, so the SMAs cross both ways.
		price := 1000 + float64(i) + 200*math.Sin(float64(i)/40)
		times[i] = t0.Add(time.Duration(i) * time.Hour)
		data[i] = marketdata.Bar{
			Open:  price,
			High:  price * 1.01,
			Low:   price * 0.99,
			Close: price,
		}
	}
	series, err := marketdata.NewSeries("BTC", times, data)
	if err != nil {
		t.Fatal(err)
	}

	cfg := broker.DefaultConfig
	cfg.InitialCapital = 100_000
	b := broker.New(series, cfg, nil)

	sma, err := strategy.NewSMACross(series, "BTC", 10, 30)
	if err != nil {
		t.Fatal(err)
	}
	res, err := strategy.NewRunner(series, b, nil).Run(context.Background(), sma)
	if err != nil {
		t.Fatal(err)
	}

	trades := b.Trades()
	if len(trades) == 0 {
		t.Fatal("no trades over a full cycle of crosses")
	}
	for _, tr := range trades {
		if tr.Status != broker.StatusFilled && tr.Status != broker.StatusRejected {
			t.Fatalf("ledger holds a non-terminal record: %+v", tr)
		}
	}

	var realized float64
	for _, tr := range trades {
		realized += tr.RealizedPnL
	}
	if math.Abs(b.Cash()-(cfg.InitialCapital+realized)) > 1e-6 {
		t.Fatalf("cash %v diverged from initial + realized %v", b.Cash(), cfg.InitialCapital+realized)
	}

	report, err := analytics.Evaluate(res, cfg.InitialCapital, trades)
	if err != nil {
		t.Fatal(err)
	}
	if report.Fills == 0 {
		t.Fatal("report counted no fills")
	}

	store, err := tradelog.Open(filepath.Join(t.TempDir(), "backtest.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	runID := uuid.NewString()
	ctx := context.Background()
	if err := store.SaveRun(ctx, tradelog.RunSummary{
		RunID:          runID,
		Symbol:         "BTC",
		StartedAt:      times[0],
		FinishedAt:     times[bars-1],
		Bars:           bars,
		InitialBalance: cfg.InitialCapital,
		FinalBalance:   b.Cash(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTrades(ctx, runID, trades); err != nil {
		t.Fatal(err)
	}

	persisted, err := store.TradesBySymbol(ctx, runID, "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != len(trades) {
		t.Fatalf("persisted %d of %d trades", len(persisted), len(trades))
	}
}
