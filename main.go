package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"margin-backtester/analytics"
	"margin-backtester/broker"
	"margin-backtester/config"
	"margin-backtester/marketdata"
	"margin-backtester/strategy"
	"margin-backtester/tradelog"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	series, err := marketdata.LoadCSV(cfg.DataCSV, cfg.Symbol)
	if err != nil {
		return err
	}
	logger.Info("loaded candles",
		zap.String("symbol", cfg.Symbol),
		zap.Int("bars", series.Len()),
		zap.Time("first", series.Time(0)),
		zap.Time("last", series.Time(series.Len()-1)))

	bcfg := broker.DefaultConfig
	bcfg.InitialCapital = cfg.InitialCapital
	bcfg.CommissionRate = cfg.CommissionRate
	if cfg.SlippageRate > 0 {
		bcfg.Slippage = broker.RateSlippage{Rate: cfg.SlippageRate}
	}
	b := broker.New(series, bcfg, logger)

	sma, err := strategy.NewSMACross(series, cfg.Symbol, cfg.ShortSMA, cfg.LongSMA)
	if err != nil {
		return err
	}
	sma.Leverage = cfg.Leverage

	started := time.Now()
	res, err := strategy.NewRunner(series, b, logger).Run(ctx, sma)
	if err != nil {
		return err
	}

	report, err := analytics.Evaluate(res, cfg.InitialCapital, b.Trades())
	if err != nil {
		return err
	}
	fmt.Print(report)

	if cfg.DBPath == "" {
		return nil
	}
	store, err := tradelog.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := uuid.NewString()
	if err := store.SaveRun(ctx, tradelog.RunSummary{
		RunID:          runID,
		Symbol:         cfg.Symbol,
		StartedAt:      started,
		FinishedAt:     time.Now(),
		Bars:           series.Len(),
		InitialBalance: cfg.InitialCapital,
		FinalBalance:   b.Cash(),
	}); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	if err := store.SaveTrades(ctx, runID, b.Trades()); err != nil {
		return fmt.Errorf("saving trades: %w", err)
	}
	logger.Info("trade ledger exported",
		zap.String("run_id", runID),
		zap.String("db", cfg.DBPath),
		zap.Int("trades", len(b.Trades())))
	return nil
}
