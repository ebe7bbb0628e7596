package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DataCSV        string  // candle file path
	Symbol         string  // instrument the file covers
	InitialCapital float64 // starting cash
	CommissionRate float64 // per-fill commission rate
	SlippageRate   float64 // 0 disables the rate slippage model
	Leverage       int
	ShortSMA       int
	LongSMA        int
	DBPath         string // sqlite trade-log path, empty disables export
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataCSV: os.Getenv("DATA_CSV"),
		Symbol:  getEnvDefault("SYMBOL", "BTC"),
		DBPath:  getEnvDefault("DB_PATH", "./backtest.db"),
	}
	if cfg.DataCSV == "" {
		return nil, fmt.Errorf("DATA_CSV is required")
	}

	var err error
	if cfg.InitialCapital, err = envFloat("INITIAL_CAPITAL", 1_000_000); err != nil {
		return nil, err
	}
	if cfg.CommissionRate, err = envFloat("COMMISSION_RATE", 0.0002); err != nil {
		return nil, err
	}
	if cfg.SlippageRate, err = envFloat("SLIPPAGE_RATE", 0); err != nil {
		return nil, err
	}
	if cfg.Leverage, err = envInt("LEVERAGE", 1); err != nil {
		return nil, err
	}
	if cfg.ShortSMA, err = envInt("SHORT_SMA", 20); err != nil {
		return nil, err
	}
	if cfg.LongSMA, err = envInt("LONG_SMA", 50); err != nil {
		return nil, err
	}

	if cfg.Leverage <= 0 {
		return nil, fmt.Errorf("LEVERAGE must be positive, got %d", cfg.Leverage)
	}
	if cfg.ShortSMA <= 0 || cfg.LongSMA <= cfg.ShortSMA {
		return nil, fmt.Errorf("SMA periods must satisfy 0 < short < long, got %d/%d",
			cfg.ShortSMA, cfg.LongSMA)
	}
	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
