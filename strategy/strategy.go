// Package strategy drives a backtest: it replays a Strategy over a bar feed,
// advancing the broker once per bar and recording the balance curve.
package strategy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"margin-backtester/broker"
	"margin-backtester/marketdata"
)

// Strategy is the per-run trading logic. Init runs once before the replay;
// OnBar runs once per bar, before that bar's orders are matched.
type Strategy interface {
	Init(b *broker.Broker) error
	OnBar(b *broker.Broker, i int) error
}

// Result is the balance and return curve of one replay.
type Result struct {
	Times    []time.Time
	Balances []float64
	Returns  []float64
}

// Runner replays a strategy over a feed. Bars are processed strictly in
// order; bar i+1 never starts before bar i's Advance has completed.
type Runner struct {
	feed   marketdata.Feed
	broker *broker.Broker
	logger *zap.Logger
}

// NewRunner wires a runner. A nil logger disables logging.
func NewRunner(feed marketdata.Feed, b *broker.Broker, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{feed: feed, broker: b, logger: logger}
}

// Broker returns the broker the runner drives.
func (r *Runner) Broker() *broker.Broker { return r.broker }

// Run executes the strategy over every bar of the feed and returns the
// balance curve with per-bar simple returns. The context is checked between
// bars only; a single bar is never interrupted mid-transition.
func (r *Runner) Run(ctx context.Context, s Strategy) (*Result, error) {
	if err := s.Init(r.broker); err != nil {
		return nil, fmt.Errorf("strategy init: %w", err)
	}

	n := r.feed.Len()
	res := &Result{
		Times:    make([]time.Time, n),
		Balances: make([]float64, n),
		Returns:  make([]float64, n),
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := s.OnBar(r.broker, i); err != nil {
			return nil, fmt.Errorf("strategy bar %d: %w", i, err)
		}
		if err := r.broker.Advance(); err != nil {
			return nil, fmt.Errorf("advance bar %d: %w", i, err)
		}

		res.Times[i] = r.feed.Time(i)
		res.Balances[i] = r.broker.Cash()
		if i > 0 && res.Balances[i-1] != 0 {
			res.Returns[i] = (res.Balances[i] - res.Balances[i-1]) / res.Balances[i-1]
		}
	}

	r.logger.Info("replay finished",
		zap.Int("bars", n),
		zap.Int("trades", len(r.broker.Trades())),
		zap.Float64("final_balance", r.broker.Cash()),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}
