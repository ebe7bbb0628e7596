package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"margin-backtester/broker"
	"margin-backtester/marketdata"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flatBars(closes []float64) []marketdata.Bar {
	bars := make([]marketdata.Bar, len(closes))
	for i, c := range closes {
		bars[i] = marketdata.Bar{Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return bars
}

func series(t *testing.T, symbol string, closes []float64) *marketdata.Series {
	t.Helper()
	times := make([]time.Time, len(closes))
	for i := range times {
		times[i] = t0.Add(time.Duration(i) * time.Hour)
	}
	s, err := marketdata.NewSeries(symbol, times, flatBars(closes))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// scripted lets a test inject per-bar behavior.
type scripted struct {
	onInit func(b *broker.Broker) error
	onBar  func(b *broker.Broker, i int) error
	bars   []int
}

func (s *scripted) Init(b *broker.Broker) error {
	if s.onInit != nil {
		return s.onInit(b)
	}
	return nil
}

func (s *scripted) OnBar(b *broker.Broker, i int) error {
	s.bars = append(s.bars, i)
	if s.onBar != nil {
		return s.onBar(b, i)
	}
	return nil
}

func TestRunnerVisitsEveryBarInOrder(t *testing.T) {
	feed := series(t, "BTC", []float64{100, 101, 102, 103, 104})
	b := broker.New(feed, broker.DefaultConfig, nil)
	s := &scripted{}

	res, err := NewRunner(feed, b, nil).Run(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.bars) != 5 {
		t.Fatalf("strategy saw %d bars", len(s.bars))
	}
	for i, got := range s.bars {
		if got != i {
			t.Fatalf("bars visited out of order: %v", s.bars)
		}
	}
	if b.BarIndex() != 5 {
		t.Fatalf("broker advanced %d bars", b.BarIndex())
	}
	if len(res.Balances) != 5 || len(res.Returns) != 5 || len(res.Times) != 5 {
		t.Fatalf("result lengths = %d/%d/%d", len(res.Balances), len(res.Returns), len(res.Times))
	}
	if res.Returns[0] != 0 {
		t.Fatalf("first bar return = %v", res.Returns[0])
	}
}

func TestRunnerRecordsReturns(t *testing.T) {
	feed := series(t, "BTC", []float64{100, 110})
	cfg := broker.DefaultConfig
	cfg.InitialCapital = 1000
	cfg.CommissionRate = 0
	b := broker.New(feed, cfg, nil)

	s := &scripted{onBar: func(b *broker.Broker, i int) error {
		switch i {
		case 0:
			_, err := b.MarketOrder("BTC", 1) // fills at 100
			return err
		case 1:
			_, err := b.MarketOrder("BTC", -1) // fills at 110, +10
			return err
		}
		return nil
	}}

	res, err := NewRunner(feed, b, nil).Run(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if res.Balances[0] != 1000 {
		t.Fatalf("balance after opening fill = %v (only realized pnl moves cash)", res.Balances[0])
	}
	if res.Balances[1] != 1010 {
		t.Fatalf("balance after close = %v", res.Balances[1])
	}
	if math.Abs(res.Returns[1]-0.01) > 1e-12 {
		t.Fatalf("return[1] = %v, want 0.01", res.Returns[1])
	}
}

func TestRunnerHonorsContext(t *testing.T) {
	feed := series(t, "BTC", []float64{100, 101, 102})
	b := broker.New(feed, broker.DefaultConfig, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewRunner(feed, b, nil).Run(ctx, &scripted{}); err == nil {
		t.Fatal("run ignored cancelled context")
	}
}

func TestSMACrossTradesTheCrosses(t *testing.T) {
	closes := []float64{10, 10, 10, 20, 30, 5, 5, 5}
	feed := series(t, "BTC", closes)

	cfg := broker.DefaultConfig
	cfg.InitialCapital = 1000
	cfg.CommissionRate = 0
	b := broker.New(feed, cfg, nil)

	s, err := NewSMACross(feed, "BTC", 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewRunner(feed, b, nil).Run(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	trades := b.Trades()
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want entry and exit: %+v", len(trades), trades)
	}
	entry, exit := trades[0], trades[1]
	if entry.Side != broker.Long || entry.Kind != broker.Limit || entry.ExecPrice != 30 {
		t.Fatalf("entry = %+v, want limit buy at the golden-cross open 30", entry)
	}
	if exit.Side != broker.Short || exit.Kind != broker.Market || exit.ExecPrice != 5 {
		t.Fatalf("exit = %+v, want market sell at the death-cross open 5", exit)
	}
	if !b.Position("BTC").Flat() {
		t.Fatal("strategy left a position open")
	}
}

func TestSMACrossValidation(t *testing.T) {
	feed := series(t, "BTC", []float64{1, 2, 3})
	if _, err := NewSMACross(feed, "ETH", 2, 3); err == nil {
		t.Fatal("accepted unknown symbol")
	}
	if _, err := NewSMACross(feed, "BTC", 3, 2); err == nil {
		t.Fatal("accepted long period under short period")
	}
}
