package analytics

import (
	"math"
	"strings"
	"testing"
	"time"

	"margin-backtester/broker"
	"margin-backtester/strategy"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func result(returns []float64, spacing time.Duration) *strategy.Result {
	res := &strategy.Result{Returns: returns}
	balance := 1.0
	for i, r := range returns {
		balance *= 1 + r
		res.Times = append(res.Times, t0.Add(time.Duration(i)*spacing))
		res.Balances = append(res.Balances, balance)
	}
	return res
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestEvaluateCompounding(t *testing.T) {
	year := 365 * 24 * time.Hour
	res := result([]float64{0, 0.1, 0.1}, year)

	rep, err := Evaluate(res, 1_000_000, nil)
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "cumulative return", rep.CumulativeReturn.InexactFloat64(), 0.21)
	approx(t, "final balance", rep.FinalBalance.InexactFloat64(), 1_210_000)
	approx(t, "years", rep.Years, 2)
	// 1.21 over two years compounds to 10% a year.
	approx(t, "cagr", rep.CAGR.InexactFloat64(), 0.1)
	approx(t, "max drawdown", rep.MaxDrawdown.InexactFloat64(), 0)
}

func TestEvaluateMaxDrawdown(t *testing.T) {
	res := result([]float64{0, 0.5, -0.5, 0.2}, time.Hour)

	rep, err := Evaluate(res, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Peak 1.5, trough 0.75.
	approx(t, "max drawdown", rep.MaxDrawdown.InexactFloat64(), -0.5)
}

func TestEvaluateRatios(t *testing.T) {
	res := result([]float64{0.01, -0.02, 0.03, -0.01, 0.02}, time.Hour)

	rep, err := Evaluate(res, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Sharpe.IsZero() || rep.Sortino.IsZero() {
		t.Fatalf("ratios not computed: sharpe=%v sortino=%v", rep.Sharpe, rep.Sortino)
	}
	// Losses exist, so downside deviation is smaller than full deviation and
	// Sortino exceeds Sharpe for a positive mean.
	if rep.Sortino.LessThan(rep.Sharpe) {
		t.Fatalf("sortino %v < sharpe %v", rep.Sortino, rep.Sharpe)
	}
}

func TestEvaluateTradeCounts(t *testing.T) {
	trades := []broker.Trade{
		{Status: broker.StatusFilled, RealizedPnL: 10},
		{Status: broker.StatusFilled, RealizedPnL: -4},
		{Status: broker.StatusFilled, RealizedPnL: 6},
		{Status: broker.StatusRejected},
		{Status: broker.StatusCancelled},
	}
	res := result([]float64{0, 0.01}, time.Hour)

	rep, err := Evaluate(res, 100, trades)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Fills != 3 || rep.Rejected != 1 || rep.Wins != 2 {
		t.Fatalf("counts = fills %d rejected %d wins %d", rep.Fills, rep.Rejected, rep.Wins)
	}
	approx(t, "win rate", rep.WinRate.InexactFloat64(), 2.0/3.0)
}

func TestEvaluateNeedsBars(t *testing.T) {
	if _, err := Evaluate(nil, 100, nil); err == nil {
		t.Fatal("accepted nil result")
	}
	if _, err := Evaluate(&strategy.Result{Returns: []float64{0}}, 100, nil); err == nil {
		t.Fatal("accepted single-bar result")
	}
}

func TestReportString(t *testing.T) {
	res := result([]float64{0, 0.1}, time.Hour)
	rep, err := Evaluate(res, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := rep.String()
	for _, want := range []string{"Final Balance", "CAGR", "Sharpe", "Max Drawdown"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
