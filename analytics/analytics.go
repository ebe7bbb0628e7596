// Package analytics turns a replay's return curve and trade ledger into a
// performance report: cumulative return, CAGR, Sharpe/Sortino, drawdown and
// value-at-risk.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"margin-backtester/broker"
	"margin-backtester/strategy"
)

const (
	hoursPerYear = 365 * 24

	// varSigma is the z-multiple used for the parametric value-at-risk.
	varSigma = 2.0
)

// Report is the summary of one backtest run. Monetary and ratio values are
// decimals for stable presentation and export.
type Report struct {
	Start time.Time
	End   time.Time
	Years float64

	InitialBalance   decimal.Decimal
	FinalBalance     decimal.Decimal
	CumulativeReturn decimal.Decimal
	CAGR             decimal.Decimal
	Sharpe           decimal.Decimal
	Sortino          decimal.Decimal
	MaxDrawdown      decimal.Decimal
	ValueAtRisk      decimal.Decimal

	Fills    int
	Rejected int
	Wins     int
	WinRate  decimal.Decimal
}

// Evaluate computes the report for a finished run. Ratios are annualized
// from the bar frequency implied by the result's timestamps.
func Evaluate(res *strategy.Result, initialCapital float64, trades []broker.Trade) (*Report, error) {
	if res == nil || len(res.Returns) < 2 {
		return nil, errors.New("analytics: result needs at least two bars")
	}

	cum := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range res.Returns {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		}
		if dd := cum/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}

	start, end := res.Times[0], res.Times[len(res.Times)-1]
	years := end.Sub(start).Hours() / hoursPerYear

	cagr := 0.0
	if years > 0 && cum > 0 {
		cagr = math.Pow(cum, 1/years) - 1
	}

	mean, std, downStd := moments(res.Returns)
	barsPerYear := float64(len(res.Returns)-1) / math.Max(years, 1e-9)
	ann := math.Sqrt(barsPerYear)

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * ann
	}
	sortino := 0.0
	if downStd > 0 {
		sortino = mean / downStd * ann
	}
	valueAtRisk := mean - varSigma*std

	rep := &Report{
		Start:            start,
		End:              end,
		Years:            years,
		InitialBalance:   decimal.NewFromFloat(initialCapital),
		FinalBalance:     decimal.NewFromFloat(initialCapital * cum),
		CumulativeReturn: decimal.NewFromFloat(cum - 1),
		CAGR:             decimal.NewFromFloat(cagr),
		Sharpe:           decimal.NewFromFloat(sharpe),
		Sortino:          decimal.NewFromFloat(sortino),
		MaxDrawdown:      decimal.NewFromFloat(maxDD),
		ValueAtRisk:      decimal.NewFromFloat(valueAtRisk),
	}

	for _, t := range trades {
		switch t.Status {
		case broker.StatusFilled:
			rep.Fills++
			if t.RealizedPnL > 0 {
				rep.Wins++
			}
		case broker.StatusRejected:
			rep.Rejected++
		}
	}
	if rep.Fills > 0 {
		rep.WinRate = decimal.NewFromFloat(float64(rep.Wins) / float64(rep.Fills))
	}
	return rep, nil
}

// moments returns the mean, standard deviation and downside deviation of the
// return series.
func moments(returns []float64) (mean, std, downStd float64) {
	n := float64(len(returns))
	for _, r := range returns {
		mean += r
	}
	mean /= n

	var v, dv float64
	for _, r := range returns {
		d := r - mean
		v += d * d
		if r < 0 {
			dv += r * r
		}
	}
	return mean, math.Sqrt(v / n), math.Sqrt(dv / n)
}

// String renders the report as an aligned summary table.
func (r *Report) String() string {
	var sb strings.Builder
	line := func(k string, v interface{}) {
		fmt.Fprintf(&sb, "%-18s %v\n", k, v)
	}
	line("Start", r.Start.Format(time.RFC3339))
	line("End", r.End.Format(time.RFC3339))
	line("Years", fmt.Sprintf("%.2f", r.Years))
	line("Initial Balance", r.InitialBalance.StringFixed(2))
	line("Final Balance", r.FinalBalance.StringFixed(2))
	line("Cumulative Return", r.CumulativeReturn.StringFixed(6))
	line("CAGR", r.CAGR.StringFixed(6))
	line("Sharpe", r.Sharpe.StringFixed(4))
	line("Sortino", r.Sortino.StringFixed(4))
	line("Max Drawdown", r.MaxDrawdown.StringFixed(6))
	line("Value At Risk", r.ValueAtRisk.StringFixed(6))
	line("Fills", r.Fills)
	line("Rejected", r.Rejected)
	line("Win Rate", r.WinRate.StringFixed(4))
	return sb.String()
}
