// Package marketdata provides historical OHLC bar series for backtest replay.
package marketdata

import (
	"errors"
	"fmt"
	"time"
)

// Bar is one interval's price summary.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Feed exposes aligned bar sequences for one or more symbols. Bars are
// addressed by index; timestamps are shared across symbols and strictly
// increasing.
type Feed interface {
	Len() int
	Time(i int) time.Time
	Bar(symbol string, i int) (Bar, bool)
	Symbols() []string
}

// Series is an in-memory Feed backed by pre-loaded slices.
type Series struct {
	times   []time.Time
	bars    map[string][]Bar
	symbols []string
}

// NewSeries builds a single-symbol series. The bar slice must have one entry
// per timestamp.
func NewSeries(symbol string, times []time.Time, bars []Bar) (*Series, error) {
	s := &Series{times: times, bars: make(map[string][]Bar)}
	if err := s.Add(symbol, bars); err != nil {
		return nil, err
	}
	if err := validateTimes(times); err != nil {
		return nil, err
	}
	return s, nil
}

// Add attaches another symbol's bars, aligned to the existing timestamps.
func (s *Series) Add(symbol string, bars []Bar) error {
	if symbol == "" {
		return errors.New("marketdata: empty symbol")
	}
	if len(bars) != len(s.times) {
		return fmt.Errorf("marketdata: %s has %d bars for %d timestamps", symbol, len(bars), len(s.times))
	}
	if _, dup := s.bars[symbol]; dup {
		return fmt.Errorf("marketdata: duplicate symbol %s", symbol)
	}
	for i, b := range bars {
		if b.High < b.Low || b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
			return fmt.Errorf("marketdata: %s bar %d has inconsistent OHLC %+v", symbol, i, b)
		}
	}
	s.bars[symbol] = bars
	s.symbols = append(s.symbols, symbol)
	return nil
}

func (s *Series) Len() int { return len(s.times) }

func (s *Series) Time(i int) time.Time { return s.times[i] }

func (s *Series) Bar(symbol string, i int) (Bar, bool) {
	bars, ok := s.bars[symbol]
	if !ok || i < 0 || i >= len(bars) {
		return Bar{}, false
	}
	return bars[i], true
}

func (s *Series) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Closes returns the close column for a symbol, or nil if unknown.
func (s *Series) Closes(symbol string) []float64 {
	return s.column(symbol, func(b Bar) float64 { return b.Close })
}

// Opens returns the open column for a symbol, or nil if unknown.
func (s *Series) Opens(symbol string) []float64 {
	return s.column(symbol, func(b Bar) float64 { return b.Open })
}

func (s *Series) column(symbol string, f func(Bar) float64) []float64 {
	bars, ok := s.bars[symbol]
	if !ok {
		return nil
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = f(b)
	}
	return out
}

func validateTimes(times []time.Time) error {
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return fmt.Errorf("marketdata: timestamps not strictly increasing at index %d", i)
		}
	}
	return nil
}
