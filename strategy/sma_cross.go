package strategy

import (
	"fmt"
	"math"

	"margin-backtester/broker"
	"margin-backtester/indicators"
	"margin-backtester/marketdata"
)

// SMACross trades simple-moving-average crossovers on one symbol: it buys
// the full balance on a golden cross (short SMA over long SMA) and exits on
// the death cross. SMAs are shifted one bar so only completed bars feed each
// decision.
type SMACross struct {
	Symbol   string
	Short    int
	Long     int
	Leverage int

	opens    []float64
	smaShort []float64
	smaLong  []float64
}

// NewSMACross precomputes the indicator columns from the feed's series.
func NewSMACross(series *marketdata.Series, symbol string, short, long int) (*SMACross, error) {
	closes := series.Closes(symbol)
	if closes == nil {
		return nil, fmt.Errorf("strategy: symbol %s not in series", symbol)
	}
	if short <= 0 || long <= short {
		return nil, fmt.Errorf("strategy: bad SMA periods %d/%d", short, long)
	}
	return &SMACross{
		Symbol:   symbol,
		Short:    short,
		Long:     long,
		Leverage: 1,
		opens:    series.Opens(symbol),
		smaShort: indicators.Shift(indicators.SMA(closes, short), 1),
		smaLong:  indicators.Shift(indicators.SMA(closes, long), 1),
	}, nil
}

func (s *SMACross) Init(b *broker.Broker) error {
	return b.SetLeverage(s.Symbol, s.Leverage)
}

func (s *SMACross) OnBar(b *broker.Broker, i int) error {
	if i >= len(s.opens) || math.IsNaN(s.smaShort[i]) || math.IsNaN(s.smaLong[i]) {
		return nil
	}

	price := s.opens[i]
	pos := b.Position(s.Symbol)

	if indicators.Crossover(s.smaShort, s.smaLong, i) && pos.Flat() {
		lot := math.Floor(b.Cash() / price)
		if lot <= 0 {
			return nil
		}
		_, err := b.LimitOrder(s.Symbol, lot, price)
		return err
	}

	if indicators.Crossunder(s.smaShort, s.smaLong, i) && pos.Qty() > 0 {
		_, err := b.MarketOrder(s.Symbol, -pos.Qty())
		return err
	}
	return nil
}
