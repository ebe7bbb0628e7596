package broker

import "margin-backtester/marketdata"

// SlippageModel adjusts an order's resolved reference price into the final
// execution price. Implementations must be pure functions of their inputs.
type SlippageModel interface {
	Price(o *Order, bar marketdata.Bar, ref float64) float64
}

// Identity is the default model: the order executes at its reference price.
type Identity struct{}

func (Identity) Price(_ *Order, _ marketdata.Bar, ref float64) float64 { return ref }

// RateSlippage worsens the execution price by a fixed rate in the direction
// of the trade: buys pay more, sells receive less.
type RateSlippage struct {
	Rate float64
}

func (s RateSlippage) Price(o *Order, _ marketdata.Bar, ref float64) float64 {
	if o.Qty > 0 {
		return ref * (1 + s.Rate)
	}
	return ref * (1 - s.Rate)
}
