package broker

import (
	"fmt"
	"math"
)

// Transaction is an executed quantity at a price, applied to a position.
type Transaction struct {
	Symbol string
	Qty    float64
	Price  float64
}

// Position is the per-symbol ledger: net signed quantity, volume-weighted
// average entry price, and the isolated-margin state derived from them.
//
// A flat position (qty == 0) always has zero price, margin and liquidation
// price. Positions are created lazily by the Broker and driven back to the
// flat state by a full close or a liquidation, never destroyed.
type Position struct {
	symbol      string
	qty         float64
	price       float64
	liquidPrice float64
	margin      float64
	leverage    int
	maintRate   float64
	maintAmount float64
}

// NewPosition returns a flat position with leverage 1.
func NewPosition(symbol string, maintRate, maintAmount float64) *Position {
	return &Position{
		symbol:      symbol,
		leverage:    1,
		maintRate:   maintRate,
		maintAmount: maintAmount,
	}
}

func (p *Position) Symbol() string       { return p.symbol }
func (p *Position) Qty() float64         { return p.qty }
func (p *Position) Price() float64       { return p.price }
func (p *Position) LiquidPrice() float64 { return p.liquidPrice }
func (p *Position) Margin() float64      { return p.margin }
func (p *Position) Leverage() int        { return p.leverage }

// Flat reports whether the position holds no quantity.
func (p *Position) Flat() bool { return p.qty == 0 }

// UnrealizedPnL marks the open quantity against the given price.
func (p *Position) UnrealizedPnL(mark float64) float64 {
	return (mark - p.price) * p.qty
}

// Update applies an executed transaction and returns the gross P&L it
// realizes. Adding to a position realizes nothing and re-averages the entry
// price; closing against the position realizes the close formula; a flip
// resets the entry price to the flip fill's price.
//
// With isLiquidation set the position is settled through Liquidate and the
// forfeited margin is reported as the gross P&L.
func (p *Position) Update(txn Transaction, isLiquidation bool) (float64, error) {
	if txn.Symbol != p.symbol {
		return 0, fmt.Errorf("%w: position %s, transaction %s", ErrSymbolMismatch, p.symbol, txn.Symbol)
	}
	if txn.Qty == 0 {
		return 0, fmt.Errorf("%w: symbol %s", ErrZeroQuantity, p.symbol)
	}
	if isLiquidation {
		return p.Liquidate(), nil
	}

	pnl := 0.0
	newQty := p.qty + txn.Qty

	if newQty == 0 {
		// Full close.
		pnl = p.closePnL(txn)
		p.price, p.liquidPrice = 0, 0
	} else {
		txnSide := math.Copysign(1, txn.Qty)
		posSide := math.Copysign(1, p.qty)
		if p.qty == 0 {
			txnSide = posSide
		}

		if posSide != txnSide {
			// Partial close, or a flip past zero.
			pnl = p.closePnL(txn)
			if math.Abs(txn.Qty) > math.Abs(p.qty) {
				// The residual quantity on the new side originates
				// entirely from this fill.
				p.price = txn.Price
			}
		} else {
			p.price = (p.price*p.qty + txn.Price*txn.Qty) / newQty
		}
	}

	p.qty = newQty
	p.reprice()
	return pnl, nil
}

// closePnL is the gross P&L realized against the current entry price: a
// selling transaction closes a long, a buying one closes a short. On a flip
// only the held quantity closes; the residual opens at the fill price and
// realizes nothing.
func (p *Position) closePnL(txn Transaction) float64 {
	var d float64
	if txn.Qty < 0 {
		d = txn.Price - p.price
	} else {
		d = p.price - txn.Price
	}
	closed := math.Min(math.Abs(txn.Qty), math.Abs(p.qty))
	return d * closed
}

// reprice recomputes margin and liquidation price (isolated-margin model):
//
//	initial margin     = price * |qty| / leverage
//	maintenance margin = price * |qty| * maintRate - maintAmount
//	margin             = initial + maintenance
//	long  LP = price - (initial - maintenance)
//	short LP = price + (initial - maintenance)
//
// A flat position is forced to zero margin and liquidation price.
func (p *Position) reprice() {
	if p.qty == 0 {
		p.margin, p.liquidPrice = 0, 0
		return
	}
	p.margin, p.liquidPrice = p.marginAt(p.leverage)
}

func (p *Position) marginAt(leverage int) (margin, liquidPrice float64) {
	notional := p.price * math.Abs(p.qty)
	im := notional / float64(leverage)
	mm := notional*p.maintRate - p.maintAmount
	margin = im + mm
	if p.qty > 0 {
		liquidPrice = p.price - (im - mm)
	} else {
		liquidPrice = p.price + (im - mm)
	}
	return margin, liquidPrice
}

// liquidPriceAt previews the liquidation price under a different leverage
// without mutating the position.
func (p *Position) liquidPriceAt(leverage int) float64 {
	if p.qty == 0 {
		return 0
	}
	_, lp := p.marginAt(leverage)
	return lp
}

// Liquidate force-closes the position, returning the forfeited margin as a
// (negative) cash delta. Must be called at most once per liquidation event.
func (p *Position) Liquidate() float64 {
	loss := -p.margin
	p.qty = 0
	p.price = 0
	p.liquidPrice = 0
	p.margin = 0
	return loss
}

// SetLeverage updates the leverage and recomputes margin and liquidation
// price. The Broker layer is responsible for refusing changes that would
// immediately breach the liquidation price.
func (p *Position) SetLeverage(leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLeverage, leverage)
	}
	p.leverage = leverage
	p.reprice()
	return nil
}
