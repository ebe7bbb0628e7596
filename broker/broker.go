// Package broker implements the order-matching and position-accounting core
// of the backtester: it replays order requests against historical OHLC bars
// and maintains cash, positions, margin state and the trade ledger.
package broker

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"margin-backtester/marketdata"
)

// Config holds the simulation parameters.
type Config struct {
	InitialCapital  float64
	CommissionRate  float64
	MaintMarginRate float64
	MaintAmount     float64

	// LiquidationCommission charges commission on forced liquidation fills
	// when set. Ordinary fills always pay commission.
	LiquidationCommission bool

	Slippage SlippageModel
}

// DefaultConfig mirrors the conventional perp-futures setup.
var DefaultConfig = Config{
	InitialCapital:  1_000_000,
	CommissionRate:  0.0002,
	MaintMarginRate: 0.005,
}

// Broker is the owning aggregate of all mutable simulation state: cash,
// per-symbol positions, the open-order buckets and the trade ledger. All
// mutation goes through its methods; Advance is the single per-bar state
// transition and must be called once per bar in increasing index order.
//
// Symbols are processed in first-touch order and orders within a symbol in
// placement order. The tie-break within one bar is therefore a stable FIFO.
type Broker struct {
	cfg    Config
	feed   marketdata.Feed
	logger *zap.Logger

	cash      float64
	bar       int
	symbols   []string
	positions map[string]*Position
	open      map[string]*bucket
	trades    []Trade
}

// bucket keeps a symbol's open orders in insertion order with id lookup.
type bucket struct {
	orders []*Order
	byID   map[string]*Order
}

func newBucket() *bucket {
	return &bucket{byID: make(map[string]*Order)}
}

func (bk *bucket) add(o *Order) {
	bk.orders = append(bk.orders, o)
	bk.byID[o.ID] = o
}

func (bk *bucket) remove(id string) {
	if _, ok := bk.byID[id]; !ok {
		return
	}
	delete(bk.byID, id)
	for i, o := range bk.orders {
		if o.ID == id {
			bk.orders = append(bk.orders[:i], bk.orders[i+1:]...)
			break
		}
	}
}

// New builds a Broker over a bar feed. A nil logger disables logging and a
// nil slippage model falls back to Identity.
func New(feed marketdata.Feed, cfg Config, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Slippage == nil {
		cfg.Slippage = Identity{}
	}
	return &Broker{
		cfg:       cfg,
		feed:      feed,
		logger:    logger,
		cash:      cfg.InitialCapital,
		positions: make(map[string]*Position),
		open:      make(map[string]*bucket),
	}
}

// Cash returns the current account balance.
func (b *Broker) Cash() float64 { return b.cash }

// BarIndex returns the index of the next bar Advance will process.
func (b *Broker) BarIndex() int { return b.bar }

// Trades returns a copy of the trade ledger in chronological fill order.
func (b *Broker) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Position returns the symbol's position, creating a flat one on first
// touch.
func (b *Broker) Position(symbol string) *Position {
	b.touch(symbol)
	return b.positions[symbol]
}

// Positions returns every touched position keyed by symbol.
func (b *Broker) Positions() map[string]*Position {
	out := make(map[string]*Position, len(b.positions))
	for sym, pos := range b.positions {
		out[sym] = pos
	}
	return out
}

// OpenOrders returns the symbol's still-open orders in placement order.
func (b *Broker) OpenOrders(symbol string) []*Order {
	bk, ok := b.open[symbol]
	if !ok {
		return nil
	}
	out := make([]*Order, len(bk.orders))
	copy(out, bk.orders)
	return out
}

func (b *Broker) touch(symbol string) {
	if _, ok := b.positions[symbol]; ok {
		return
	}
	b.positions[symbol] = NewPosition(symbol, b.cfg.MaintMarginRate, b.cfg.MaintAmount)
	b.open[symbol] = newBucket()
	b.symbols = append(b.symbols, symbol)
}

// Order validates and places an order. Stop orders that would trigger
// immediately against the current bar's open are rejected, recorded in the
// ledger with a reason, and never enter the open-order set.
func (b *Broker) Order(symbol string, qty, price float64, kind OrderKind, stopPrice float64) (*Order, error) {
	o, err := NewOrder(b.now(), symbol, qty, price, kind, stopPrice)
	if err != nil {
		return nil, err
	}
	b.touch(symbol)

	if kind == Stop {
		bar, ok := b.currentBar(symbol)
		if !ok {
			return nil, fmt.Errorf("%w: no bar data for %s", ErrInvalidOrderParams, symbol)
		}
		if (o.Qty > 0 && o.StopPrice < bar.Open) || (o.Qty < 0 && o.StopPrice > bar.Open) {
			o.Reject("would immediately trigger")
			b.trades = append(b.trades, o.snapshot())
			b.logger.Debug("stop order rejected",
				zap.String("symbol", symbol),
				zap.Float64("stop_price", o.StopPrice),
				zap.Float64("open", bar.Open))
			return o, nil
		}
	}

	b.open[symbol].add(o)
	return o, nil
}

// MarketOrder places an order that fills at the next processed bar's open.
func (b *Broker) MarketOrder(symbol string, qty float64) (*Order, error) {
	return b.Order(symbol, qty, math.NaN(), Market, math.NaN())
}

// LimitOrder places a resting order at the given price.
func (b *Broker) LimitOrder(symbol string, qty, price float64) (*Order, error) {
	return b.Order(symbol, qty, price, Limit, math.NaN())
}

// StopOrder places a stop-market order.
func (b *Broker) StopOrder(symbol string, qty, stopPrice float64) (*Order, error) {
	return b.Order(symbol, qty, math.NaN(), Stop, stopPrice)
}

// StopLimitOrder places a stop order that rests as a limit order at price
// once triggered.
func (b *Broker) StopLimitOrder(symbol string, qty, price, stopPrice float64) (*Order, error) {
	return b.Order(symbol, qty, price, Stop, stopPrice)
}

// CancelOrder cancels one open order. Unknown symbols or ids are a no-op.
func (b *Broker) CancelOrder(symbol, id, reason string) {
	bk, ok := b.open[symbol]
	if !ok {
		return
	}
	o, ok := bk.byID[id]
	if !ok {
		return
	}
	o.Cancel(reason)
	bk.remove(id)
}

// CancelAllOrders cancels every open order for the symbol.
func (b *Broker) CancelAllOrders(symbol, reason string) {
	bk, ok := b.open[symbol]
	if !ok {
		return
	}
	for _, o := range bk.orders {
		o.Cancel(reason)
	}
	bk.orders = bk.orders[:0]
	bk.byID = make(map[string]*Order)
}

// SetLeverage changes a position's leverage. The change is validated before
// it is applied: if the current bar's open is already past the prospective
// liquidation price the call fails with ErrLiquidation and nothing mutates.
func (b *Broker) SetLeverage(symbol string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLeverage, leverage)
	}
	pos := b.Position(symbol)
	if !pos.Flat() {
		bar, ok := b.currentBar(symbol)
		if !ok {
			return fmt.Errorf("%w: no bar data for %s", ErrInvalidOrderParams, symbol)
		}
		lp := pos.liquidPriceAt(leverage)
		if (pos.Qty() > 0 && bar.Open <= lp) || (pos.Qty() < 0 && bar.Open >= lp) {
			return fmt.Errorf("%w: %s open %.8g vs liquidation price %.8g",
				ErrLiquidation, symbol, bar.Open, lp)
		}
	}
	return pos.SetLeverage(leverage)
}

// ClosePosition submits a market order offsetting the symbol's full
// position. It fills on the next Advance. Flat positions are a no-op.
func (b *Broker) ClosePosition(symbol string) (*Order, error) {
	pos := b.Position(symbol)
	if pos.Flat() {
		return nil, nil
	}
	return b.MarketOrder(symbol, -pos.Qty())
}

// Advance performs the per-bar state transition: the liquidation sweep
// against the previous bar, then order matching against the current bar,
// then the bar index moves forward. Liquidation completes for every symbol
// before any matching starts.
func (b *Broker) Advance() error {
	if b.bar > 0 {
		if err := b.sweepLiquidations(); err != nil {
			return err
		}
	}
	if err := b.matchOrders(); err != nil {
		return err
	}
	b.bar++
	return nil
}

// sweepLiquidations tests every held position against the previous bar's
// range. The breach is recognized one bar after it occurred, reflecting the
// interval during which the price crossed the liquidation level.
func (b *Broker) sweepLiquidations() error {
	for _, symbol := range b.symbols {
		pos := b.positions[symbol]
		if pos.Flat() {
			continue
		}
		prev, ok := b.feed.Bar(symbol, b.bar-1)
		if !ok {
			continue
		}
		lp := pos.LiquidPrice()
		breached := (pos.Qty() > 0 && prev.Low <= lp) || (pos.Qty() < 0 && prev.High >= lp)
		if !breached {
			continue
		}

		o, err := NewOrder(b.now(), symbol, -pos.Qty(), math.NaN(), Market, math.NaN())
		if err != nil {
			return err
		}
		b.logger.Warn("position liquidated",
			zap.String("symbol", symbol),
			zap.Float64("qty", pos.Qty()),
			zap.Float64("liquidation_price", lp))
		if err := b.execute(o, lp, true, "liquidation"); err != nil {
			return err
		}
	}
	return nil
}

// matchOrders evaluates every open order against the current bar, symbols in
// first-touch order and orders in FIFO placement order.
func (b *Broker) matchOrders() error {
	for _, symbol := range b.symbols {
		bar, ok := b.currentBar(symbol)
		if !ok {
			continue
		}
		bk := b.open[symbol]
		pending := make([]*Order, len(bk.orders))
		copy(pending, bk.orders)

		for _, o := range pending {
			if !o.Open() {
				continue
			}
			switch o.Kind {
			case Market:
				if err := b.execute(o, bar.Open, false, ""); err != nil {
					return err
				}
			case Limit:
				if limitCrossed(o, bar) {
					if err := b.execute(o, o.Price, false, ""); err != nil {
						return err
					}
				}
			case Stop:
				if !o.Triggered {
					if (o.Qty > 0 && bar.High >= o.StopPrice) || (o.Qty < 0 && bar.Low <= o.StopPrice) {
						o.Trigger()
					}
				}
				if !o.Triggered {
					continue
				}
				if !o.HasPrice() {
					// Stop-market: executes at the trigger level.
					if err := b.execute(o, o.StopPrice, false, ""); err != nil {
						return err
					}
				} else if limitCrossed(o, bar) {
					if err := b.execute(o, o.Price, false, ""); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// limitCrossed reports whether the bar's range crossed the resting price
// favorably: buys need the low under the price, sells the high above it.
func limitCrossed(o *Order, bar marketdata.Bar) bool {
	if o.Qty > 0 {
		return bar.Low < o.Price
	}
	return bar.High > o.Price
}

// execute is the shared fill path for ordinary and liquidation fills:
// slippage, commission, position update, order fill, ledger append, cash
// update, open-order removal.
func (b *Broker) execute(o *Order, ref float64, isLiquidation bool, reason string) error {
	if math.IsNaN(ref) {
		return fmt.Errorf("%w: no execution price for order %s", ErrEmptyOrderParams, o.ID)
	}
	bar, _ := b.currentBar(o.Symbol)
	px := b.cfg.Slippage.Price(o, bar, ref)

	commission := math.Abs(o.Qty) * px * b.cfg.CommissionRate
	if isLiquidation && !b.cfg.LiquidationCommission {
		commission = 0
	}

	pos := b.Position(o.Symbol)
	gross, err := pos.Update(Transaction{Symbol: o.Symbol, Qty: o.Qty, Price: px}, isLiquidation)
	if err != nil {
		return err
	}

	o.Fill(commission, gross, px, b.now(), reason)
	b.trades = append(b.trades, o.snapshot())
	b.cash += o.RealizedPnL
	if bk, ok := b.open[o.Symbol]; ok {
		bk.remove(o.ID)
	}

	b.logger.Debug("order filled",
		zap.String("symbol", o.Symbol),
		zap.String("kind", string(o.Kind)),
		zap.Float64("qty", o.Qty),
		zap.Float64("price", px),
		zap.Float64("realized_pnl", o.RealizedPnL),
		zap.Bool("liquidation", isLiquidation))
	return nil
}

func (b *Broker) currentBar(symbol string) (marketdata.Bar, bool) {
	return b.feed.Bar(symbol, b.bar)
}

// now is the current bar's timestamp, clamped to the feed's last bar once
// the replay has run past the end.
func (b *Broker) now() time.Time {
	i := b.bar
	if n := b.feed.Len(); i >= n {
		i = n - 1
	}
	return b.feed.Time(i)
}
