package broker

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderKind is the closed set of supported order kinds. A Stop order without
// a limit price executes at its stop price once triggered (stop-market); with
// a limit price it becomes a resting limit order after triggering
// (stop-limit).
type OrderKind string

const (
	Market OrderKind = "MARKET"
	Limit  OrderKind = "LIMIT"
	Stop   OrderKind = "STOP"
)

// Side of a trade, derived from the sign of the quantity.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// OrderStatus is the order lifecycle state. Cancelled, Rejected and Filled
// are terminal.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "OPEN"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusFilled    OrderStatus = "FILLED"
)

// Order is one trading intent and its lifecycle. Absent prices are NaN, so a
// market order carries no nominal price and a stop-market order carries only
// its stop price.
//
// The Broker owns all transitions after placement; strategies may set Label
// for their own bookkeeping.
type Order struct {
	ID        string
	CreatedAt time.Time
	Symbol    string
	Qty       float64
	Price     float64
	Kind      OrderKind
	StopPrice float64
	Triggered bool
	Status    OrderStatus
	Reason    string
	Label     string

	// Fill bookkeeping, read-only once Status is terminal.
	ExecutedAt  time.Time
	ExecPrice   float64
	Commission  float64
	GrossPnL    float64
	RealizedPnL float64
}

// NewOrder validates and builds an open order stamped with the given bar
// time. price and stopPrice are NaN when absent.
func NewOrder(now time.Time, symbol string, qty, price float64, kind OrderKind, stopPrice float64) (*Order, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidOrderParams)
	}
	if qty == 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return nil, fmt.Errorf("%w: qty %v", ErrInvalidOrderParams, qty)
	}
	switch kind {
	case Market:
		// Fills at the bar open; any nominal price is ignored.
		price = math.NaN()
	case Limit:
		if math.IsNaN(price) {
			return nil, fmt.Errorf("%w: limit order without price", ErrEmptyOrderParams)
		}
	case Stop:
		if math.IsNaN(stopPrice) {
			return nil, fmt.Errorf("%w: stop order without stop price", ErrEmptyOrderParams)
		}
	default:
		return nil, fmt.Errorf("%w: unknown order kind %q", ErrInvalidOrderParams, kind)
	}
	if kind != Stop {
		stopPrice = math.NaN()
	}
	return &Order{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Symbol:    symbol,
		Qty:       qty,
		Price:     price,
		Kind:      kind,
		StopPrice: stopPrice,
		Status:    StatusOpen,
		ExecPrice: math.NaN(),
	}, nil
}

// Side reports LONG for positive quantities and SHORT for negative ones.
func (o *Order) Side() Side {
	if o.Qty > 0 {
		return Long
	}
	return Short
}

// HasPrice reports whether the order carries a nominal price.
func (o *Order) HasPrice() bool { return !math.IsNaN(o.Price) }

// HasStop reports whether the order carries a stop trigger price.
func (o *Order) HasStop() bool { return !math.IsNaN(o.StopPrice) }

// Open reports whether the order can still transition.
func (o *Order) Open() bool { return o.Status == StatusOpen }

// Trigger arms a stop order. Repeated calls are harmless.
func (o *Order) Trigger() { o.Triggered = true }

// Cancel moves an open order to CANCELLED. Terminal orders are left alone.
func (o *Order) Cancel(reason string) {
	if !o.Open() {
		return
	}
	o.Status = StatusCancelled
	o.Reason = reason
}

// Reject moves an open order to REJECTED. Terminal orders are left alone.
func (o *Order) Reject(reason string) {
	if !o.Open() {
		return
	}
	o.Status = StatusRejected
	o.Reason = reason
}

// Fill settles the order: realized P&L is the gross P&L net of commission.
func (o *Order) Fill(commission, grossPnL, execPrice float64, now time.Time, reason string) {
	if !o.Open() {
		return
	}
	o.Status = StatusFilled
	o.Commission = commission
	o.GrossPnL = grossPnL
	o.RealizedPnL = grossPnL - commission
	o.ExecPrice = execPrice
	o.ExecutedAt = now
	o.Reason = reason
}

// snapshot freezes the order into a flat ledger record.
func (o *Order) snapshot() Trade {
	return Trade{
		ID:          o.ID,
		CreatedAt:   o.CreatedAt,
		ExecutedAt:  o.ExecutedAt,
		Symbol:      o.Symbol,
		Side:        o.Side(),
		Qty:         o.Qty,
		Price:       o.Price,
		Kind:        o.Kind,
		Status:      o.Status,
		StopPrice:   o.StopPrice,
		Triggered:   o.Triggered,
		Reason:      o.Reason,
		ExecPrice:   o.ExecPrice,
		Commission:  o.Commission,
		GrossPnL:    o.GrossPnL,
		RealizedPnL: o.RealizedPnL,
		Label:       o.Label,
	}
}

// Trade is one flat ledger record, one per fill or rejection, suitable for
// tabular export.
type Trade struct {
	ID          string
	CreatedAt   time.Time
	ExecutedAt  time.Time
	Symbol      string
	Side        Side
	Qty         float64
	Price       float64
	Kind        OrderKind
	Status      OrderStatus
	StopPrice   float64
	Triggered   bool
	Reason      string
	ExecPrice   float64
	Commission  float64
	GrossPnL    float64
	RealizedPnL float64
	Label       string
}
