package broker

import "errors"

// Sentinel error kinds. Callers discriminate with errors.Is.
var (
	// ErrInvalidOrderParams marks a malformed symbol or quantity at order
	// creation.
	ErrInvalidOrderParams = errors.New("invalid order parameters")

	// ErrEmptyOrderParams marks a required price field missing for the
	// order kind, or an execution price that cannot be resolved at fill
	// time.
	ErrEmptyOrderParams = errors.New("empty order parameters")

	// ErrLiquidation marks a leverage change that would immediately put
	// the current market price past the new liquidation price.
	ErrLiquidation = errors.New("leverage change breaches liquidation price")

	// ErrInvalidLeverage marks a non-positive leverage value.
	ErrInvalidLeverage = errors.New("leverage must be positive")

	// Consistency errors. These signal driver bugs, not market conditions.
	ErrSymbolMismatch = errors.New("position updated with different symbol")
	ErrZeroQuantity   = errors.New("transaction quantity cannot be zero")
)
