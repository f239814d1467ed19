package portfolio

import (
	"errors"
	"fmt"
)

// User-input errors. All of these leave account state untouched and are
// reported to the caller with enough detail to display; none are retried.
var (
	ErrInvalidSide     = errors.New(`side must be "buy" or "sell"`)
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// NoPriceError means the cache holds no entry for the requested ticker, so
// there is nothing to execute against.
type NoPriceError struct {
	Ticker string
}

func (e *NoPriceError) Error() string {
	return fmt.Sprintf("no price available for %s", e.Ticker)
}

// InsufficientCashError carries the required-vs-available detail for a buy
// that exceeds the cash balance.
type InsufficientCashError struct {
	Need float64
	Have float64
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash: need $%.2f, have $%.2f", e.Need, e.Have)
}

// InsufficientSharesError carries the requested-vs-held detail for a sell of
// more shares than the position holds.
type InsufficientSharesError struct {
	Ticker string
	Want   float64
	Held   float64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares: want to sell %g %s, hold %g", e.Want, e.Ticker, e.Held)
}
