package trading

import "errors"

var (
	// ErrInsufficientFunds rejects a buy whose total exceeds the cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientShares rejects a sell of more shares than are held.
	ErrInsufficientShares = errors.New("insufficient shares")
)

// ValidationError reports an invalid trade input. It is recovered locally
// and surfaced to the user; no state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
