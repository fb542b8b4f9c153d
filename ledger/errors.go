package ledger

import "errors"

var (
	ErrAccountNotFound              = errors.New("account not found")
	ErrAccountExists                = errors.New("account already exists")
	ErrInsufficientBuyingPower      = errors.New("insufficient buying power")
	ErrPositionNotFound             = errors.New("position not found")
	ErrInsufficientPositionQuantity = errors.New("insufficient position quantity")
	ErrInvalidOrderInput            = errors.New("invalid order input")
)

// IsRejection reports whether err is a business rejection of an order, as
// opposed to a storage or transport failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInsufficientBuyingPower) ||
		errors.Is(err, ErrPositionNotFound) ||
		errors.Is(err, ErrInsufficientPositionQuantity) ||
		errors.Is(err, ErrInvalidOrderInput)
}
