package swap

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized sender")
	ErrUnknownOrder      = errors.New("unknown order")
	ErrDuplicateOrder    = errors.New("duplicate order id")
	ErrAssetMismatch     = errors.New("asset mismatch")
	ErrInsufficientValue = errors.New("insufficient attached value")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrFillTooSmall      = errors.New("fill too small")
	ErrZeroAmount        = errors.New("zero amount")
	ErrUnknownOp         = errors.New("unknown op")
)
