package checkout

import "errors"

var (
	ErrNotSignedIn     = errors.New("sign in to place an order")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidShipping = errors.New("invalid shipping address")
	ErrOrderFailed     = errors.New("order could not be placed")
)
