package cart

import "errors"

var ErrInvalidItem = errors.New("invalid cart item")
var ErrEngineClosed = errors.New("cart engine is closed")
