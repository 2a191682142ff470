package lob

import "errors"

var (
	ErrInvalidSide  = errors.New("side must be BUY or SELL")
	ErrInvalidPrice = errors.New("price must be a positive decimal")
	ErrInvalidSize  = errors.New("size must be a positive decimal")
	ErrInvalidParam = errors.New("the param is invalid")
	ErrTimeout      = errors.New("timeout")
	ErrShutdown     = errors.New("order book is shutting down")
	ErrSequenceGap  = errors.New("book log sequence gap detected")
)
