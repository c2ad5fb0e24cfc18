package edata

import "errors"

var (
	// ErrExhausted indicates the pool reached its outstanding-descriptor limit.
	ErrExhausted = errors.New("edata: descriptor pool exhausted")
)
