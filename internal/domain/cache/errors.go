package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrEmptyKey  = errors.New("cache key is empty")
	ErrNoCompute = errors.New("compute function is nil")
	ErrPanic     = errors.New("panic during computation")
)
