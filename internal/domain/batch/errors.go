package batch

import "errors"

// Sentinel kinds for batch errors.
var (
	ErrNoURLs             = errors.New("batch needs at least one url")
	ErrTooManyURLs        = errors.New("batch exceeds the url limit")
	ErrInvalidConcurrency = errors.New("max concurrency out of range")
	ErrNoFunc             = errors.New("batch function is nil")
	ErrPanic              = errors.New("panic in batch item")
)
