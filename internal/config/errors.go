package config

import "errors"

// ErrLoadConfig wraps file and env provider failures; ErrInvalidConfig wraps
// every Validate failure.
var (
	ErrLoadConfig    = errors.New("config: load failed")
	ErrInvalidConfig = errors.New("config: invalid value")
)
