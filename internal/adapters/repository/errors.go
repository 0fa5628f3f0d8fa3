package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("yap not found")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrInvalidYap    = errors.New("invalid yap")
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrClosed        = errors.New("store closed")
)
