package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrNoSource      = errors.New("registry has no source")
	ErrInvalidSeed   = errors.New("invalid seed")
	ErrInvalidEdge   = errors.New("invalid follow edge")
	ErrUnknownPolicy = errors.New("unknown rank policy")
	ErrUnknownDecay  = errors.New("unknown decay")
)
