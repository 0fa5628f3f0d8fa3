package graph

import "errors"

// Sentinel errors.
var (
	ErrNoPath        = errors.New("graph file path is empty")
	ErrBadRecord     = errors.New("malformed graph record")
	ErrUnknownSource = errors.New("unknown graph source")
)
