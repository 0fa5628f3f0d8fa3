package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrEmptyQuery = errors.New("search query is empty")
	ErrNoURLs     = errors.New("at least one video url is required")
	ErrNotStarted = errors.New("service is not started")
)
