package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrUnknownPolicy  = errors.New("unknown scoring policy")
	ErrNoVideoID      = errors.New("video id could not be resolved")
	ErrNoFetcher      = errors.New("no comment fetcher configured")
	ErrPanic          = errors.New("panic during score computation")
	ErrFetcherTimeout = errors.New("fetch timed out")
)
