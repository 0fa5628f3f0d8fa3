package ranking

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrInvalidLimit    = errors.New("limit must be positive")
	ErrProfileNotFound = errors.New("profile has no ranking")
)
