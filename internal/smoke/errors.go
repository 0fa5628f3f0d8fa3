package smoke

import "errors"

var (
	ErrNoURLs        = errors.New("no video URLs to submit")
	ErrUnhealthy     = errors.New("service health check failed")
	ErrStatus        = errors.New("unexpected response status")
	ErrWaitTimeout   = errors.New("timed out waiting for yaps to be stored")
	ErrInconsistent  = errors.New("rankings are inconsistent")
	ErrEmptyRankings = errors.New("no rankings to verify")
)
