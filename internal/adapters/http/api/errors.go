package api

import (
	"errors"
	"net/http"

	"github.com/okian/yap/internal/adapters/mq/queue"
	"github.com/okian/yap/internal/domain/apperr"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBodyTooLarge = errors.New("request body too large")
	ErrMissingField = errors.New("missing required field")
	ErrBadLimit     = errors.New("limit must be a positive integer")
	ErrBadOffset    = errors.New("offset must be a non-negative integer")
)

// statusFor maps an error to an HTTP status and a stable code.
// Rate limiting and queue backpressure are checked before the generic
// transient kind so they surface as 429.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, apperr.Code(err)
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, apperr.Code(err)
	case errors.Is(err, apperr.ErrTransient):
		return http.StatusServiceUnavailable, apperr.Code(err)
	default:
		return http.StatusInternalServerError, apperr.Code(err)
	}
}
