// Package apperr defines the error kinds shared by the scoring engine.
//
// Every failure that leaves a domain package carries one of four kinds so
// callers can decide whether to retry, report, or surface a 4xx/5xx:
//
//	ErrValidation  - bad input, never retried
//	ErrNotFound    - target absent or private, never retried
//	ErrTransient   - timeout, rate limit, network; retryable
//	ErrComputation - unexpected internal fault
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is(err, apperr.ErrTransient) to test.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrTransient   = errors.New("transient error")
	ErrComputation = errors.New("computation error")
)

// ErrRateLimited marks a transient failure caused by upstream throttling.
// It is a cause, not a kind: wrap it with ErrTransient.
var ErrRateLimited = errors.New("rate limited")

// Error carries the failing operation, its kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New builds an Error of the given kind with a formatted message as cause.
func New(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. An err that already carries a kind keeps it.
func Wrap(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return &Error{Op: op, Kind: KindOf(err), Err: err}
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Validation is shorthand for New(op, ErrValidation, ...).
func Validation(op, format string, args ...any) error {
	return New(op, ErrValidation, format, args...)
}

// NotFound is shorthand for New(op, ErrNotFound, ...).
func NotFound(op, format string, args ...any) error {
	return New(op, ErrNotFound, format, args...)
}

// KindOf returns the kind carried by err, or nil when it has none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrTransient, ErrComputation} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports whether a caller may retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Code returns a stable short string for the error kind, used in API
// responses and metric labels.
func Code(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation_error"
	case ErrNotFound:
		return "not_found"
	case ErrTransient:
		return "transient_error"
	case ErrComputation:
		return "computation_error"
	default:
		return "internal_error"
	}
}
