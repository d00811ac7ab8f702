package core

import (
	"errors"
	"fmt"
)

// LookupStatus is the outcome kind of an element lookup.
type LookupStatus int

const (
	LookupNotFound  LookupStatus = iota // searched cleanly, nothing matched
	LookupFound                         // at least one match
	LookupMalformed                     // expression, bounds or document could not be parsed
	LookupFailed                        // the device or filesystem returned an error
)

// String returns the string representation of LookupStatus
func (s LookupStatus) String() string {
	switch s {
	case LookupNotFound:
		return "not_found"
	case LookupFound:
		return "found"
	case LookupMalformed:
		return "malformed"
	case LookupFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LookupResult says why a lookup (or a poll of lookups) ended the way it did.
// Polling code keeps retrying on NotFound and Malformed and reports the last
// result once the budget is spent.
type LookupResult struct {
	Status   LookupStatus
	Attempts int
	Reason   string
	Err      error
}

// Found reports whether the lookup matched.
func (r LookupResult) Found() bool {
	return r.Status == LookupFound
}

// Error converts a non-found result into an error; nil when found.
func (r LookupResult) Error() error {
	switch r.Status {
	case LookupFound:
		return nil
	case LookupMalformed:
		return ErrInvalidSelector.WithMessage(r.message("malformed lookup")).WithCause(r.Err)
	case LookupFailed:
		if r.Err != nil && errors.As(r.Err, new(*ExecutionError)) {
			return r.Err
		}
		return ErrCommandFailed.WithMessage(r.message("lookup failed")).WithCause(r.Err)
	default:
		msg := r.message("not found")
		if r.Attempts > 0 {
			msg = fmt.Sprintf("%s after %d attempts", msg, r.Attempts)
		}
		return ErrWaitTimeout.WithMessage(msg)
	}
}

func (r LookupResult) message(fallback string) string {
	if r.Reason != "" {
		return r.Reason
	}
	return fallback
}

// Found builds a found result.
func Found(reason string) LookupResult {
	return LookupResult{Status: LookupFound, Reason: reason}
}

// NotFound builds a not-found result.
func NotFound(reason string) LookupResult {
	return LookupResult{Status: LookupNotFound, Reason: reason}
}

// Malformed builds a malformed result.
func Malformed(reason string, err error) LookupResult {
	return LookupResult{Status: LookupMalformed, Reason: reason, Err: err}
}

// Failed builds a failed result.
func Failed(reason string, err error) LookupResult {
	return LookupResult{Status: LookupFailed, Reason: reason, Err: err}
}
