package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an upstream document or warehouse entity
	// has been deleted or is not accessible.
	ErrNotFound = errors.New("not found")

	// ErrExtractionMalformed is returned when the model output cannot be
	// parsed into schema facts, or references implausible entity identifiers.
	// Malformed output is never turned into a guessed fact.
	ErrExtractionMalformed = errors.New("extraction output malformed")

	// ErrExtractionUnavailable is returned after extraction retries are
	// exhausted. The document is requeued for the next poll cycle.
	ErrExtractionUnavailable = errors.New("extraction unavailable")

	// ErrApplyConflict is returned when the live warehouse comment changed
	// since it was last read (optimistic concurrency failure).
	ErrApplyConflict = errors.New("apply conflict: target value changed")

	// ErrApplyRejected is returned for malformed entity identifiers or
	// comment text that fails the injection gate. Not retried.
	ErrApplyRejected = errors.New("apply rejected")
)

// RateLimitedError indicates an upstream service throttled the request.
// It wraps ErrRateLimited and carries the retry-after hint when the
// service provided one.
type RateLimitedError struct {
	System     string
	RetryAfter time.Duration
}

// ErrRateLimited is the sentinel matched by errors.Is for rate limiting.
var ErrRateLimited = errors.New("rate limited")

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.System, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.System)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// IsRetryable implements the retry.RetryableError interface.
func (e *RateLimitedError) IsRetryable() bool {
	return true
}

// RetryAfterHint exposes the upstream retry-after value to the retry
// package, which prefers it over computed backoff when longer.
func (e *RateLimitedError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// IsRetryable reports whether the pipeline should requeue the work item
// that produced err. Rate limiting and extraction unavailability are
// retried with backoff; malformed output and rejected applies need a
// human and are surfaced instead.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, ErrExtractionUnavailable):
		return true
	case errors.Is(err, ErrApplyConflict):
		return true
	default:
		return false
	}
}
