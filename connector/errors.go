package connector

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass is the provider failure taxonomy the orchestrator retries on.
type ErrorClass string

const (
	// ClassUnauthorized is fatal for the run; the connection needs an
	// operator or credential fix and is marked degraded.
	ClassUnauthorized ErrorClass = "unauthorized"
	// ClassRateLimited carries a retry-after hint and never counts toward
	// the permanent-failure threshold.
	ClassRateLimited ErrorClass = "rate_limited"
	// ClassTransient is eligible for bounded retry with backoff.
	ClassTransient ErrorClass = "transient"
	// ClassPermanent means the native resource is confirmed gone.
	ClassPermanent ErrorClass = "permanent"
)

// Error wraps a provider-side failure with its class and, for rate
// limits, the provider's retry-after hint.
type Error struct {
	Class      ErrorClass
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unauthorized wraps err as a fatal credential failure.
func Unauthorized(op string, err error) *Error {
	return &Error{Class: ClassUnauthorized, Op: op, Err: err}
}

// RateLimited wraps err with the provider's retry-after hint (zero when
// the provider gave none).
func RateLimited(op string, retryAfter time.Duration, err error) *Error {
	return &Error{Class: ClassRateLimited, Op: op, RetryAfter: retryAfter, Err: err}
}

// Transient wraps err as retryable.
func Transient(op string, err error) *Error {
	return &Error{Class: ClassTransient, Op: op, Err: err}
}

// Permanent wraps err as a confirmed-gone failure.
func Permanent(op string, err error) *Error {
	return &Error{Class: ClassPermanent, Op: op, Err: err}
}

// ClassOf extracts the error class. Unclassified errors, including
// context deadline and cancellation, are treated as transient so the run
// is retried from the same watermark.
func ClassOf(err error) ErrorClass {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}

// RetryAfterHint returns the provider's retry-after for rate limits,
// zero otherwise.
func RetryAfterHint(err error) time.Duration {
	var ce *Error
	if errors.As(err, &ce) && ce.Class == ClassRateLimited {
		return ce.RetryAfter
	}
	return 0
}
