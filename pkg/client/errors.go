package client

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrInvalidRetryConfig is returned when a retry policy is constructed
	// with invalid settings.
	ErrInvalidRetryConfig = errors.New("invalid retry config")
)

// ErrorClass represents a classification of call errors.
type ErrorClass string

const (
	// ErrorClassTransient is any failure worth retrying.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassRateLimit is a failure carrying a rate-limit hint.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassPermanent is a failure marked with Permanent.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassCancelled is a context cancellation or deadline.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the executor returns it without retrying.
// Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryError is returned once a call failed on every allowed attempt.
// It matches ErrRetryExhausted and the last call error with errors.Is.
type RetryError struct {
	Label    string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RetryError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Label, ErrRetryExhausted, e.Attempts, e.Err)
}

// Unwrap exposes both ErrRetryExhausted and the last call error.
func (e *RetryError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}

// Classify determines the class of a call error.
func Classify(err error) ErrorClass {
	var permanent *PermanentError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassCancelled
	case errors.As(err, &permanent):
		return ErrorClassPermanent
	}

	if _, ok := RateLimitHint(err); ok {
		return ErrorClassRateLimit
	}
	return ErrorClassTransient
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassTransient, ErrorClassRateLimit:
		return true
	default:
		return false
	}
}
