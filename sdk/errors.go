package sdk

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors returned by the executor. These can be used with errors.Is()
// to check for specific failure conditions.
//
// Example:
//
//	_, err := exec.Execute(ctx, "wallet.getBalance", op, nil)
//	if errors.Is(err, sdk.ErrCircuitOpen) {
//	    // Backend is down, fail fast at a higher level
//	} else if errors.Is(err, sdk.ErrTimeout) {
//	    // Attempts kept timing out
//	}
var (
	// ErrInvalidConfig is returned when the executor configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTimeout is returned when an attempt exceeds its per-attempt timeout
	ErrTimeout = errors.New("attempt timeout")

	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrPressureCritical is returned when admission control rejects a call
	// because the process is under critical memory pressure
	ErrPressureCritical = errors.New("critical resource pressure")

	// ErrMaxRetriesExceeded is the defensive fallback raised if the retry
	// loop exits without a terminal outcome. It should be unreachable.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")

	// ErrNilOperation is returned when Execute is given a nil operation
	ErrNilOperation = errors.New("operation must not be nil")
)

// Classification categorizes a failure for retry and circuit breaker
// decisions. Every error observed by the executor maps to exactly one
// classification.
//
// Example:
//
//	switch sdk.Classify(err) {
//	case sdk.ClassificationRetryable:
//	    // transient, safe to retry
//	case sdk.ClassificationCircuitTrip:
//	    // dependency is down, fail fast
//	case sdk.ClassificationFatal:
//	    // permanent, surface immediately
//	}
type Classification int

const (
	// ClassificationFatal marks permanent failures that are surfaced
	// immediately and never retried. This is the default classification.
	ClassificationFatal Classification = iota
	// ClassificationRetryable marks transient failures that are retried
	// up to the configured attempt budget.
	ClassificationRetryable
	// ClassificationCircuitTrip marks failures indicating the downstream
	// dependency itself is unhealthy. They are surfaced immediately and
	// count toward opening the circuit breaker.
	ClassificationCircuitTrip
)

// String returns the string representation of the classification
func (c Classification) String() string {
	switch c {
	case ClassificationFatal:
		return "fatal"
	case ClassificationRetryable:
		return "retryable"
	case ClassificationCircuitTrip:
		return "circuit_trip"
	default:
		return "unknown"
	}
}

// Error is an enhanced error carrying a classification and optional
// metadata. It implements the error interface and supports wrapping via
// errors.Is() and errors.As().
//
// Operations may return *Error to classify their own failures explicitly
// instead of relying on message-pattern matching:
//
//	return nil, sdk.NewError(sdk.ClassificationRetryable, "upstream unavailable", cause)
type Error struct {
	// Classification categorizes the error for retry decisions
	Classification Classification `json:"classification"`
	// Code is an optional machine-readable error code
	Code string `json:"code,omitempty"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// Timestamp is when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// wrapped is the underlying error, if any
	wrapped error
}

// NewError creates a new classified error
func NewError(class Classification, message string, wrapped error) *Error {
	return &Error{
		Classification: class,
		Message:        message,
		Timestamp:      time.Now(),
		wrapped:        wrapped,
	}
}

// NewErrorWithCode creates a new classified error with a code
func NewErrorWithCode(class Classification, code, message string, wrapped error) *Error {
	err := NewError(class, message, wrapped)
	err.Code = code
	return err
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Classification, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s error: %s", e.Classification, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// IsRetryable returns true if the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Classification == ClassificationRetryable
}

// CallError is the terminal error surfaced by Execute. It wraps the original
// cause with the classification and the call context so callers can decide
// whether to surface the failure or retry at a higher level.
//
// Example:
//
//	var callErr *sdk.CallError
//	if errors.As(err, &callErr) {
//	    log.Printf("call %s (%s) failed after %d attempts: %v",
//	        callErr.Method, callErr.RequestID, callErr.Attempts, callErr.Unwrap())
//	}
type CallError struct {
	// Classification of the terminal failure
	Classification Classification `json:"classification"`
	// Method is the logical operation name passed to Execute
	Method string `json:"method"`
	// RequestID uniquely identifies the call for tracing
	RequestID string `json:"request_id"`
	// Attempts is the number of attempts actually made
	Attempts int `json:"attempts"`
	// Duration is the total elapsed time of the call
	Duration time.Duration `json:"duration"`
	// Tags are the call tags supplied via options
	Tags []string `json:"tags,omitempty"`
	// Metadata is the annotation map supplied via options
	Metadata map[string]any `json:"metadata,omitempty"`
	// cause is the original error, never nil
	cause error
}

// Error implements the error interface
func (e *CallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s failed", e.Classification, e.Method)
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	fmt.Fprintf(&b, ": %v (request %s)", e.cause, e.RequestID)
	return b.String()
}

// Unwrap returns the original cause
func (e *CallError) Unwrap() error {
	return e.cause
}

// Is maps circuit-trip call errors onto ErrCircuitOpen so callers can use
// errors.Is without digging for the cause.
func (e *CallError) Is(target error) bool {
	if target == ErrCircuitOpen {
		return e.Classification == ClassificationCircuitTrip
	}
	return false
}

// IsRetryable reports whether the underlying failure was transient. A true
// value means the attempt budget was exhausted, not that the call may be
// blindly repeated.
func (e *CallError) IsRetryable() bool {
	return e.Classification == ClassificationRetryable
}
