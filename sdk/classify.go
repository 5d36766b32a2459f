package sdk

import (
	"context"
	"errors"
	"strings"
)

// Message patterns consulted by Classify, in check order. Retryable patterns
// are checked before circuit-trip patterns: an ambiguous message matching
// both categories (e.g. "service unavailable" vs "service down") takes the
// earlier-checked category.
var (
	retryablePatterns = []string{
		"timeout",
		"econnrefused",
		"econnreset",
		"temporary",
		"unavailable",
		"service overloaded",
		"network",
		"connection",
		"rate limit",
	}

	circuitTripPatterns = []string{
		"service down",
		"server error",
		"internal error",
	}

	// Fatal is the default; these patterns exist only for documentation and
	// tests. Matching one of them never changes the outcome.
	fatalPatterns = []string{
		"invalid",
		"unauthorized",
		"forbidden",
		"not found",
		"bad request",
		"malformed",
	}
)

// Classify maps a failure to a Classification. It is pure and stateless.
//
// Typed errors are consulted first: a wrapped *Error or *CallError carries
// its own classification, and context deadline expiry is always retryable.
// Otherwise the normalized, lower-cased message is matched against the
// retryable patterns, then the circuit-trip patterns; the first match wins
// and anything else is fatal.
//
// Example:
//
//	sdk.Classify(errors.New("connection reset by peer")) // ClassificationRetryable
//	sdk.Classify(errors.New("service down"))             // ClassificationCircuitTrip
//	sdk.Classify(errors.New("invalid address"))          // ClassificationFatal
func Classify(err error) Classification {
	if err == nil {
		return ClassificationFatal
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Classification
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Classification
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return ClassificationRetryable
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrPressureCritical) {
		return ClassificationCircuitTrip
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return ClassificationRetryable
		}
	}
	for _, pattern := range circuitTripPatterns {
		if strings.Contains(msg, pattern) {
			return ClassificationCircuitTrip
		}
	}

	return ClassificationFatal
}
