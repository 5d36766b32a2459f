package cache

import (
	"context"
	"time"
)

// Store is the contract shared by every cache tier. Values are opaque byte
// slices; serialization is the caller's concern.
type Store interface {
	// Get retrieves a value. Missing or expired keys return ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL. A zero TTL uses the tier's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key returns ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// DeleteMultiple removes a batch of keys, ignoring missing ones.
	DeleteMultiple(ctx context.Context, keys []string) error

	// Ping checks tier health.
	Ping(ctx context.Context) error

	// Close releases the tier's resources.
	Close() error
}

// Common errors
var (
	ErrKeyNotFound = NewCacheError("key not found", true)
	ErrCacheClosed = NewCacheError("cache is closed", false)
)

// CacheError represents a cache-specific error
type CacheError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewCacheError creates a new cache error
func NewCacheError(message string, retryable bool) *CacheError {
	return &CacheError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface
func (e *CacheError) Error() string {
	if e.Underlying != nil {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CacheError) Unwrap() error {
	return e.Underlying
}

// WithError returns a copy carrying an underlying error. The receiver is
// not mutated, so sentinel errors stay pristine.
func (e *CacheError) WithError(err error) *CacheError {
	clone := *e
	clone.Underlying = err
	return &clone
}

// IsRetryable returns whether the error is retryable
func (e *CacheError) IsRetryable() bool {
	return e.Retryable
}

// Is matches cache errors by message so wrapped sentinels compare equal
// under errors.Is.
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	return ok && t.Message == e.Message
}
