package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/perchlabs/talon/cache"
	"github.com/perchlabs/talon/sdk"
)

// CacheRequest represents the request body for cache writes
type CacheRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`

	// TTL in seconds; zero takes the server default.
	TTL int `json:"ttl,omitempty" validate:"omitempty,min=1"`

	// Strategy selects the lifetime strategy: fixed (default), sliding,
	// adaptive or dependency.
	Strategy string `json:"strategy,omitempty"`

	// Dependencies names the data sources a dependency-managed entry
	// derives from.
	Dependencies []string `json:"dependencies,omitempty"`
}

// CacheResponse represents the response for cache reads
type CacheResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// InvalidateResponse reports the keys removed by a dependency invalidation
type InvalidateResponse struct {
	Dependency string   `json:"dependency"`
	Keys       []string `json:"keys"`
}

// StatsResponse aggregates executor and cache statistics
type StatsResponse struct {
	Calls          sdk.Stats                  `json:"calls"`
	CircuitBreaker sdk.CircuitBreakerSnapshot `json:"circuit_breaker"`
	Cache          *cache.TieredStats         `json:"cache,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes
const (
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(err string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: err,
		Code:  code,
	}
}

// entryConfig translates a cache request into a lifetime strategy
// configuration.
func (r *CacheRequest) entryConfig(defaultTTL time.Duration) (cache.EntryConfig, error) {
	cfg := cache.EntryConfig{
		BaseTTL:      defaultTTL,
		Dependencies: r.Dependencies,
	}
	if r.TTL > 0 {
		cfg.BaseTTL = time.Duration(r.TTL) * time.Second
	}

	switch r.Strategy {
	case "", "fixed":
		cfg.Strategy = cache.StrategyFixed
	case "sliding":
		cfg.Strategy = cache.StrategySliding
	case "adaptive":
		cfg.Strategy = cache.StrategyAdaptive
	case "dependency":
		cfg.Strategy = cache.StrategyDependency
	default:
		return cfg, fmt.Errorf("unknown strategy %q", r.Strategy)
	}

	if cfg.Strategy == cache.StrategyDependency && len(cfg.Dependencies) == 0 {
		return cfg, fmt.Errorf("dependency strategy requires dependencies")
	}
	return cfg, nil
}
