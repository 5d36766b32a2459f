package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/perchlabs/talon/cache"
	"github.com/perchlabs/talon/internal/telemetry"
	"github.com/perchlabs/talon/sdk"
)

const (
	serviceName    = "talond"
	serviceVersion = "1.0.0"
)

var startTime = time.Now()

// HealthCheck reports the health of one named dependency.
type HealthCheck func() error

// Handler holds all dependencies for API handlers
type Handler struct {
	executor   *sdk.Executor
	cache      *cache.TieredCache
	defaultTTL time.Duration
	checks     map[string]HealthCheck
}

// NewHandler creates a new handler instance. defaultTTL applies to cache
// writes without an explicit TTL.
func NewHandler(executor *sdk.Executor, tiered *cache.TieredCache, defaultTTL time.Duration) *Handler {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Handler{
		executor:   executor,
		cache:      tiered,
		defaultTTL: defaultTTL,
		checks:     make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers an extra dependency health check, such as the
// invalidation bus.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx := c.UserContext()

	checks := make(map[string]string)
	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = "unhealthy: " + err.Error()
	} else {
		checks["cache"] = "healthy"
	}
	for name, check := range h.checks {
		if err := check(); err != nil {
			checks[name] = "unhealthy: " + err.Error()
		} else {
			checks[name] = "healthy"
		}
	}

	status := "healthy"
	for _, check := range checks {
		if check != "healthy" {
			status = "unhealthy"
			break
		}
	}

	response := &HealthResponse{
		Status:  status,
		Service: serviceName,
		Version: serviceVersion,
		Uptime:  time.Since(startTime).String(),
		Checks:  checks,
	}

	statusCode := fiber.StatusOK
	if status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(c *fiber.Ctx) error {
	stats := h.executor.Stats()
	cacheStats := h.cache.Stats()

	return c.JSON(&StatsResponse{
		Calls:          stats.Calls,
		CircuitBreaker: stats.CircuitBreaker,
		Cache:          &cacheStats,
	})
}

// Diagnostics handles GET /v1/diagnostics
func (h *Handler) Diagnostics(c *fiber.Ctx) error {
	return c.JSON(h.executor.Diagnose())
}

// ResetBreaker handles POST /v1/admin/reset-breaker
func (h *Handler) ResetBreaker(c *fiber.Ctx) error {
	h.executor.ResetCircuitBreaker()
	telemetry.WithContext(c.UserContext()).Info("Circuit breaker reset by operator")
	return c.JSON(fiber.Map{"circuit_breaker": h.executor.CircuitBreaker().Snapshot()})
}

// ClearMetrics handles POST /v1/admin/clear-metrics
func (h *Handler) ClearMetrics(c *fiber.Ctx) error {
	h.executor.ClearMetrics()
	return c.SendStatus(fiber.StatusNoContent)
}

// GetCache handles GET /v1/cache/:key
func (h *Handler) GetCache(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key := c.Params("key")

	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Key parameter is required", ErrCodeInvalidRequest),
		)
	}

	value, err := h.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrKeyNotFound) {
			telemetry.RecordCacheMiss()
			return c.Status(fiber.StatusNotFound).JSON(
				NewErrorResponse("Cache entry not found", ErrCodeNotFound),
			)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewErrorResponse("Failed to retrieve cache entry", ErrCodeInternalError),
		)
	}

	telemetry.RecordTierHit("tiered")
	return c.JSON(&CacheResponse{Key: key, Value: value})
}

// SetCache handles POST /v1/cache/:key
func (h *Handler) SetCache(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key := c.Params("key")

	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Key parameter is required", ErrCodeInvalidRequest),
		)
	}

	var req CacheRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Invalid request body", ErrCodeInvalidRequest),
		)
	}
	if len(req.Value) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Value is required", ErrCodeInvalidRequest),
		)
	}

	cfg, err := req.entryConfig(h.defaultTTL)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(err.Error(), ErrCodeInvalidRequest),
		)
	}

	if err := h.cache.SetWithStrategy(ctx, key, req.Value, cfg); err != nil {
		telemetry.WithContext(ctx).WithError(err).Error("Cache write failed")
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewErrorResponse("Failed to store cache entry", ErrCodeInternalError),
		)
	}

	return c.Status(fiber.StatusCreated).JSON(&CacheResponse{Key: key, Value: req.Value})
}

// DeleteCache handles DELETE /v1/cache/:key
func (h *Handler) DeleteCache(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key := c.Params("key")

	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Key parameter is required", ErrCodeInvalidRequest),
		)
	}

	if err := h.cache.Delete(ctx, key); err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewErrorResponse("Failed to delete cache entry", ErrCodeInternalError),
		)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Invalidate handles POST /v1/invalidate/:dependency
func (h *Handler) Invalidate(c *fiber.Ctx) error {
	ctx := c.UserContext()
	dependency := c.Params("dependency")

	if dependency == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Dependency parameter is required", ErrCodeInvalidRequest),
		)
	}

	keys, err := h.cache.InvalidateDependency(ctx, dependency)
	if err != nil {
		// Local tiers are already clean; only the broadcast failed.
		telemetry.WithContext(ctx).WithError(err).Error("Invalidation broadcast failed")
	}
	telemetry.RecordInvalidation("local")

	if keys == nil {
		keys = []string{}
	}
	return c.JSON(&InvalidateResponse{Dependency: dependency, Keys: keys})
}
