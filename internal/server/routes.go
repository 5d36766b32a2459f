package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/perchlabs/talon/internal/telemetry"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler, cfg *Config) {
	// API v1 group
	v1 := app.Group("/v1")

	v1.Use(RateLimiter(cfg.RateLimit))

	if cfg.APIKey != "" {
		v1.Use(ValidateAPIKey(cfg.APIKey))
	}

	// Cache endpoints
	cacheGroup := v1.Group("/cache")
	cacheGroup.Get("/:key", handler.GetCache)
	cacheGroup.Post("/:key", handler.SetCache)
	cacheGroup.Put("/:key", handler.SetCache)
	cacheGroup.Delete("/:key", handler.DeleteCache)

	v1.Post("/invalidate/:dependency", handler.Invalidate)

	// Observability endpoints
	v1.Get("/stats", handler.Stats)
	v1.Get("/diagnostics", handler.Diagnostics)

	// Admin endpoints
	admin := v1.Group("/admin")
	admin.Post("/reset-breaker", handler.ResetBreaker)
	admin.Post("/clear-metrics", handler.ClearMetrics)

	// Health and Prometheus endpoints (no auth required)
	app.Get("/health", handler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.PrometheusHandler()))

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": serviceName,
			"version": serviceVersion,
			"status":  "running",
			"endpoints": fiber.Map{
				"cache": fiber.Map{
					"get":        "GET /v1/cache/:key",
					"create":     "POST /v1/cache/:key",
					"update":     "PUT /v1/cache/:key",
					"delete":     "DELETE /v1/cache/:key",
					"invalidate": "POST /v1/invalidate/:dependency",
				},
				"stats":       "GET /v1/stats",
				"diagnostics": "GET /v1/diagnostics",
				"health":      "GET /health",
				"metrics":     "GET /metrics",
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Endpoint not found", ErrCodeNotFound),
		)
	})
}
