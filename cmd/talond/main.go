package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/perchlabs/talon/cache"
	"github.com/perchlabs/talon/internal/bus"
	"github.com/perchlabs/talon/internal/cleanup"
	"github.com/perchlabs/talon/internal/server"
	"github.com/perchlabs/talon/internal/snapshot"
	"github.com/perchlabs/talon/internal/telemetry"
	"github.com/perchlabs/talon/sdk"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := telemetry.Init(telemetry.NewConfigFromEnv()); err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	logger := telemetry.L()

	logger.Info("talond starting...")

	// Assemble the cache tiers. The in-process tier is always on; the
	// shared and persistent tiers attach when enabled.
	tieredCfg := cache.DefaultTieredConfig()
	tiered := cache.NewTieredCache(tieredCfg)

	if envEnabled("CACHE_SHARED_ENABLED", true) {
		redisCfg, err := cache.NewRedisConfigFromEnv()
		if err != nil {
			logger.WithError(err).Fatal("Invalid Redis configuration")
		}
		redisCache, err := cache.NewRedisCache(redisCfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		tiered.WithShared(redisCache)
		logger.Info("✅ Connected to Redis (shared tier)")
	}

	if envEnabled("CACHE_PERSISTENT_ENABLED", true) {
		pgCfg, err := cache.NewPostgresConfigFromEnv()
		if err != nil {
			logger.WithError(err).Fatal("Invalid PostgreSQL configuration")
		}
		pgTier, err := cache.NewPostgresTier(pgCfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
		}
		tiered.WithPersistent(pgTier, cache.DefaultWriterConfig())
		logger.Info("✅ Connected to PostgreSQL (persistent tier)")

		// Janitor for expired persistent rows.
		janitorCtx, cancelJanitor := context.WithCancel(context.Background())
		defer cancelJanitor()
		go cleanup.NewService(pgTier, cleanup.LoadConfig()).Start(janitorCtx)
	}

	// Executor with telemetry wired in. The tiered cache doubles as the
	// resource reporter for diagnostic reports.
	execCfg := sdk.DefaultExecutorConfig().
		WithObserver(telemetry.NewExecutorObserver()).
		WithResourceReporter(tiered)

	executor, err := sdk.NewExecutor(execCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create executor")
	}

	handler := server.NewHandler(executor, tiered, tieredCfg.DefaultTTL)

	// Invalidation bus keeps cache namespaces coherent across processes.
	var invalidationBus *bus.Bus
	if envEnabled("BUS_ENABLED", false) {
		invalidationBus, err = bus.NewBus(bus.NewConfigFromEnv())
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer invalidationBus.Close()

		if err := invalidationBus.SubscribeInvalidations(tiered); err != nil {
			logger.WithError(err).Fatal("Failed to subscribe to invalidations")
		}
		tiered.WithPublisher(invalidationBus)
		handler.AddHealthCheck("bus", invalidationBus.Health)
		logger.Info("✅ Connected to NATS (invalidation bus)")
	}

	// Periodic diagnostic snapshots to object storage.
	if envEnabled("SNAPSHOT_ENABLED", false) {
		exporter, err := snapshot.NewExporter(snapshot.NewExporterConfigFromEnv())
		if err != nil {
			logger.WithError(err).Fatal("Failed to create snapshot exporter")
		}
		runner := snapshot.NewRunner(snapshot.RunnerConfig{}, exporter, executor, tiered)
		runner.Start()
		defer runner.Close()
		logger.Info("✅ Snapshot export enabled")
	}

	app := fiber.New(fiber.Config{
		AppName:               "talond",
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})

	server.SetupMiddleware(app)
	server.SetupRoutes(app, handler, cfg)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("🛑 Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server forced to shutdown")
		}

		if err := tiered.Close(); err != nil {
			logger.WithError(err).Error("Failed to close cache tiers")
		}

		_ = telemetry.Shutdown(shutdownCtx)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.WithField("addr", addr).Info("🚀 talond listening")

	if err := app.Listen(addr); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
}

func envEnabled(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
