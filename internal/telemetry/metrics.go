package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var (
	metricsOnce sync.Once

	// Call metrics
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callAttempts  *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec
	breakerState  prometheus.Gauge
	breakerEvents *prometheus.CounterVec

	// Cache metrics
	tierHitsTotal      *prometheus.CounterVec
	cacheMissesTotal   prometheus.Counter
	cacheEntries       prometheus.Gauge
	cacheSizeBytes     prometheus.Gauge
	invalidationsTotal *prometheus.CounterVec

	// Write-behind metrics
	writeBehindDepth   prometheus.Gauge
	writeBehindDropped prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	serviceUp                 prometheus.Gauge
	databaseConnectionsActive prometheus.Gauge
	redisConnectionsActive    prometheus.Gauge
)

// InitMetrics initializes all metrics
func InitMetrics(cfg *Config) error {
	var err error
	metricsOnce.Do(func() {
		initPrometheusMetrics()

		if cfg.EnableMetrics {
			err = initOTELMetrics(cfg)
		}

		serviceUp.Set(1)
	})
	return err
}

func initPrometheusMetrics() {
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talon_calls_total",
		Help: "Total number of executor calls",
	}, []string{"method", "outcome"})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "talon_call_duration_seconds",
		Help:    "Total call duration including retries and backoff",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	callAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "talon_call_attempts",
		Help:    "Number of attempts made per call",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
	}, []string{"method"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talon_retries_total",
		Help: "Total number of retry attempts",
	}, []string{"method"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "talon_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	breakerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talon_circuit_breaker_transitions_total",
		Help: "Total number of circuit breaker state transitions",
	}, []string{"from", "to"})

	tierHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talon_cache_tier_hits_total",
		Help: "Total number of cache hits per tier",
	}, []string{"tier"})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talon_cache_misses_total",
		Help: "Total number of cache misses across all tiers",
	})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "talon_cache_entries",
		Help: "Current number of entries in the in-process cache",
	})

	cacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "talon_cache_size_bytes",
		Help: "Current size of the in-process cache in bytes",
	})

	invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talon_cache_invalidations_total",
		Help: "Total number of dependency invalidations",
	}, []string{"source"})

	writeBehindDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "talon_write_behind_queue_depth",
		Help: "Current depth of the write-behind queue",
	})

	writeBehindDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talon_write_behind_dropped_total",
		Help: "Total number of write-behind tasks dropped on a full queue",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "service_up",
		Help: "Whether the service is up (1) or down (0)",
	})

	databaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "database_connections_active",
		Help: "Number of active database connections",
	})

	redisConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_connections_active",
		Help: "Number of active Redis connections",
	})
}

func initOTELMetrics(cfg *Config) error {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(cfg.MetricsInterval)*time.Second),
			),
		),
	)

	otel.SetMeterProvider(provider)
	return nil
}

// Metric recording functions

// RecordCall records a completed executor call.
func RecordCall(method, outcome string, duration time.Duration, attempts int) {
	if callsTotal == nil {
		return
	}
	callsTotal.WithLabelValues(method, outcome).Inc()
	callDuration.WithLabelValues(method).Observe(duration.Seconds())
	callAttempts.WithLabelValues(method).Observe(float64(attempts))
}

// RecordRetry records a retry attempt.
func RecordRetry(method string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(method).Inc()
}

// UpdateBreakerState updates the circuit breaker state gauge.
func UpdateBreakerState(state float64) {
	if breakerState == nil {
		return
	}
	breakerState.Set(state)
}

// RecordBreakerTransition records a circuit breaker state transition.
func RecordBreakerTransition(from, to string) {
	if breakerEvents == nil {
		return
	}
	breakerEvents.WithLabelValues(from, to).Inc()
}

// RecordTierHit records a cache hit on the named tier.
func RecordTierHit(tier string) {
	if tierHitsTotal == nil {
		return
	}
	tierHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a miss across all tiers.
func RecordCacheMiss() {
	if cacheMissesTotal == nil {
		return
	}
	cacheMissesTotal.Inc()
}

// RecordInvalidation records a dependency invalidation. source is "local"
// for invalidations initiated by this process and "bus" for ones received
// over the invalidation bus.
func RecordInvalidation(source string) {
	if invalidationsTotal == nil {
		return
	}
	invalidationsTotal.WithLabelValues(source).Inc()
}

// RecordWriteBehindDrop records a write-behind task dropped on a full queue.
func RecordWriteBehindDrop() {
	if writeBehindDropped == nil {
		return
	}
	writeBehindDropped.Inc()
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// UpdateCacheSize updates the in-process cache gauges.
func UpdateCacheSize(entries int, bytes int64) {
	if cacheEntries == nil {
		return
	}
	cacheEntries.Set(float64(entries))
	cacheSizeBytes.Set(float64(bytes))
}

// UpdateWriteBehindDepth updates the write-behind queue depth gauge.
func UpdateWriteBehindDepth(depth int) {
	if writeBehindDepth == nil {
		return
	}
	writeBehindDepth.Set(float64(depth))
}

// UpdateDatabaseConnections updates the database connections metric
func UpdateDatabaseConnections(count int) {
	if databaseConnectionsActive == nil {
		return
	}
	databaseConnectionsActive.Set(float64(count))
}

// UpdateRedisConnections updates the Redis connections metric
func UpdateRedisConnections(count int) {
	if redisConnectionsActive == nil {
		return
	}
	redisConnectionsActive.Set(float64(count))
}
