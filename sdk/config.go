package sdk

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CallOptions are the per-call execution settings. Executor-level defaults
// are shallow-merged with per-call overrides supplied as CallOption values,
// so a call only specifies what it wants to change.
//
// Example:
//
//	result, err := exec.Execute(ctx, "wallet.sync", op, nil,
//	    sdk.WithMaxRetries(0),
//	    sdk.WithCallTimeout(2*time.Second),
//	    sdk.WithTags("bulk", "low-priority"))
type CallOptions struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// call makes at most MaxRetries+1 attempts. Zero disables retries.
	MaxRetries int

	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration

	// MaxBackoffDelay caps the exponential backoff delay.
	MaxBackoffDelay time.Duration

	// Jitter is the randomization fraction (0.0 to 1.0) added on top of
	// the exponential delay to avoid synchronized retry storms.
	Jitter float64

	// Timeout bounds each individual attempt. The attempt races the
	// operation against this timer; zero disables the race. The timeout
	// is advisory to the attempt only; it does not cancel work the
	// operation may have started.
	Timeout time.Duration

	// Tags annotate the call for metrics and diagnostics.
	Tags []string

	// Metadata is an arbitrary annotation map carried onto the call's
	// metrics record and terminal error.
	Metadata map[string]any
}

// CallOption overrides a single CallOptions field for one call.
type CallOption func(*CallOptions)

// WithMaxRetries sets the retry budget for this call.
// WithMaxRetries(0) disables retries entirely.
func WithMaxRetries(n int) CallOption {
	return func(o *CallOptions) {
		if n >= 0 {
			o.MaxRetries = n
		}
	}
}

// WithBackoff sets the base and maximum backoff delay for this call.
func WithBackoff(base, max time.Duration) CallOption {
	return func(o *CallOptions) {
		if base > 0 {
			o.BackoffBase = base
		}
		if max > 0 {
			o.MaxBackoffDelay = max
		}
	}
}

// WithJitter sets the backoff randomization fraction (clamped to [0, 1]).
func WithJitter(jitter float64) CallOption {
	return func(o *CallOptions) {
		if jitter < 0 {
			jitter = 0
		}
		if jitter > 1 {
			jitter = 1
		}
		o.Jitter = jitter
	}
}

// WithCallTimeout sets the per-attempt timeout for this call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithTags appends tags to the call.
func WithTags(tags ...string) CallOption {
	return func(o *CallOptions) {
		o.Tags = append(o.Tags, tags...)
	}
}

// WithMetadata attaches a metadata key/value to the call.
func WithMetadata(key string, value any) CallOption {
	return func(o *CallOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]any)
		}
		o.Metadata[key] = value
	}
}

// merged returns a copy of the defaults with the per-call overrides
// applied. The copy is shallow except for Tags and Metadata, which are
// cloned so an override cannot alias the shared defaults.
func (o CallOptions) merged(opts []CallOption) CallOptions {
	out := o
	out.Tags = append([]string(nil), o.Tags...)
	out.Metadata = nil
	if len(o.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(o.Metadata))
		for k, v := range o.Metadata {
			out.Metadata[k] = v
		}
	}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// ResourceReporter supplies resource-health data merged into diagnostic
// reports. It is an external collaborator; the executor never interprets
// the returned map beyond embedding it.
type ResourceReporter interface {
	ResourceHealth() map[string]any
}

// ExecutorConfig holds the configuration for an Executor. All fields have
// sensible defaults; build one with DefaultExecutorConfig and the fluent
// With* methods:
//
//	cfg := sdk.DefaultExecutorConfig().
//	    WithMaxRetries(5).
//	    WithCircuitBreaker(10, time.Minute).
//	    WithObserver(myObserver)
type ExecutorConfig struct {
	// Defaults are the baseline per-call settings, overridable per call.
	Defaults CallOptions

	// CircuitBreakerThreshold is the number of consecutive failures that
	// opens the shared breaker.
	// Default: 5
	CircuitBreakerThreshold int

	// CircuitBreakerCooldown is how long the breaker stays open before
	// admitting a probe.
	// Default: 30s
	CircuitBreakerCooldown time.Duration

	// MetricsCapacity bounds the in-memory call metrics ring.
	// Default: 1000
	MetricsCapacity int

	// Observer receives call lifecycle notifications.
	// If nil, NoopObserver is used.
	Observer Observer

	// Prober performs the pre-flight resource pressure check.
	// If nil, a RuntimeProber is used.
	Prober PressureProber

	// Resources supplies resource-health data for diagnostic reports.
	// Optional.
	Resources ResourceReporter

	// IDGenerator mints request ids. If nil, UUIDv4 is used.
	IDGenerator func() string
}

// Environment variables read once to seed the process-wide defaults.
// They are opaque configuration input, not a stable API.
const (
	envMaxRetries  = "TALON_MAX_RETRIES"
	envBackoffBase = "TALON_BACKOFF_BASE_MS"
	envMaxBackoff  = "TALON_MAX_BACKOFF_MS"
	envTimeout     = "TALON_TIMEOUT_MS"
)

var (
	baselineOnce sync.Once
	baseline     CallOptions
)

// platformDefaults computes the process-wide baseline call options, scaled
// by detected concurrency and adjusted by TALON_* environment variables.
// Computed once per process.
func platformDefaults() CallOptions {
	baselineOnce.Do(func() {
		baseline = CallOptions{
			MaxRetries:      3,
			BackoffBase:     100 * time.Millisecond,
			MaxBackoffDelay: 5 * time.Second,
			Jitter:          0.3,
			Timeout:         30 * time.Second,
		}

		// Constrained hosts get a smaller retry budget and a longer
		// per-attempt timeout: fewer cores mean slower recovery and more
		// contention, so hammering the backend helps nobody.
		if runtime.NumCPU() <= 2 {
			baseline.MaxRetries = 2
			baseline.Timeout = 45 * time.Second
		}

		if v, err := strconv.Atoi(os.Getenv(envMaxRetries)); err == nil && v >= 0 {
			baseline.MaxRetries = v
		}
		if ms, err := strconv.Atoi(os.Getenv(envBackoffBase)); err == nil && ms > 0 {
			baseline.BackoffBase = time.Duration(ms) * time.Millisecond
		}
		if ms, err := strconv.Atoi(os.Getenv(envMaxBackoff)); err == nil && ms > 0 {
			baseline.MaxBackoffDelay = time.Duration(ms) * time.Millisecond
		}
		if ms, err := strconv.Atoi(os.Getenv(envTimeout)); err == nil && ms > 0 {
			baseline.Timeout = time.Duration(ms) * time.Millisecond
		}
	})
	return baseline
}

// DefaultExecutorConfig returns an executor configuration with platform
// scaled defaults:
//   - MaxRetries: 3 (2 on hosts with <= 2 CPUs)
//   - BackoffBase: 100ms, MaxBackoffDelay: 5s, Jitter: 0.3
//   - Per-attempt timeout: 30s
//   - CircuitBreakerThreshold: 5, CircuitBreakerCooldown: 30s
//   - MetricsCapacity: 1000
//
// TALON_MAX_RETRIES, TALON_BACKOFF_BASE_MS, TALON_MAX_BACKOFF_MS and
// TALON_TIMEOUT_MS override the baseline; they are read once per process.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		Defaults:                platformDefaults(),
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  30 * time.Second,
		MetricsCapacity:         1000,
	}
}

// WithMaxRetries sets the default retry budget.
func (c *ExecutorConfig) WithMaxRetries(n int) *ExecutorConfig {
	c.Defaults.MaxRetries = n
	return c
}

// WithBackoff sets the default backoff base and cap.
func (c *ExecutorConfig) WithBackoff(base, max time.Duration) *ExecutorConfig {
	c.Defaults.BackoffBase = base
	c.Defaults.MaxBackoffDelay = max
	return c
}

// WithJitter sets the default backoff randomization fraction.
func (c *ExecutorConfig) WithJitter(jitter float64) *ExecutorConfig {
	c.Defaults.Jitter = jitter
	return c
}

// WithTimeout sets the default per-attempt timeout.
func (c *ExecutorConfig) WithTimeout(d time.Duration) *ExecutorConfig {
	c.Defaults.Timeout = d
	return c
}

// WithCircuitBreaker configures the shared breaker.
func (c *ExecutorConfig) WithCircuitBreaker(threshold int, cooldown time.Duration) *ExecutorConfig {
	c.CircuitBreakerThreshold = threshold
	c.CircuitBreakerCooldown = cooldown
	return c
}

// WithMetricsCapacity bounds the call metrics ring.
func (c *ExecutorConfig) WithMetricsCapacity(n int) *ExecutorConfig {
	c.MetricsCapacity = n
	return c
}

// WithObserver sets the call lifecycle observer.
func (c *ExecutorConfig) WithObserver(o Observer) *ExecutorConfig {
	c.Observer = o
	return c
}

// WithPressureProber sets the admission-control prober.
func (c *ExecutorConfig) WithPressureProber(p PressureProber) *ExecutorConfig {
	c.Prober = p
	return c
}

// WithResourceReporter sets the diagnostics collaborator.
func (c *ExecutorConfig) WithResourceReporter(r ResourceReporter) *ExecutorConfig {
	c.Resources = r
	return c
}

// WithIDGenerator sets the request id generator.
func (c *ExecutorConfig) WithIDGenerator(gen func() string) *ExecutorConfig {
	c.IDGenerator = gen
	return c
}

// Validate validates the configuration and fills in defaults for missing
// values. Called automatically by NewExecutor.
func (c *ExecutorConfig) Validate() error {
	if c.Defaults.MaxRetries < 0 {
		c.Defaults.MaxRetries = 0
	}
	if c.Defaults.BackoffBase <= 0 {
		c.Defaults.BackoffBase = 100 * time.Millisecond
	}
	if c.Defaults.MaxBackoffDelay <= 0 {
		c.Defaults.MaxBackoffDelay = 5 * time.Second
	}
	if c.Defaults.MaxBackoffDelay < c.Defaults.BackoffBase {
		return fmt.Errorf("%w: max backoff delay below base", ErrInvalidConfig)
	}
	if c.Defaults.Jitter < 0 || c.Defaults.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Defaults.Timeout < 0 {
		c.Defaults.Timeout = 0
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerCooldown <= 0 {
		c.CircuitBreakerCooldown = 30 * time.Second
	}
	if c.MetricsCapacity <= 0 {
		c.MetricsCapacity = 1000
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Prober == nil {
		c.Prober = NewRuntimeProber(0)
	}
	if c.IDGenerator == nil {
		c.IDGenerator = uuid.NewString
	}
	return nil
}
