package sdk

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/perchlabs/talon/sdk"

// Operation is a caller-supplied callable wrapped by the executor. It may
// perform network or FFI I/O which the executor does not inspect; the
// executor only classifies its errors and enforces the attempt timeout.
type Operation func(ctx context.Context, args []any) (any, error)

// Executor is the single public entry point of the call-execution engine.
// It wraps operations with admission control, the shared circuit breaker,
// per-attempt timeouts, classified retries and metrics recording.
//
// The circuit breaker and the metrics ring are owned by the executor and
// shared by every call through it; create one executor per logical backend
// rather than relying on a process-wide singleton.
type Executor struct {
	cfg      *ExecutorConfig
	breaker  *CircuitBreaker
	metrics  *MetricsRecorder
	observer Observer
	prober   PressureProber
	newID    func() string
	tracer   trace.Tracer
}

// NewExecutor creates an executor from the given configuration. The
// configuration is validated and defaulted in place.
//
// Example:
//
//	exec, err := sdk.NewExecutor(sdk.DefaultExecutorConfig().
//	    WithCircuitBreaker(5, 30*time.Second))
func NewExecutor(cfg *ExecutorConfig) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultExecutorConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		cfg:      cfg,
		breaker:  NewCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown),
		metrics:  NewMetricsRecorder(cfg.MetricsCapacity),
		observer: cfg.Observer,
		prober:   cfg.Prober,
		newID:    cfg.IDGenerator,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// attemptOutcome carries one attempt's result across the timeout race.
type attemptOutcome struct {
	value any
	err   error
}

// Execute runs op under the full resilience pipeline: pressure gate,
// circuit breaker gate, per-attempt timeout, classified retries with
// exponential backoff, and metrics recording.
//
// Retryable failures are retried up to the merged MaxRetries budget
// (MaxRetries+1 attempts total). Fatal and circuit-trip failures surface
// on first occurrence. All terminal failures are returned as *CallError.
//
// The per-attempt timeout abandons the attempt but does not cancel work
// the operation may have started; an abandoned operation can keep running
// in the background.
func (e *Executor) Execute(ctx context.Context, method string, op Operation, args []any, opts ...CallOption) (any, error) {
	if op == nil {
		return nil, ErrNilOperation
	}

	settings := e.cfg.Defaults.merged(opts)
	requestID := e.newID()
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "talon.execute", trace.WithAttributes(
		attribute.String("talon.method", method),
		attribute.String("talon.request_id", requestID),
	))
	defer span.End()

	e.observer.OnCallStart(method, requestID)

	// Admission control: a critical pressure reading aborts the call before
	// any attempt, independent of the breaker's own state.
	if reading := e.prober.Probe(); reading.Level == PressureCritical {
		err := e.terminal(span, method, requestID, settings, start, 0,
			ClassificationCircuitTrip, ErrPressureCritical)
		return nil, err
	}

	for attempt := 0; attempt <= settings.MaxRetries; attempt++ {
		if !e.breaker.CanExecute() {
			err := e.terminal(span, method, requestID, settings, start, attempt,
				ClassificationCircuitTrip, ErrCircuitOpen)
			return nil, err
		}

		before := e.breaker.State()
		value, err := e.runAttempt(ctx, settings.Timeout, op, args)
		if err == nil {
			e.breaker.RecordSuccess()
			e.notifyBreaker(before)
			span.SetAttributes(attribute.Int("talon.attempts", attempt+1))
			e.record(method, requestID, settings, start, attempt+1, true, 0, nil)
			return value, nil
		}

		class := Classify(err)
		e.breaker.RecordFailure()
		e.notifyBreaker(before)

		if class != ClassificationRetryable || attempt == settings.MaxRetries {
			return nil, e.terminal(span, method, requestID, settings, start, attempt+1, class, err)
		}

		delay := BackoffDelay(attempt, settings.BackoffBase, settings.MaxBackoffDelay, settings.Jitter)
		e.observer.OnRetryAttempt(method, requestID, attempt, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, e.terminal(span, method, requestID, settings, start, attempt+1,
				Classify(ctx.Err()), ctx.Err())
		}
	}

	// Unreachable if the loop above is correct; kept as a safety net.
	return nil, e.terminal(span, method, requestID, settings, start, settings.MaxRetries+1,
		ClassificationFatal, ErrMaxRetriesExceeded)
}

// runAttempt executes a single attempt, racing it against the per-attempt
// timeout. A fired timer fails the attempt with a retryable timeout error;
// the operation itself is not cancelled beyond the context deadline and may
// continue running in the background.
func (e *Executor) runAttempt(ctx context.Context, timeout time.Duration, op Operation, args []any) (any, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan attemptOutcome, 1)
	go func() {
		value, err := op(attemptCtx, args)
		done <- attemptOutcome{value: value, err: err}
	}()

	select {
	case outcome := <-done:
		return outcome.value, outcome.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// The caller's context ended, not the attempt timer.
			return nil, ctx.Err()
		}
		return nil, NewError(ClassificationRetryable, "attempt timeout", ErrTimeout)
	}
}

// terminal wraps a terminal failure, records it and notifies observers.
func (e *Executor) terminal(span trace.Span, method, requestID string, settings CallOptions,
	start time.Time, attempts int, class Classification, cause error) *CallError {

	callErr := &CallError{
		Classification: class,
		Method:         method,
		RequestID:      requestID,
		Attempts:       attempts,
		Duration:       time.Since(start),
		Tags:           settings.Tags,
		Metadata:       settings.Metadata,
		cause:          cause,
	}
	span.RecordError(callErr)
	span.SetStatus(codes.Error, class.String())
	span.SetAttributes(attribute.Int("talon.attempts", attempts))
	e.record(method, requestID, settings, start, attempts, false, class, callErr)
	return callErr
}

// record appends call metrics and fires OnCallEnd.
func (e *Executor) record(method, requestID string, settings CallOptions,
	start time.Time, attempts int, success bool, class Classification, err error) {

	duration := time.Since(start)
	m := CallMetrics{
		RequestID:      requestID,
		Method:         method,
		Duration:       duration,
		Attempts:       attempts,
		Success:        success,
		Classification: class,
		Tags:           settings.Tags,
		Metadata:       settings.Metadata,
		Timestamp:      time.Now(),
	}
	if err != nil {
		m.ErrorMessage = err.Error()
	}
	e.metrics.Record(m)
	e.observer.OnCallEnd(method, requestID, duration, attempts, err)
}

// notifyBreaker fires the observer hook when the breaker state moved.
func (e *Executor) notifyBreaker(before CircuitState) {
	after := e.breaker.State()
	if after != before {
		e.observer.OnCircuitBreakerStateChange(before, after)
	}
}

// Call runs a typed operation through the executor, avoiding the any
// round-trip at call sites.
//
// Example:
//
//	balance, err := sdk.Call(ctx, exec, "wallet.getBalance",
//	    func(ctx context.Context, args []any) (uint64, error) {
//	        return backend.GetBalance(ctx, args[0].(string))
//	    }, []any{"acct-123"})
func Call[T any](ctx context.Context, e *Executor, method string,
	op func(ctx context.Context, args []any) (T, error), args []any, opts ...CallOption) (T, error) {

	value, err := e.Execute(ctx, method, func(ctx context.Context, args []any) (any, error) {
		return op(ctx, args)
	}, args, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, NewError(ClassificationFatal, "operation returned unexpected type", nil)
	}
	return typed, nil
}

// Stats returns the aggregate call statistics, the per-method breakdowns
// and a snapshot of the shared circuit breaker.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Calls:          e.metrics.Stats(),
		CircuitBreaker: e.breaker.Snapshot(),
	}
}

// ExecutorStats combines call aggregates with the breaker snapshot.
type ExecutorStats struct {
	Calls          Stats                  `json:"calls"`
	CircuitBreaker CircuitBreakerSnapshot `json:"circuit_breaker"`
}

// MethodStats returns the aggregate for a single method.
func (e *Executor) MethodStats(method string) MethodStats {
	return e.metrics.MethodStats(method)
}

// RecentMetrics returns up to n most recent call records, newest last.
func (e *Executor) RecentMetrics(n int) []CallMetrics {
	return e.metrics.Recent(n)
}

// CircuitBreaker exposes the shared breaker for monitoring.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.breaker
}

// ResetCircuitBreaker restores the breaker to the closed state.
// Administrative and test use only.
func (e *Executor) ResetCircuitBreaker() {
	e.breaker.Reset()
}

// ClearMetrics discards all retained call records.
// Administrative and test use only.
func (e *Executor) ClearMetrics() {
	e.metrics.Clear()
}
