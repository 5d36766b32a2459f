package sdk

import (
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker.
// The circuit breaker pattern prevents cascading failures by counting
// consecutive failures and temporarily blocking calls once a threshold
// is reached.
//
// State transitions:
//   - Closed -> Open: when the consecutive failure count reaches the threshold
//   - Open -> Half-Open: lazily, on the first gate check after the cooldown elapses
//   - Half-Open -> Closed: on a recorded success
//   - Half-Open -> Open: a recorded failure restarts the cooldown
type CircuitState int

const (
	// CircuitClosed is the normal operating state.
	// All calls pass through and failures are counted.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects all calls until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen allows probe calls to test whether the backend has
	// recovered. A successful probe closes the circuit; a failed probe
	// re-opens it.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerSnapshot is a point-in-time view of breaker state for
// statistics and diagnostics.
type CircuitBreakerSnapshot struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime time.Time    `json:"last_failure_time"`
}

// CircuitBreaker gates whether an operation may execute based on
// consecutive failure counts and a cooldown timer. One breaker instance is
// shared by every call through a given executor: all callers observe and
// mutate the same state.
//
// The Open -> Half-Open transition is decided lazily inside CanExecute via
// evaluate, not by a timer callback. CanExecute in the half-open state
// always returns true (it admits the probe) without itself changing state;
// only RecordSuccess and RecordFailure move the machine out of half-open.
//
// Example:
//
//	cb := sdk.NewCircuitBreaker(5, 30*time.Second)
//	if !cb.CanExecute() {
//	    return sdk.ErrCircuitOpen
//	}
//	if err := callBackend(); err != nil {
//	    cb.RecordFailure()
//	    return err
//	}
//	cb.RecordSuccess()
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time

	// now is injected for tests; defaults to time.Now
	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
// threshold is the number of consecutive failures that opens the circuit;
// cooldown is how long the circuit stays open before admitting a probe.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     CircuitClosed,
		now:       time.Now,
	}
}

// CanExecute reports whether a call may proceed. It first evaluates the
// lazy Open -> Half-Open transition against the current time, then admits
// the call unless the circuit is (still) open.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.evaluate(cb.now())
	return cb.state != CircuitOpen
}

// evaluate applies time-driven transitions. Callers must hold mu.
func (cb *CircuitBreaker) evaluate(now time.Time) {
	if cb.state == CircuitOpen && now.Sub(cb.lastFailureTime) >= cb.cooldown {
		cb.state = CircuitHalfOpen
	}
}

// RecordSuccess unconditionally resets the failure count to zero and closes
// the circuit, regardless of prior state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = CircuitClosed
}

// RecordFailure increments the consecutive failure count and restarts the
// cooldown timer. Once the count reaches the threshold the circuit opens;
// a failure recorded while half-open therefore re-opens it, since the
// count only resets on success.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()
	if cb.failureCount >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state after applying time-driven transitions.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.evaluate(cb.now())
	return cb.state
}

// Snapshot returns a point-in-time view of the breaker for diagnostics.
func (cb *CircuitBreaker) Snapshot() CircuitBreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.evaluate(cb.now())
	return CircuitBreakerSnapshot{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Reset manually restores the closed state. This is an administrative
// operation; use it only when the underlying issue is known to be resolved.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
}
