package sdk

import "time"

// Observer provides hooks for monitoring executor operations.
// Implement this interface to track performance, debug retry behavior,
// or integrate with an observability stack.
//
// Observer methods are called synchronously on the calling goroutine and
// should be fast and non-blocking.
//
// Example implementation:
//
//	type LogObserver struct {
//	    logger *log.Logger
//	}
//
//	func (o *LogObserver) OnCallStart(method, requestID string) {
//	    o.logger.Printf("[START] %s %s", method, requestID)
//	}
//
//	func (o *LogObserver) OnCallEnd(method, requestID string, duration time.Duration, attempts int, err error) {
//	    if err != nil {
//	        o.logger.Printf("[FAIL] %s %s after %d attempt(s): %v", method, requestID, attempts, err)
//	    }
//	}
type Observer interface {
	// OnCallStart is called when a call is admitted for execution,
	// before the first attempt.
	OnCallStart(method, requestID string)

	// OnCallEnd is called when a call completes, successfully or not.
	// attempts is the number of attempts actually made (0 when the call
	// was rejected before any attempt).
	OnCallEnd(method, requestID string, duration time.Duration, attempts int, err error)

	// OnRetryAttempt is called before each backoff sleep.
	// attempt is the zero-based index of the attempt that just failed,
	// delay is the computed backoff delay, err is the failure that
	// triggered the retry.
	OnRetryAttempt(method, requestID string, attempt int, delay time.Duration, err error)

	// OnCircuitBreakerStateChange is called when the shared breaker
	// changes state as a consequence of this call.
	OnCircuitBreakerStateChange(oldState, newState CircuitState)
}

// NoopObserver is a no-op implementation of Observer. It is the default
// when no observer is configured and has zero overhead.
type NoopObserver struct{}

// OnCallStart does nothing
func (n *NoopObserver) OnCallStart(method, requestID string) {}

// OnCallEnd does nothing
func (n *NoopObserver) OnCallEnd(method, requestID string, duration time.Duration, attempts int, err error) {
}

// OnRetryAttempt does nothing
func (n *NoopObserver) OnRetryAttempt(method, requestID string, attempt int, delay time.Duration, err error) {
}

// OnCircuitBreakerStateChange does nothing
func (n *NoopObserver) OnCircuitBreakerStateChange(oldState, newState CircuitState) {}

// CompositeObserver fans out notifications to multiple observers in order.
// A panicking observer is recovered so it cannot affect the others or the
// call itself.
//
// Example:
//
//	observer := sdk.NewCompositeObserver(
//	    &LogObserver{logger: log.Default()},
//	    prometheusObserver,
//	)
//	cfg := sdk.DefaultExecutorConfig().WithObserver(observer)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer delegating to the given
// observers.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnCallStart notifies all observers
func (c *CompositeObserver) OnCallStart(method, requestID string) {
	c.each(func(o Observer) { o.OnCallStart(method, requestID) })
}

// OnCallEnd notifies all observers
func (c *CompositeObserver) OnCallEnd(method, requestID string, duration time.Duration, attempts int, err error) {
	c.each(func(o Observer) { o.OnCallEnd(method, requestID, duration, attempts, err) })
}

// OnRetryAttempt notifies all observers
func (c *CompositeObserver) OnRetryAttempt(method, requestID string, attempt int, delay time.Duration, err error) {
	c.each(func(o Observer) { o.OnRetryAttempt(method, requestID, attempt, delay, err) })
}

// OnCircuitBreakerStateChange notifies all observers
func (c *CompositeObserver) OnCircuitBreakerStateChange(oldState, newState CircuitState) {
	c.each(func(o Observer) { o.OnCircuitBreakerStateChange(oldState, newState) })
}
