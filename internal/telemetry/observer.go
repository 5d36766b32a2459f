package telemetry

import (
	"time"

	"github.com/perchlabs/talon/sdk"
)

// ExecutorObserver bridges executor lifecycle events into Prometheus
// metrics and structured logs. Attach it with
// sdk.DefaultExecutorConfig().WithObserver(telemetry.NewExecutorObserver()).
type ExecutorObserver struct{}

// NewExecutorObserver creates an observer recording executor metrics.
func NewExecutorObserver() *ExecutorObserver {
	return &ExecutorObserver{}
}

// OnCallStart logs call admission at debug level.
func (o *ExecutorObserver) OnCallStart(method, requestID string) {
	L().WithFields(map[string]interface{}{
		"method":     method,
		"request_id": requestID,
	}).Debug("Call started")
}

// OnCallEnd records the call outcome.
func (o *ExecutorObserver) OnCallEnd(method, requestID string, duration time.Duration, attempts int, err error) {
	outcome := "success"
	if err != nil {
		outcome = sdk.Classify(err).String()
	}
	RecordCall(method, outcome, duration, attempts)

	entry := L().WithFields(map[string]interface{}{
		"method":     method,
		"request_id": requestID,
		"duration":   duration.Milliseconds(),
		"attempts":   attempts,
	})
	if err != nil {
		entry.WithError(err).Warn("Call failed")
	} else {
		entry.Debug("Call completed")
	}
}

// OnRetryAttempt records the retry and logs the failed attempt.
func (o *ExecutorObserver) OnRetryAttempt(method, requestID string, attempt int, delay time.Duration, err error) {
	RecordRetry(method)
	L().WithError(err).WithFields(map[string]interface{}{
		"method":     method,
		"request_id": requestID,
		"attempt":    attempt,
		"delay":      delay.String(),
	}).Debug("Retrying call")
}

// OnCircuitBreakerStateChange records the transition and updates the state
// gauge.
func (o *ExecutorObserver) OnCircuitBreakerStateChange(oldState, newState sdk.CircuitState) {
	RecordBreakerTransition(oldState.String(), newState.String())
	UpdateBreakerState(float64(newState))

	entry := L().WithFields(map[string]interface{}{
		"from": oldState.String(),
		"to":   newState.String(),
	})
	if newState == sdk.CircuitOpen {
		entry.Warn("Circuit breaker opened")
	} else {
		entry.Info("Circuit breaker state changed")
	}
}
