package sdk

import (
	"fmt"
	"time"
)

// DiagnosticReport is a point-in-time health summary of an executor:
// recent call statistics, breaker state, resource pressure and a set of
// human-readable recommendations derived from simple heuristics.
//
// Reports are built on demand and are safe to serialize to JSON for an
// operations endpoint.
type DiagnosticReport struct {
	// GeneratedAt is when the report was built
	GeneratedAt time.Time `json:"generated_at"`
	// Calls is the aggregate over the retained metrics window
	Calls Stats `json:"calls"`
	// CircuitBreaker is the breaker snapshot at report time
	CircuitBreaker CircuitBreakerSnapshot `json:"circuit_breaker"`
	// Pressure is the prober reading at report time
	Pressure PressureReading `json:"pressure"`
	// ResourceHealth is the ResourceReporter payload, if one is configured
	ResourceHealth map[string]any `json:"resource_health,omitempty"`
	// Recommendations are operator-facing hints; empty when healthy
	Recommendations []string `json:"recommendations,omitempty"`
}

// Healthy reports whether the diagnostics found nothing to flag.
func (r *DiagnosticReport) Healthy() bool {
	return len(r.Recommendations) == 0
}

// Diagnostics heuristics. Thresholds match operational experience rather
// than any formal model; tune with care.
const (
	diagFailureRateThreshold = 0.10
	diagSlowCallThreshold    = 5 * time.Second
)

// Diagnose builds a diagnostic report from the executor's current state.
func (e *Executor) Diagnose() *DiagnosticReport {
	report := &DiagnosticReport{
		GeneratedAt:    time.Now(),
		Calls:          e.metrics.Stats(),
		CircuitBreaker: e.breaker.Snapshot(),
		Pressure:       e.prober.Probe(),
	}
	if e.cfg.Resources != nil {
		report.ResourceHealth = e.cfg.Resources.ResourceHealth()
	}
	report.Recommendations = recommendations(report)
	return report
}

func recommendations(r *DiagnosticReport) []string {
	var recs []string

	if r.Calls.TotalCalls > 0 && r.Calls.FailureRate > diagFailureRateThreshold {
		recs = append(recs, fmt.Sprintf(
			"failure rate %.1f%% over the last %d call(s); check backend health and error classifications",
			r.Calls.FailureRate*100, r.Calls.TotalCalls))
	}
	if r.Calls.AvgDuration > diagSlowCallThreshold {
		recs = append(recs, fmt.Sprintf(
			"average call duration %s exceeds %s; consider raising timeouts or reducing retry budgets",
			r.Calls.AvgDuration.Round(time.Millisecond), diagSlowCallThreshold))
	}

	switch r.CircuitBreaker.State {
	case CircuitOpen:
		recs = append(recs,
			"circuit breaker is open; calls are being rejected until the cooldown elapses")
	case CircuitHalfOpen:
		recs = append(recs,
			"circuit breaker is half-open; the next call probes backend recovery")
	}

	switch r.Pressure.Level {
	case PressureCritical:
		recs = append(recs,
			"resource pressure is critical; new calls are being rejected")
	case PressureHigh:
		recs = append(recs,
			"resource pressure is high; shed caches or reduce concurrency before admission control engages")
	case PressureModerate:
		recs = append(recs, "resource pressure is elevated")
	}
	if r.Pressure.CleanupAdvised {
		recs = append(recs, "prober advises reclaiming cached memory")
	}

	return recs
}
