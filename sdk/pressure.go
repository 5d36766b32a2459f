package sdk

import (
	"math"
	"runtime"
	"runtime/debug"
)

// PressureLevel describes current resource pressure as reported by a
// PressureProber. The executor rejects new calls outright at
// PressureCritical; the other levels only feed diagnostics.
type PressureLevel int

const (
	// PressureNormal means resources are healthy.
	PressureNormal PressureLevel = iota
	// PressureModerate means resource usage is elevated but harmless.
	PressureModerate
	// PressureHigh means resource usage is approaching the limit.
	PressureHigh
	// PressureCritical means new work must be rejected.
	PressureCritical
)

// String returns the string representation of the pressure level
func (p PressureLevel) String() string {
	switch p {
	case PressureNormal:
		return "normal"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// PressureReading is a single observation from a PressureProber.
type PressureReading struct {
	// Level is the observed pressure level
	Level PressureLevel `json:"level"`
	// CleanupAdvised indicates the prober recommends shedding caches or
	// other reclaimable memory. Advisory only.
	CleanupAdvised bool `json:"cleanup_advised"`
}

// PressureProber reports resource pressure. The executor probes once per
// call, before any attempt is made; a critical reading aborts the call
// with a circuit-trip classified error and no attempts consumed.
//
// Implementations must be safe for concurrent use.
type PressureProber interface {
	Probe() PressureReading
}

// RuntimeProber derives pressure from the Go heap relative to a byte
// limit. If no limit is configured and GOMEMLIMIT is unset, it always
// reports normal pressure.
type RuntimeProber struct {
	// Limit is the heap byte budget pressure is measured against.
	// Zero means use the runtime's configured memory limit.
	Limit uint64
}

// NewRuntimeProber creates a prober measuring heap usage against limit
// bytes, falling back to GOMEMLIMIT when limit is zero.
func NewRuntimeProber(limit uint64) *RuntimeProber {
	return &RuntimeProber{Limit: limit}
}

// Probe reads runtime memory statistics and maps heap usage to a level:
// >= 95% of the limit is critical, >= 85% high, >= 70% moderate.
func (p *RuntimeProber) Probe() PressureReading {
	limit := p.Limit
	if limit == 0 {
		if configured := debug.SetMemoryLimit(-1); configured > 0 && configured < math.MaxInt64 {
			limit = uint64(configured)
		}
	}
	if limit == 0 {
		return PressureReading{Level: PressureNormal}
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	ratio := float64(stats.HeapAlloc) / float64(limit)
	switch {
	case ratio >= 0.95:
		return PressureReading{Level: PressureCritical, CleanupAdvised: true}
	case ratio >= 0.85:
		return PressureReading{Level: PressureHigh, CleanupAdvised: true}
	case ratio >= 0.70:
		return PressureReading{Level: PressureModerate}
	default:
		return PressureReading{Level: PressureNormal}
	}
}

// StaticProber always returns a fixed reading. Useful for tests and for
// disabling admission control.
type StaticProber struct {
	Reading PressureReading
}

// Probe returns the fixed reading
func (p *StaticProber) Probe() PressureReading {
	return p.Reading
}
