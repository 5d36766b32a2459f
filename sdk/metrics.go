package sdk

import (
	"sync"
	"time"
)

// CallMetrics is an immutable record of one completed call. Records are
// appended in completion order, not start order: two concurrent calls that
// start A,B but finish B,A are recorded B,A.
type CallMetrics struct {
	// RequestID uniquely identifies the call
	RequestID string `json:"request_id"`
	// Method is the logical operation name
	Method string `json:"method"`
	// Duration is the total elapsed time including retries and backoff
	Duration time.Duration `json:"duration"`
	// Attempts is the number of attempts made (0 for pre-flight rejections)
	Attempts int `json:"attempts"`
	// Success reports whether the call returned a value
	Success bool `json:"success"`
	// Classification of the terminal failure; meaningful only on failure
	Classification Classification `json:"classification,omitempty"`
	// ErrorMessage is the terminal error text; empty on success
	ErrorMessage string `json:"error,omitempty"`
	// Tags are the call tags
	Tags []string `json:"tags,omitempty"`
	// Metadata is the annotation map supplied via options
	Metadata map[string]any `json:"metadata,omitempty"`
	// Timestamp is when the call completed
	Timestamp time.Time `json:"timestamp"`
}

// MethodStats is the per-method aggregate breakdown.
type MethodStats struct {
	Calls       int           `json:"calls"`
	Successes   int           `json:"successes"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

// Stats is the aggregate view over the retained metrics window.
type Stats struct {
	TotalCalls    int                    `json:"total_calls"`
	Successes     int                    `json:"successes"`
	Failures      int                    `json:"failures"`
	FailureRate   float64                `json:"failure_rate"`
	TotalAttempts int                    `json:"total_attempts"`
	AvgDuration   time.Duration          `json:"avg_duration"`
	Methods       map[string]MethodStats `json:"methods"`
}

// MetricsRecorder retains the most recent call outcomes in a bounded ring.
// When the ring is full the oldest record is evicted first (FIFO, not LRU).
// All methods are safe for concurrent use.
type MetricsRecorder struct {
	mu       sync.Mutex
	entries  []CallMetrics
	start    int
	count    int
	capacity int
}

// NewMetricsRecorder creates a recorder retaining up to capacity records.
func NewMetricsRecorder(capacity int) *MetricsRecorder {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MetricsRecorder{
		entries:  make([]CallMetrics, capacity),
		capacity: capacity,
	}
}

// Record appends a call record, evicting the oldest when full.
func (r *MetricsRecorder) Record(m CallMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < r.capacity {
		r.entries[(r.start+r.count)%r.capacity] = m
		r.count++
		return
	}
	r.entries[r.start] = m
	r.start = (r.start + 1) % r.capacity
}

// Len returns the number of retained records.
func (r *MetricsRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Recent returns up to n most recent records, newest last.
func (r *MetricsRecorder) Recent(n int) []CallMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]CallMetrics, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%r.capacity])
	}
	return out
}

// Stats computes the aggregate view over all retained records.
func (r *MetricsRecorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Methods: make(map[string]MethodStats)}
	var totalDuration time.Duration
	methodDurations := make(map[string]time.Duration)

	for i := 0; i < r.count; i++ {
		m := r.entries[(r.start+i)%r.capacity]
		stats.TotalCalls++
		stats.TotalAttempts += m.Attempts
		totalDuration += m.Duration

		ms := stats.Methods[m.Method]
		ms.Calls++
		if m.Success {
			stats.Successes++
			ms.Successes++
		} else {
			stats.Failures++
			ms.Failures++
		}
		if m.Duration > ms.MaxDuration {
			ms.MaxDuration = m.Duration
		}
		methodDurations[m.Method] += m.Duration
		stats.Methods[m.Method] = ms
	}

	if stats.TotalCalls > 0 {
		stats.FailureRate = float64(stats.Failures) / float64(stats.TotalCalls)
		stats.AvgDuration = totalDuration / time.Duration(stats.TotalCalls)
	}
	for method, ms := range stats.Methods {
		if ms.Calls > 0 {
			ms.AvgDuration = methodDurations[method] / time.Duration(ms.Calls)
			stats.Methods[method] = ms
		}
	}
	return stats
}

// MethodStats returns the aggregate for a single method. Unknown methods
// return a zero value.
func (r *MetricsRecorder) MethodStats(method string) MethodStats {
	return r.Stats().Methods[method]
}

// Clear discards all retained records.
func (r *MetricsRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.count = 0
}
