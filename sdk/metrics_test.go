package sdk

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecorder(t *testing.T) {
	t.Run("records in completion order", func(t *testing.T) {
		r := NewMetricsRecorder(10)
		r.Record(CallMetrics{RequestID: "b", Method: "m"})
		r.Record(CallMetrics{RequestID: "a", Method: "m"})

		recent := r.Recent(0)
		assert.Len(t, recent, 2)
		assert.Equal(t, "b", recent[0].RequestID)
		assert.Equal(t, "a", recent[1].RequestID)
	})

	t.Run("evicts oldest first when full", func(t *testing.T) {
		r := NewMetricsRecorder(3)
		for i := 0; i < 5; i++ {
			r.Record(CallMetrics{RequestID: fmt.Sprintf("req-%d", i)})
		}

		assert.Equal(t, 3, r.Len())
		recent := r.Recent(0)
		assert.Equal(t, "req-2", recent[0].RequestID)
		assert.Equal(t, "req-3", recent[1].RequestID)
		assert.Equal(t, "req-4", recent[2].RequestID)
	})

	t.Run("recent with limit", func(t *testing.T) {
		r := NewMetricsRecorder(10)
		for i := 0; i < 5; i++ {
			r.Record(CallMetrics{RequestID: fmt.Sprintf("req-%d", i)})
		}

		recent := r.Recent(2)
		assert.Len(t, recent, 2)
		assert.Equal(t, "req-3", recent[0].RequestID)
		assert.Equal(t, "req-4", recent[1].RequestID)

		assert.Len(t, r.Recent(100), 5, "limit above count returns everything")
	})

	t.Run("stats aggregation", func(t *testing.T) {
		r := NewMetricsRecorder(100)
		r.Record(CallMetrics{Method: "getBalance", Success: true, Attempts: 1, Duration: 100 * time.Millisecond})
		r.Record(CallMetrics{Method: "getBalance", Success: true, Attempts: 2, Duration: 300 * time.Millisecond})
		r.Record(CallMetrics{Method: "sync", Success: false, Attempts: 4, Duration: 2 * time.Second})

		stats := r.Stats()
		assert.Equal(t, 3, stats.TotalCalls)
		assert.Equal(t, 2, stats.Successes)
		assert.Equal(t, 1, stats.Failures)
		assert.InDelta(t, 1.0/3.0, stats.FailureRate, 1e-9)
		assert.Equal(t, 7, stats.TotalAttempts)
		assert.Equal(t, 800*time.Millisecond, stats.AvgDuration)

		gb := stats.Methods["getBalance"]
		assert.Equal(t, 2, gb.Calls)
		assert.Equal(t, 2, gb.Successes)
		assert.Equal(t, 0, gb.Failures)
		assert.Equal(t, 200*time.Millisecond, gb.AvgDuration)
		assert.Equal(t, 300*time.Millisecond, gb.MaxDuration)

		syncStats := stats.Methods["sync"]
		assert.Equal(t, 1, syncStats.Failures)
		assert.Equal(t, 2*time.Second, syncStats.MaxDuration)
	})

	t.Run("stats over the retained window only", func(t *testing.T) {
		r := NewMetricsRecorder(2)
		r.Record(CallMetrics{Method: "old", Success: false})
		r.Record(CallMetrics{Method: "new", Success: true})
		r.Record(CallMetrics{Method: "new", Success: true})

		stats := r.Stats()
		assert.Equal(t, 2, stats.TotalCalls)
		assert.Equal(t, 0, stats.Failures)
		assert.NotContains(t, stats.Methods, "old")
	})

	t.Run("empty recorder", func(t *testing.T) {
		r := NewMetricsRecorder(10)
		stats := r.Stats()
		assert.Equal(t, 0, stats.TotalCalls)
		assert.Zero(t, stats.FailureRate)
		assert.Zero(t, stats.AvgDuration)
		assert.Empty(t, stats.Methods)
		assert.Empty(t, r.Recent(5))
	})

	t.Run("method stats for unknown method", func(t *testing.T) {
		r := NewMetricsRecorder(10)
		assert.Zero(t, r.MethodStats("nope"))
	})

	t.Run("clear", func(t *testing.T) {
		r := NewMetricsRecorder(10)
		r.Record(CallMetrics{Method: "m"})
		r.Clear()
		assert.Equal(t, 0, r.Len())
		assert.Empty(t, r.Recent(0))
	})

	t.Run("default capacity", func(t *testing.T) {
		r := NewMetricsRecorder(0)
		for i := 0; i < 1001; i++ {
			r.Record(CallMetrics{RequestID: fmt.Sprintf("req-%d", i)})
		}
		assert.Equal(t, 1000, r.Len())
		assert.Equal(t, "req-1", r.Recent(1000)[0].RequestID)
	})

	t.Run("concurrent recording", func(t *testing.T) {
		r := NewMetricsRecorder(50)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					r.Record(CallMetrics{Method: "m", Success: true, Attempts: 1})
					r.Stats()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, r.Len())
		assert.Equal(t, 50, r.Stats().TotalCalls)
	})
}
