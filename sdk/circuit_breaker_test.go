package sdk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// breakerClock steps a fake time source for breaker tests.
type breakerClock struct {
	mu  sync.Mutex
	now time.Time
}

func newBreakerClock() *breakerClock {
	return &breakerClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *breakerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *breakerClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *breakerClock) {
	clock := newBreakerClock()
	cb := NewCircuitBreaker(threshold, cooldown)
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("starts closed", func(t *testing.T) {
		cb, _ := newTestBreaker(3, 30*time.Second)
		assert.Equal(t, CircuitClosed, cb.State())
		assert.True(t, cb.CanExecute())
	})

	t.Run("opens at the failure threshold", func(t *testing.T) {
		cb, _ := newTestBreaker(3, 30*time.Second)

		cb.RecordFailure()
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State())
		assert.True(t, cb.CanExecute())

		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())
		assert.False(t, cb.CanExecute())
	})

	t.Run("success resets the failure count", func(t *testing.T) {
		cb, _ := newTestBreaker(3, 30*time.Second)

		cb.RecordFailure()
		cb.RecordFailure()
		cb.RecordSuccess()

		// The count restarted, so two more failures do not open it.
		cb.RecordFailure()
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State())
	})

	t.Run("half open after the cooldown", func(t *testing.T) {
		cb, clock := newTestBreaker(1, 30*time.Second)

		cb.RecordFailure()
		assert.False(t, cb.CanExecute())

		clock.Advance(29 * time.Second)
		assert.False(t, cb.CanExecute(), "cooldown not yet elapsed")

		clock.Advance(time.Second)
		assert.True(t, cb.CanExecute(), "probe admitted at exactly the cooldown")
		assert.Equal(t, CircuitHalfOpen, cb.State())
	})

	t.Run("transition is lazy", func(t *testing.T) {
		cb, clock := newTestBreaker(1, 30*time.Second)
		cb.RecordFailure()

		// Nothing observes the breaker while the cooldown elapses; the
		// transition happens on the next gate check, not on a timer.
		clock.Advance(time.Hour)
		assert.Equal(t, CircuitHalfOpen, cb.State())
	})

	t.Run("successful probe closes the circuit", func(t *testing.T) {
		cb, clock := newTestBreaker(1, 30*time.Second)
		cb.RecordFailure()
		clock.Advance(30 * time.Second)
		assert.True(t, cb.CanExecute())

		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.State())
		assert.Equal(t, 0, cb.Snapshot().FailureCount)
	})

	t.Run("failed probe reopens and restarts the cooldown", func(t *testing.T) {
		cb, clock := newTestBreaker(2, 30*time.Second)
		cb.RecordFailure()
		cb.RecordFailure()
		clock.Advance(30 * time.Second)
		assert.True(t, cb.CanExecute())
		assert.Equal(t, CircuitHalfOpen, cb.State())

		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())

		clock.Advance(29 * time.Second)
		assert.False(t, cb.CanExecute(), "cooldown restarted by the probe failure")
		clock.Advance(time.Second)
		assert.True(t, cb.CanExecute())
	})

	t.Run("half open gate does not change state", func(t *testing.T) {
		cb, clock := newTestBreaker(1, time.Second)
		cb.RecordFailure()
		clock.Advance(time.Second)

		// Repeated gate checks stay half-open until an outcome is recorded.
		for i := 0; i < 5; i++ {
			assert.True(t, cb.CanExecute())
			assert.Equal(t, CircuitHalfOpen, cb.State())
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		cb, clock := newTestBreaker(3, 30*time.Second)
		cb.RecordFailure()
		cb.RecordFailure()

		snap := cb.Snapshot()
		assert.Equal(t, CircuitClosed, snap.State)
		assert.Equal(t, 2, snap.FailureCount)
		assert.Equal(t, clock.Now(), snap.LastFailureTime)
	})

	t.Run("reset restores closed", func(t *testing.T) {
		cb, _ := newTestBreaker(1, time.Hour)
		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())

		cb.Reset()
		snap := cb.Snapshot()
		assert.Equal(t, CircuitClosed, snap.State)
		assert.Equal(t, 0, snap.FailureCount)
		assert.True(t, snap.LastFailureTime.IsZero())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cb, _ := newTestBreaker(100, time.Second)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					cb.CanExecute()
					cb.RecordFailure()
					cb.RecordSuccess()
					cb.Snapshot()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, CircuitClosed, cb.State())
	})
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
