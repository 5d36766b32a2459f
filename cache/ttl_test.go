package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchlabs/talon/sdk"
)

// ttlClock steps a fake time source for manager tests.
type ttlClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTTLClock() *ttlClock {
	return &ttlClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *ttlClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ttlClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ttlClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestManager(t *testing.T) (*TTLManager, *ttlClock) {
	t.Helper()
	clock := newTTLClock()
	m := NewTTLManager(&TTLManagerConfig{}) // no background sweeper
	m.now = clock.Now
	t.Cleanup(m.Close)
	return m, clock
}

func TestTTLManagerFixed(t *testing.T) {
	m, clock := newTestManager(t)

	m.Register("k", EntryConfig{Strategy: StrategyFixed, BaseTTL: time.Minute}, 100, nil)

	assert.False(t, m.IsExpired("k"))
	assert.Equal(t, time.Minute, m.TTLRemaining("k"))

	// Accesses never move a fixed expiration.
	clock.Advance(30 * time.Second)
	for i := 0; i < 10; i++ {
		m.RecordAccess("k", true)
	}
	assert.Equal(t, 30*time.Second, m.TTLRemaining("k"))

	clock.Advance(30 * time.Second)
	assert.True(t, m.IsExpired("k"))
	assert.Equal(t, time.Duration(0), m.TTLRemaining("k"))
}

func TestTTLManagerSliding(t *testing.T) {
	m, clock := newTestManager(t)

	m.Register("k", EntryConfig{Strategy: StrategySliding, BaseTTL: time.Minute}, 100, nil)

	// Every access pushes expiration forward.
	clock.Advance(45 * time.Second)
	m.RecordAccess("k", true)
	assert.Equal(t, time.Minute, m.TTLRemaining("k"))

	clock.Advance(45 * time.Second)
	assert.False(t, m.IsExpired("k"))
	m.RecordAccess("k", true)

	clock.Advance(61 * time.Second)
	assert.True(t, m.IsExpired("k"))
}

func TestTTLManagerAdaptive(t *testing.T) {
	t.Run("hot entries stretch", func(t *testing.T) {
		m, clock := newTestManager(t)
		m.Register("k", EntryConfig{
			Strategy:            StrategyAdaptive,
			BaseTTL:             time.Minute,
			MinAccessCount:      3,
			FrequencyThreshold:  0.1,
			HitRatioThreshold:   0.5,
			ExtensionMultiplier: 2.0,
		}, 100, nil)

		// 10 hits over 10 seconds: frequency 1/s, hit ratio 1.0.
		for i := 0; i < 10; i++ {
			clock.Advance(time.Second)
			m.RecordAccess("k", true)
		}

		snap, ok := m.Snapshot("k")
		require.True(t, ok)
		assert.Greater(t, snap.CurrentTTL, time.Minute)
	})

	t.Run("cold entries shrink", func(t *testing.T) {
		m, clock := newTestManager(t)
		m.Register("k", EntryConfig{
			Strategy:            StrategyAdaptive,
			BaseTTL:             time.Minute,
			MinAccessCount:      3,
			FrequencyThreshold:  1.0,
			ReductionMultiplier: 0.5,
		}, 100, nil)

		// 4 accesses over 40 seconds: frequency 0.1/s, below half the
		// threshold.
		for i := 0; i < 4; i++ {
			clock.Advance(10 * time.Second)
			m.RecordAccess("k", false)
		}

		snap, ok := m.Snapshot("k")
		require.True(t, ok)
		assert.Less(t, snap.CurrentTTL, time.Minute)
	})

	t.Run("clamped to default bounds", func(t *testing.T) {
		m, clock := newTestManager(t)
		m.Register("k", EntryConfig{
			Strategy:            StrategyAdaptive,
			BaseTTL:             time.Minute,
			MinAccessCount:      1,
			FrequencyThreshold:  0.001,
			HitRatioThreshold:   0.1,
			ExtensionMultiplier: 100,
		}, 100, nil)

		for i := 0; i < 10; i++ {
			clock.Advance(time.Second)
			m.RecordAccess("k", true)
		}

		snap, _ := m.Snapshot("k")
		assert.LessOrEqual(t, snap.CurrentTTL, 10*time.Minute, "clamped to 10x base")
	})

	t.Run("explicit min max bounds", func(t *testing.T) {
		m, clock := newTestManager(t)
		m.Register("k", EntryConfig{
			Strategy:            StrategyAdaptive,
			BaseTTL:             time.Minute,
			MaxTTL:              2 * time.Minute,
			MinAccessCount:      1,
			FrequencyThreshold:  0.001,
			HitRatioThreshold:   0.1,
			ExtensionMultiplier: 100,
		}, 100, nil)

		clock.Advance(time.Second)
		m.RecordAccess("k", true)

		snap, _ := m.Snapshot("k")
		assert.Equal(t, 2*time.Minute, snap.CurrentTTL)
	})

	t.Run("below minimum access count nothing changes", func(t *testing.T) {
		m, clock := newTestManager(t)
		m.Register("k", EntryConfig{
			Strategy:       StrategyAdaptive,
			BaseTTL:        time.Minute,
			MinAccessCount: 100,
		}, 100, nil)

		clock.Advance(time.Second)
		m.RecordAccess("k", true)

		snap, _ := m.Snapshot("k")
		assert.Equal(t, time.Minute, snap.CurrentTTL)
	})
}

func TestTTLManagerDependency(t *testing.T) {
	m, _ := newTestManager(t)

	m.Register("a", EntryConfig{Strategy: StrategyDependency, BaseTTL: time.Hour,
		Dependencies: []string{"accounts"}}, 10, nil)
	m.Register("b", EntryConfig{Strategy: StrategyDependency, BaseTTL: time.Hour,
		Dependencies: []string{"accounts", "prices"}}, 10, nil)
	m.Register("c", EntryConfig{Strategy: StrategyDependency, BaseTTL: time.Hour,
		Dependencies: []string{"prices"}}, 10, nil)
	m.Register("d", EntryConfig{Strategy: StrategyFixed, BaseTTL: time.Hour}, 10, nil)

	removed := m.InvalidateDependency("accounts")
	assert.ElementsMatch(t, []string{"a", "b"}, removed)

	// Only the named dependency's entries are gone.
	_, okC := m.Snapshot("c")
	_, okD := m.Snapshot("d")
	assert.True(t, okC)
	assert.True(t, okD)

	// The edge is gone with the entries.
	assert.Empty(t, m.InvalidateDependency("accounts"))

	// b was removed, so the prices edge only holds c now.
	assert.ElementsMatch(t, []string{"c"}, m.InvalidateDependency("prices"))
}

func TestTTLManagerConditional(t *testing.T) {
	t.Run("access count condition scales ttl", func(t *testing.T) {
		m, _ := newTestManager(t)
		m.Register("k", EntryConfig{
			Strategy: StrategyConditional,
			BaseTTL:  time.Minute,
			Conditions: []Condition{
				{Type: ConditionAccessCount, MinAccesses: 3, Multiplier: 2.0},
			},
		}, 100, nil)

		m.RecordAccess("k", true)
		snap, _ := m.Snapshot("k")
		assert.Equal(t, time.Minute, snap.CurrentTTL, "condition not yet matching")

		m.RecordAccess("k", true)
		m.RecordAccess("k", true)
		snap, _ = m.Snapshot("k")
		assert.Equal(t, 2*time.Minute, snap.CurrentTTL)
	})

	t.Run("matching multipliers multiply", func(t *testing.T) {
		m, _ := newTestManager(t)
		m.Register("k", EntryConfig{
			Strategy: StrategyConditional,
			BaseTTL:  time.Minute,
			MaxTTL:   time.Hour,
			Conditions: []Condition{
				{Type: ConditionAccessCount, MinAccesses: 1, Multiplier: 2.0},
				{Type: ConditionCustom, Multiplier: 3.0,
					Custom: func(s EntrySnapshot) bool { return true }},
			},
		}, 100, nil)

		m.RecordAccess("k", true)
		snap, _ := m.Snapshot("k")
		assert.Equal(t, 6*time.Minute, snap.CurrentTTL)
	})

	t.Run("memory pressure condition", func(t *testing.T) {
		clock := newTTLClock()
		m := NewTTLManager(&TTLManagerConfig{
			Prober: &sdk.StaticProber{Reading: sdk.PressureReading{Level: sdk.PressureHigh}},
		})
		m.now = clock.Now
		defer m.Close()

		m.Register("k", EntryConfig{
			Strategy: StrategyConditional,
			BaseTTL:  time.Minute,
			Conditions: []Condition{
				{Type: ConditionMemoryPressure, Pressure: sdk.PressureHigh, Multiplier: 0.2},
			},
		}, 100, nil)

		m.RecordAccess("k", true)
		snap, _ := m.Snapshot("k")
		assert.Equal(t, 12*time.Second, snap.CurrentTTL, "ttl shortened under pressure")
	})

	t.Run("time of day condition", func(t *testing.T) {
		m, clock := newTestManager(t)
		clock.Set(time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))
		m.Register("k", EntryConfig{
			Strategy: StrategyConditional,
			BaseTTL:  time.Minute,
			Conditions: []Condition{
				{Type: ConditionTimeOfDay, StartHour: 0, EndHour: 6, Multiplier: 5.0},
			},
		}, 100, nil)

		m.RecordAccess("k", true)
		snap, _ := m.Snapshot("k")
		assert.Equal(t, 5*time.Minute, snap.CurrentTTL, "off-peak hours stretch the ttl")

		clock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		m.RecordAccess("k", true)
		snap, _ = m.Snapshot("k")
		assert.Equal(t, time.Minute, snap.CurrentTTL, "peak hours fall back to base")
	})
}

func TestTTLManagerLifecycle(t *testing.T) {
	t.Run("register replaces existing entries", func(t *testing.T) {
		m, _ := newTestManager(t)
		m.Register("k", EntryConfig{Strategy: StrategyDependency, BaseTTL: time.Minute,
			Dependencies: []string{"old"}}, 10, nil)
		m.Register("k", EntryConfig{Strategy: StrategyFixed, BaseTTL: time.Hour}, 20, nil)

		snap, ok := m.Snapshot("k")
		require.True(t, ok)
		assert.Equal(t, StrategyFixed, snap.Strategy)
		assert.Equal(t, int64(0), snap.AccessCount, "counters reset on replace")

		// The old dependency edge went with the old entry.
		assert.Empty(t, m.InvalidateDependency("old"))
	})

	t.Run("unregister", func(t *testing.T) {
		m, _ := newTestManager(t)
		m.Register("k", EntryConfig{BaseTTL: time.Minute}, 10, nil)
		assert.True(t, m.Unregister("k"))
		assert.False(t, m.Unregister("k"))
	})

	t.Run("unknown keys are no-ops", func(t *testing.T) {
		m, _ := newTestManager(t)
		assert.False(t, m.IsExpired("nope"))
		assert.Equal(t, time.Duration(0), m.TTLRemaining("nope"))
		m.RecordAccess("nope", true) // must not panic
		_, ok := m.Snapshot("nope")
		assert.False(t, ok)
	})

	t.Run("cleanup removes only expired entries", func(t *testing.T) {
		m, clock := newTestManager(t)
		m.Register("short", EntryConfig{BaseTTL: time.Second}, 10, nil)
		m.Register("long", EntryConfig{BaseTTL: time.Hour}, 10, nil)

		clock.Advance(2 * time.Second)
		removed := m.Cleanup()
		assert.Equal(t, []string{"short"}, removed)

		_, ok := m.Snapshot("long")
		assert.True(t, ok)
		assert.Empty(t, m.Cleanup())
	})

	t.Run("stats", func(t *testing.T) {
		m, _ := newTestManager(t)
		m.Register("a", EntryConfig{Strategy: StrategyFixed, BaseTTL: time.Minute}, 100, nil)
		m.Register("b", EntryConfig{Strategy: StrategySliding, BaseTTL: time.Minute}, 200, nil)
		m.Register("c", EntryConfig{Strategy: StrategySliding, BaseTTL: time.Minute,
			Dependencies: []string{"dep"}}, 300, nil)

		stats := m.Stats()
		assert.Equal(t, 3, stats.Entries)
		assert.Equal(t, int64(600), stats.TotalSize)
		assert.Equal(t, 1, stats.Dependencies)
		assert.Equal(t, 1, stats.ByStrategy["fixed"])
		assert.Equal(t, 2, stats.ByStrategy["sliding"])
	})

	t.Run("background sweeper", func(t *testing.T) {
		m := NewTTLManager(&TTLManagerConfig{CleanupInterval: 10 * time.Millisecond})
		defer m.Close()

		m.Register("k", EntryConfig{BaseTTL: time.Millisecond}, 10, nil)
		assert.Eventually(t, func() bool {
			_, ok := m.Snapshot("k")
			return !ok
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("concurrent access", func(t *testing.T) {
		m, _ := newTestManager(t)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				key := string(rune('a' + n))
				m.Register(key, EntryConfig{Strategy: StrategySliding, BaseTTL: time.Minute,
					Dependencies: []string{"shared"}}, 10, nil)
				for j := 0; j < 100; j++ {
					m.RecordAccess(key, j%2 == 0)
					m.IsExpired(key)
					m.Stats()
				}
			}(i)
		}
		wg.Wait()
		assert.Len(t, m.InvalidateDependency("shared"), 10)
	})
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "fixed", StrategyFixed.String())
	assert.Equal(t, "sliding", StrategySliding.String())
	assert.Equal(t, "adaptive", StrategyAdaptive.String())
	assert.Equal(t, "dependency", StrategyDependency.String())
	assert.Equal(t, "conditional", StrategyConditional.String())
	assert.Equal(t, "unknown", Strategy(42).String())
}
