package cache

import (
	"sync"
	"time"

	"github.com/perchlabs/talon/sdk"
)

// Strategy selects how an entry's TTL evolves over its lifetime.
type Strategy int

const (
	// StrategyFixed expires the entry at created + TTL; access never moves
	// the expiration.
	StrategyFixed Strategy = iota
	// StrategySliding reschedules expiration to lastAccessed + TTL on
	// every access.
	StrategySliding
	// StrategyAdaptive stretches or shrinks the TTL based on observed
	// access frequency and hit ratio.
	StrategyAdaptive
	// StrategyDependency expires like fixed but is additionally removable
	// in bulk via InvalidateDependency.
	StrategyDependency
	// StrategyConditional rescales the TTL on each access from a list of
	// matching conditions.
	StrategyConditional
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	switch s {
	case StrategyFixed:
		return "fixed"
	case StrategySliding:
		return "sliding"
	case StrategyAdaptive:
		return "adaptive"
	case StrategyDependency:
		return "dependency"
	case StrategyConditional:
		return "conditional"
	default:
		return "unknown"
	}
}

// Adaptive strategy defaults and clamp bounds.
const (
	defaultMinAccessCount      = 5
	defaultFrequencyThreshold  = 0.1 // accesses per second
	defaultHitRatioThreshold   = 0.7
	defaultExtensionMultiplier = 1.5
	defaultReductionMultiplier = 0.5

	clampLowerFactor = 0.1
	clampUpperFactor = 10.0
)

// ConditionType discriminates the condition variants of the conditional
// strategy. Conditions are explicit data plus optional function values,
// never evaluated from strings.
type ConditionType int

const (
	// ConditionTimeOfDay matches when the current hour is in
	// [StartHour, EndHour).
	ConditionTimeOfDay ConditionType = iota
	// ConditionAccessCount matches once the entry has at least MinAccesses
	// recorded accesses.
	ConditionAccessCount
	// ConditionMemoryPressure matches when the manager's prober reports at
	// least the configured pressure level.
	ConditionMemoryPressure
	// ConditionCustom matches when the Custom predicate returns true.
	ConditionCustom
)

// Condition is one {type, predicate, multiplier} rule of the conditional
// strategy. All matching conditions multiply together to scale the TTL.
type Condition struct {
	Type ConditionType

	// Multiplier scales the base TTL when the condition matches.
	Multiplier float64

	// StartHour and EndHour bound ConditionTimeOfDay, in local hours
	// [0, 24). EndHour below StartHour wraps past midnight.
	StartHour int
	EndHour   int

	// MinAccesses is the ConditionAccessCount threshold.
	MinAccesses int64

	// Pressure is the minimum level matching ConditionMemoryPressure.
	Pressure sdk.PressureLevel

	// Custom is the ConditionCustom predicate, evaluated against a
	// point-in-time snapshot of the entry.
	Custom func(EntrySnapshot) bool
}

// EntryConfig describes how one entry's lifetime is managed.
type EntryConfig struct {
	// Strategy selects the TTL behavior. Default: StrategyFixed.
	Strategy Strategy

	// BaseTTL is the starting TTL. Required.
	BaseTTL time.Duration

	// MinTTL and MaxTTL bound TTL recalculation. When zero, the bounds
	// default to BaseTTL x0.1 and x10.
	MinTTL time.Duration
	MaxTTL time.Duration

	// Dependencies names the upstream data sources this entry derives
	// from, for bulk invalidation.
	Dependencies []string

	// Adaptive strategy tuning; zero values take the package defaults.
	MinAccessCount      int64
	FrequencyThreshold  float64
	HitRatioThreshold   float64
	ExtensionMultiplier float64
	ReductionMultiplier float64

	// Conditions drive the conditional strategy.
	Conditions []Condition
}

// EntrySnapshot is a read-only view of a tracked entry, used by stats,
// introspection and custom conditions.
type EntrySnapshot struct {
	Key          string         `json:"key"`
	Strategy     Strategy       `json:"strategy"`
	Created      time.Time      `json:"created"`
	LastAccessed time.Time      `json:"last_accessed"`
	AccessCount  int64          `json:"access_count"`
	HitCount     int64          `json:"hit_count"`
	MissCount    int64          `json:"miss_count"`
	BaseTTL      time.Duration  `json:"base_ttl"`
	CurrentTTL   time.Duration  `json:"current_ttl"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Size         int64          `json:"size"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ttlEntry is the mutable tracked state for one key.
type ttlEntry struct {
	key          string
	cfg          EntryConfig
	created      time.Time
	lastAccessed time.Time
	accessCount  int64
	hitCount     int64
	missCount    int64
	currentTTL   time.Duration
	size         int64
	metadata     map[string]any
}

// TTLStats summarizes the manager's tracked entries.
type TTLStats struct {
	Entries      int            `json:"entries"`
	TotalSize    int64          `json:"total_size"`
	Dependencies int            `json:"dependencies"`
	ByStrategy   map[string]int `json:"by_strategy"`
}

// TTLManagerConfig configures a TTLManager.
type TTLManagerConfig struct {
	// CleanupInterval is the background sweep period. Zero disables the
	// background sweeper; Cleanup can still be called manually.
	// Default: 1m
	CleanupInterval time.Duration

	// Prober feeds ConditionMemoryPressure evaluation. Optional; without
	// one, memory-pressure conditions never match.
	Prober sdk.PressureProber
}

// DefaultTTLManagerConfig returns the default manager configuration.
func DefaultTTLManagerConfig() *TTLManagerConfig {
	return &TTLManagerConfig{
		CleanupInterval: time.Minute,
	}
}

// TTLManager tracks cache-entry lifetimes under pluggable strategies and a
// dependency graph for bulk invalidation. It stores no values; pair it with
// a Store keyed by the same strings.
//
// All methods are safe for concurrent use. Operations on unknown keys are
// no-ops returning zero values, never errors.
type TTLManager struct {
	mu      sync.RWMutex
	entries map[string]*ttlEntry
	deps    map[string]map[string]struct{}
	prober  sdk.PressureProber

	stop    chan struct{}
	stopped sync.Once

	// now is injected for tests; defaults to time.Now
	now func() time.Time
}

// NewTTLManager creates a TTL manager and starts its background sweeper if
// the configuration enables one. Call Close to stop the sweeper.
func NewTTLManager(cfg *TTLManagerConfig) *TTLManager {
	if cfg == nil {
		cfg = DefaultTTLManagerConfig()
	}
	m := &TTLManager{
		entries: make(map[string]*ttlEntry),
		deps:    make(map[string]map[string]struct{}),
		prober:  cfg.Prober,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if cfg.CleanupInterval > 0 {
		go m.sweep(cfg.CleanupInterval)
	}
	return m
}

func (m *TTLManager) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}

// Register starts tracking a key. Registering an existing key replaces its
// entry entirely, including dependency edges.
func (m *TTLManager) Register(key string, cfg EntryConfig, size int64, metadata map[string]any) {
	applyEntryDefaults(&cfg)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		m.removeLocked(key)
	}

	m.entries[key] = &ttlEntry{
		key:          key,
		cfg:          cfg,
		created:      now,
		lastAccessed: now,
		currentTTL:   cfg.BaseTTL,
		size:         size,
		metadata:     metadata,
	}
	for _, dep := range cfg.Dependencies {
		if m.deps[dep] == nil {
			m.deps[dep] = make(map[string]struct{})
		}
		m.deps[dep][key] = struct{}{}
	}
}

// Unregister stops tracking a key. Returns false for unknown keys.
func (m *TTLManager) Unregister(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return false
	}
	m.removeLocked(key)
	return true
}

// removeLocked deletes an entry and its dependency edges. Callers hold mu.
func (m *TTLManager) removeLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	for _, dep := range e.cfg.Dependencies {
		if set := m.deps[dep]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(m.deps, dep)
			}
		}
	}
}

// RecordAccess updates access counters for a key and recalculates the TTL
// for strategies that react to access patterns. hit reports whether the
// paired store lookup was a hit. Unknown keys are a no-op.
func (m *TTLManager) RecordAccess(key string, hit bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return
	}

	e.lastAccessed = now
	e.accessCount++
	if hit {
		e.hitCount++
	} else {
		e.missCount++
	}

	switch e.cfg.Strategy {
	case StrategyAdaptive:
		m.recalcAdaptive(e, now)
	case StrategyConditional:
		m.recalcConditional(e, now)
	}
}

// recalcAdaptive stretches the TTL for hot, well-hitting entries and
// shrinks it for cold ones. Callers hold mu.
func (m *TTLManager) recalcAdaptive(e *ttlEntry, now time.Time) {
	if e.accessCount < e.cfg.MinAccessCount {
		return
	}

	age := now.Sub(e.created).Seconds()
	if age <= 0 {
		age = 1
	}
	frequency := float64(e.accessCount) / age

	hitRatio := 0.0
	if total := e.hitCount + e.missCount; total > 0 {
		hitRatio = float64(e.hitCount) / float64(total)
	}

	switch {
	case frequency >= e.cfg.FrequencyThreshold && hitRatio >= e.cfg.HitRatioThreshold:
		e.currentTTL = clampTTL(time.Duration(float64(e.currentTTL)*e.cfg.ExtensionMultiplier), e.cfg)
	case frequency < e.cfg.FrequencyThreshold/2:
		e.currentTTL = clampTTL(time.Duration(float64(e.currentTTL)*e.cfg.ReductionMultiplier), e.cfg)
	}
}

// recalcConditional rescales the TTL from the base by the product of all
// matching condition multipliers. Callers hold mu.
func (m *TTLManager) recalcConditional(e *ttlEntry, now time.Time) {
	multiplier := 1.0
	for _, c := range e.cfg.Conditions {
		if m.conditionMatches(c, e, now) {
			multiplier *= c.Multiplier
		}
	}
	e.currentTTL = clampTTL(time.Duration(float64(e.cfg.BaseTTL)*multiplier), e.cfg)
}

func (m *TTLManager) conditionMatches(c Condition, e *ttlEntry, now time.Time) bool {
	switch c.Type {
	case ConditionTimeOfDay:
		hour := now.Hour()
		if c.StartHour <= c.EndHour {
			return hour >= c.StartHour && hour < c.EndHour
		}
		return hour >= c.StartHour || hour < c.EndHour
	case ConditionAccessCount:
		return e.accessCount >= c.MinAccesses
	case ConditionMemoryPressure:
		return m.prober != nil && m.prober.Probe().Level >= c.Pressure
	case ConditionCustom:
		return c.Custom != nil && c.Custom(snapshotOf(e))
	default:
		return false
	}
}

// expiresAt computes an entry's current expiration. Callers hold mu.
func expiresAt(e *ttlEntry) time.Time {
	if e.cfg.Strategy == StrategySliding {
		return e.lastAccessed.Add(e.currentTTL)
	}
	return e.created.Add(e.currentTTL)
}

// IsExpired reports whether a key's entry has passed its expiration.
// Unknown keys report false.
func (m *TTLManager) IsExpired(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return false
	}
	return !m.now().Before(expiresAt(e))
}

// TTLRemaining returns the time until a key expires, zero for unknown or
// already expired keys.
func (m *TTLManager) TTLRemaining(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return 0
	}
	remaining := expiresAt(e).Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Cleanup removes every currently expired entry and returns their keys.
func (m *TTLManager) Cleanup() []string {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for key, e := range m.entries {
		if !now.Before(expiresAt(e)) {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		m.removeLocked(key)
	}
	return removed
}

// InvalidateDependency removes every entry registered with the named
// dependency and returns their keys. The graph edge is removed with them.
func (m *TTLManager) InvalidateDependency(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.deps[name]
	if len(set) == 0 {
		return nil
	}
	removed := make([]string, 0, len(set))
	for key := range set {
		removed = append(removed, key)
	}
	for _, key := range removed {
		m.removeLocked(key)
	}
	return removed
}

// Snapshot returns a read-only view of a tracked entry.
func (m *TTLManager) Snapshot(key string) (EntrySnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return EntrySnapshot{}, false
	}
	return snapshotOf(e), true
}

func snapshotOf(e *ttlEntry) EntrySnapshot {
	return EntrySnapshot{
		Key:          e.key,
		Strategy:     e.cfg.Strategy,
		Created:      e.created,
		LastAccessed: e.lastAccessed,
		AccessCount:  e.accessCount,
		HitCount:     e.hitCount,
		MissCount:    e.missCount,
		BaseTTL:      e.cfg.BaseTTL,
		CurrentTTL:   e.currentTTL,
		Dependencies: append([]string(nil), e.cfg.Dependencies...),
		Size:         e.size,
		Metadata:     e.metadata,
	}
}

// Stats summarizes the tracked entries.
func (m *TTLManager) Stats() TTLStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := TTLStats{
		Entries:      len(m.entries),
		Dependencies: len(m.deps),
		ByStrategy:   make(map[string]int),
	}
	for _, e := range m.entries {
		stats.TotalSize += e.size
		stats.ByStrategy[e.cfg.Strategy.String()]++
	}
	return stats
}

// Close stops the background sweeper. Tracked entries remain queryable.
func (m *TTLManager) Close() {
	m.stopped.Do(func() {
		close(m.stop)
	})
}

// applyEntryDefaults fills zero tuning fields with package defaults.
func applyEntryDefaults(cfg *EntryConfig) {
	if cfg.MinAccessCount <= 0 {
		cfg.MinAccessCount = defaultMinAccessCount
	}
	if cfg.FrequencyThreshold <= 0 {
		cfg.FrequencyThreshold = defaultFrequencyThreshold
	}
	if cfg.HitRatioThreshold <= 0 {
		cfg.HitRatioThreshold = defaultHitRatioThreshold
	}
	if cfg.ExtensionMultiplier <= 0 {
		cfg.ExtensionMultiplier = defaultExtensionMultiplier
	}
	if cfg.ReductionMultiplier <= 0 {
		cfg.ReductionMultiplier = defaultReductionMultiplier
	}
}

// clampTTL bounds a recalculated TTL to the entry's configured or default
// limits.
func clampTTL(ttl time.Duration, cfg EntryConfig) time.Duration {
	min := cfg.MinTTL
	if min <= 0 {
		min = time.Duration(float64(cfg.BaseTTL) * clampLowerFactor)
	}
	max := cfg.MaxTTL
	if max <= 0 {
		max = time.Duration(float64(cfg.BaseTTL) * clampUpperFactor)
	}
	if ttl < min {
		return min
	}
	if ttl > max {
		return max
	}
	return ttl
}
