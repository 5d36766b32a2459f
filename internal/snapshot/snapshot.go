package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/perchlabs/talon/cache"
	"github.com/perchlabs/talon/internal/telemetry"
	"github.com/perchlabs/talon/sdk"
)

// Snapshot is one exported view of the service's health at a point in time.
type Snapshot struct {
	Service     string               `json:"service"`
	GeneratedAt time.Time            `json:"generated_at"`
	Diagnostics *sdk.DiagnosticReport `json:"diagnostics"`
	Cache       *cache.TieredStats    `json:"cache,omitempty"`
}

// Uploader stores a serialized snapshot. Implemented by Exporter.
type Uploader interface {
	Upload(service string, data io.Reader) (string, error)
}

// Diagnoser produces diagnostic reports. Implemented by sdk.Executor.
type Diagnoser interface {
	Diagnose() *sdk.DiagnosticReport
}

// CacheStats reports tiered cache statistics. Implemented by
// cache.TieredCache.
type CacheStats interface {
	Stats() cache.TieredStats
}

// RunnerConfig configures the periodic snapshot runner.
type RunnerConfig struct {
	// Service names the snapshots in object storage. Default: "talon"
	Service string

	// Interval between exports. Default: 5m
	Interval time.Duration
}

// Runner periodically captures a snapshot and exports it. A nil cache is
// allowed; the snapshot then carries diagnostics only.
type Runner struct {
	cfg      RunnerConfig
	uploader Uploader
	executor Diagnoser
	cache    CacheStats

	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewRunner creates a snapshot runner. Call Start to begin exporting.
func NewRunner(cfg RunnerConfig, uploader Uploader, executor Diagnoser, cacheStats CacheStats) *Runner {
	if cfg.Service == "" {
		cfg.Service = "talon"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Runner{
		cfg:      cfg,
		uploader: uploader,
		executor: executor,
		cache:    cacheStats,
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic export loop.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if key, err := r.Export(); err != nil {
					telemetry.WithError(err).Error("Snapshot export failed")
				} else {
					telemetry.WithFields(map[string]interface{}{
						"key": key,
					}).Debug("Snapshot exported")
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Capture assembles a snapshot without exporting it.
func (r *Runner) Capture() Snapshot {
	snap := Snapshot{
		Service:     r.cfg.Service,
		GeneratedAt: time.Now().UTC(),
		Diagnostics: r.executor.Diagnose(),
	}
	if r.cache != nil {
		stats := r.cache.Stats()
		snap.Cache = &stats
	}
	return snap
}

// Export captures a snapshot, serializes it and uploads it, returning the
// object key.
func (r *Runner) Export() (string, error) {
	snap := r.Capture()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return r.uploader.Upload(r.cfg.Service, bytes.NewReader(data))
}

// Close stops the export loop and waits for it to finish.
func (r *Runner) Close() {
	r.stopped.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
}
