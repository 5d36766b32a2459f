// Package cleanup reaps expired rows from the persistent cache tier.
//
// The in-process and shared tiers expire entries on their own; Postgres
// rows only vanish when something deletes them. The janitor runs a
// periodic delete so the persistent tier does not accumulate dead rows.
package cleanup

import (
	"context"
	"time"

	"github.com/perchlabs/talon/internal/telemetry"
)

// PersistentStore is the slice of the persistent tier the janitor needs.
// Implemented by cache.PostgresTier.
type PersistentStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// Service periodically deletes expired rows from the persistent tier.
type Service struct {
	store  PersistentStore
	config Config
}

// Config contains configuration for the cleanup service
type Config struct {
	// Interval between cleanup cycles. Default: 5m
	Interval time.Duration

	// DryRun reports what would be deleted without deleting.
	DryRun bool
}

// NewService creates a new cleanup service
func NewService(store PersistentStore, config Config) *Service {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	return &Service{
		store:  store,
		config: config,
	}
}

// Start begins the cleanup loop. It blocks until the context is canceled.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	telemetry.WithFields(map[string]interface{}{
		"interval": s.config.Interval.String(),
		"dry_run":  s.config.DryRun,
	}).Info("Cleanup service started")

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			telemetry.L().Info("Cleanup service stopped")
			return
		}
	}
}

// RunOnce executes a single cleanup cycle and returns the number of rows
// removed.
func (s *Service) RunOnce(ctx context.Context) int64 {
	if s.config.DryRun {
		count, err := s.store.Count(ctx)
		if err != nil {
			telemetry.WithError(err).Error("Cleanup count failed")
			return 0
		}
		telemetry.WithFields(map[string]interface{}{
			"rows": count,
		}).Info("DRY RUN: persistent tier row count")
		return 0
	}

	removed, err := s.store.DeleteExpired(ctx)
	if err != nil {
		telemetry.WithError(err).Error("Cleanup cycle failed")
		return 0
	}

	if removed > 0 {
		telemetry.WithFields(map[string]interface{}{
			"removed": removed,
		}).Info("Cleanup cycle completed")
	}
	return removed
}
