package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	mu          sync.Mutex
	expired     int64
	deleteErr   error
	deleteCalls int
	countCalls  int
	rowCount    int64
}

func (s *fakeStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	removed := s.expired
	s.expired = 0
	return removed, nil
}

func (s *fakeStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	return s.rowCount, nil
}

func (s *fakeStore) deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCalls
}

func TestService(t *testing.T) {
	ctx := context.Background()

	t.Run("run once removes expired rows", func(t *testing.T) {
		store := &fakeStore{expired: 12}
		svc := NewService(store, Config{})

		assert.Equal(t, int64(12), svc.RunOnce(ctx))
		assert.Equal(t, int64(0), svc.RunOnce(ctx), "second cycle finds nothing")
	})

	t.Run("dry run never deletes", func(t *testing.T) {
		store := &fakeStore{expired: 12, rowCount: 40}
		svc := NewService(store, Config{DryRun: true})

		assert.Equal(t, int64(0), svc.RunOnce(ctx))
		assert.Equal(t, 0, store.deleteCalls)
		assert.Equal(t, 1, store.countCalls)
	})

	t.Run("delete errors are swallowed", func(t *testing.T) {
		store := &fakeStore{deleteErr: errors.New("connection lost")}
		svc := NewService(store, Config{})

		assert.Equal(t, int64(0), svc.RunOnce(ctx))
	})

	t.Run("loop runs until canceled", func(t *testing.T) {
		store := &fakeStore{}
		svc := NewService(store, Config{Interval: 10 * time.Millisecond})

		loopCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			svc.Start(loopCtx)
			close(done)
		}()

		assert.Eventually(t, func() bool {
			return store.deletes() >= 3
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("cleanup loop did not stop")
		}
	})

	t.Run("default interval", func(t *testing.T) {
		svc := NewService(&fakeStore{}, Config{})
		assert.Equal(t, 5*time.Minute, svc.config.Interval)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadConfig()
		assert.Equal(t, 5*time.Minute, cfg.Interval)
		assert.False(t, cfg.DryRun)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("CLEANUP_INTERVAL", "90s")
		t.Setenv("CLEANUP_DRY_RUN", "true")

		cfg := LoadConfig()
		assert.Equal(t, 90*time.Second, cfg.Interval)
		assert.True(t, cfg.DryRun)
	})
}
