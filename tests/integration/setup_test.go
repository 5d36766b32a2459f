//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/perchlabs/talon/cache"
	"github.com/perchlabs/talon/tests/testutil"
	"github.com/stretchr/testify/require"
)

var containers *testutil.TestContainers

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	containers, err = testutil.StartContainers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start test containers: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := containers.Cleanup(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to clean up test containers: %v\n", err)
	}
	os.Exit(code)
}

// newRedisCache connects to the test Redis with a per-test namespace so
// tests cannot see each other's keys.
func newRedisCache(t *testing.T) *cache.RedisCache {
	t.Helper()

	port, err := strconv.Atoi(containers.RedisPort)
	require.NoError(t, err)

	rc, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:        containers.RedisHost,
		Port:        port,
		Namespace:   t.Name(),
		DialTimeout: 5 * time.Second,
		DefaultTTL:  time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc
}

// newPostgresTier connects to the test Postgres. The table is shared, so
// tests key their rows with t.Name().
func newPostgresTier(t *testing.T) *cache.PostgresTier {
	t.Helper()

	port, err := strconv.Atoi(containers.PostgresPort)
	require.NoError(t, err)

	pg, err := cache.NewPostgresTier(&cache.PostgresConfig{
		Host:       containers.PostgresHost,
		Port:       port,
		User:       "talon",
		Password:   "talonpass",
		Database:   "taloncache",
		MaxConns:   5,
		MinConns:   1,
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	return pg
}
