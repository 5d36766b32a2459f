package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds the persistent-tier database settings.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// DefaultTTL applies when Set is called with a zero TTL.
	DefaultTTL time.Duration
}

// NewPostgresConfigFromEnv creates a PostgresConfig from environment
// variables.
func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}

	maxConns, err := strconv.ParseInt(getEnvOrDefault("POSTGRES_MAX_CONNS", "25"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_MAX_CONNS: %w", err)
	}

	minConns, err := strconv.ParseInt(getEnvOrDefault("POSTGRES_MIN_CONNS", "5"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_MIN_CONNS: %w", err)
	}

	defaultTTL, err := parseDuration(getEnvOrDefault("CACHE_PERSISTENT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_PERSISTENT_TTL: %w", err)
	}

	return &PostgresConfig{
		Host:            getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("POSTGRES_USER", "talon"),
		Password:        getEnvOrDefault("POSTGRES_PASSWORD", "talonpass"),
		Database:        getEnvOrDefault("POSTGRES_DB", "taloncache"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		DefaultTTL:      defaultTTL,
	}, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// talonCacheSchema holds the persistent tier's single table. Expiry is a
// column, enforced on read and swept by DeleteExpired.
const talonCacheSchema = `
CREATE TABLE IF NOT EXISTS talon_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS talon_cache_expires_at_idx ON talon_cache (expires_at);
`

// PostgresTier is the persistent Store tier backed by a pgx connection
// pool. It is written to asynchronously by the write-behind Writer and read
// on misses from the faster tiers.
type PostgresTier struct {
	pool *pgxpool.Pool
	cfg  *PostgresConfig
}

// NewPostgresTier connects to Postgres, verifies the connection and ensures
// the cache table exists.
func NewPostgresTier(cfg *PostgresConfig) (*PostgresTier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, talonCacheSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure cache schema: %w", err)
	}

	return &PostgresTier{pool: pool, cfg: cfg}, nil
}

// Get retrieves a value. Rows past their expiry are treated as missing and
// deleted opportunistically.
func (p *PostgresTier) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value, expires_at
		FROM talon_cache
		WHERE key = $1
	`

	var value []byte
	var expiresAt time.Time
	err := p.pool.QueryRow(ctx, query, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, NewCacheError("failed to get key", true).WithError(err)
	}

	if !time.Now().Before(expiresAt) {
		_ = p.Delete(ctx, key)
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Set upserts a value with its expiry.
func (p *PostgresTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = p.cfg.DefaultTTL
	}

	query := `
		INSERT INTO talon_cache (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := p.pool.Exec(ctx, query, key, value, time.Now().Add(ttl)); err != nil {
		return NewCacheError("failed to set key", true).WithError(err)
	}
	return nil
}

// Delete removes a value. Deleting a missing key returns ErrKeyNotFound.
func (p *PostgresTier) Delete(ctx context.Context, key string) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM talon_cache WHERE key = $1`, key)
	if err != nil {
		return NewCacheError("failed to delete key", true).WithError(err)
	}
	if result.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// DeleteMultiple removes a batch of keys, ignoring missing ones.
func (p *PostgresTier) DeleteMultiple(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM talon_cache WHERE key = ANY($1)`, keys); err != nil {
		return NewCacheError("failed to delete multiple keys", true).WithError(err)
	}
	return nil
}

// DeleteExpired sweeps rows past their expiry and returns how many were
// removed. Intended for a periodic maintenance job.
func (p *PostgresTier) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := p.pool.Exec(ctx, `DELETE FROM talon_cache WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, NewCacheError("failed to delete expired rows", true).WithError(err)
	}
	return result.RowsAffected(), nil
}

// Count returns the number of stored rows, including not-yet-swept expired
// ones.
func (p *PostgresTier) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM talon_cache`).Scan(&count); err != nil {
		return 0, NewCacheError("failed to count rows", true).WithError(err)
	}
	return count, nil
}

// Ping checks database health.
func (p *PostgresTier) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return NewCacheError("ping failed", false).WithError(err)
	}
	return nil
}

// Stat returns pool statistics.
func (p *PostgresTier) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}

// Close closes the connection pool.
func (p *PostgresTier) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
