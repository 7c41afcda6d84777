// Package rawstore implements the raw-event sink: a Postgres-backed
// durable store for every accepted TelemetryRecord, fed by a bounded queue
// and a fixed worker pool, plus the raw aggregate queries the dashboard
// needs independent of the in-memory engine (RPS over arbitrary windows,
// top endpoints by volume).
package rawstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// db is the slice of pgxpool.Pool's surface Store needs, narrowed to an
// interface so tests can swap in pgxmock instead of a live Postgres
// instance.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store wraps a pgxpool.Pool, config, and schema migrations for the raw
// telemetry table.
type Store struct {
	conn db
	pool *pgxpool.Pool // nil in tests backed by a mock db
}

// Config holds the Postgres connection and migration settings.
type Config struct {
	DSN         string
	MaxConns    int32
	AutoMigrate bool
}

// Open connects to Postgres, optionally running migrations, and returns a
// ready Store. Ping-verifies the connection before returning.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{conn: pool, pool: pool}
	if cfg.AutoMigrate {
		if err := Migrate(pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
	}
	return s, nil
}

// newWithConn builds a Store directly over conn, bypassing Open's pool
// construction and migrations. Used by tests against a pgxmock.PgxPoolIface.
func newWithConn(conn db) *Store { return &Store{conn: conn} }

// Close releases the underlying connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports whether Postgres is reachable, used by the analytics
// service's readiness check.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.conn.Ping(ctx)
}
