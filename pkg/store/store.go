// Package store persists backend descriptors and API key records in
// Postgres.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/metamcp/metamcp/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// maxPoolConns bounds the connection pool. Fan-out across backends
	// plus admin traffic stays well inside this.
	maxPoolConns = 100

	// connectTimeout bounds establishing a new pool connection. Waiting
	// for a free connection is bounded by the caller's context; pgxpool
	// has no separate acquire deadline.
	connectTimeout = 3 * time.Second
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps a Postgres connection pool and exposes the repositories.
type Store struct {
	pool *pgxpool.Pool

	Servers *ServerStore
	APIKeys *APIKeyStore
}

// Open connects to Postgres, runs pending migrations, and returns the
// store. The caller owns the store and must Close it.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool}
	s.Servers = &ServerStore{pool: pool}
	s.APIKeys = &APIKeyStore{pool: pool}
	return s, nil
}

// poolConfig parses the URL and applies the pool bounds.
func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = maxPoolConns
	cfg.ConnConfig.ConnectTimeout = connectTimeout
	return cfg, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func migrate(pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warnf("failed to close migration connection: %v", err)
		}
	}()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
