// Package store is the Postgres persistence layer backing the two
// tables: users and daily_quota. Grounded on a pgxpool-based
// sync.Once-style pool lifecycle, but instantiated explicitly (no
// package-level singleton).
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool with explicit lifecycle (Open/Close),
// and is the single owner of the users and daily_quota tables.
type DB struct {
	Pool *pgxpool.Pool
}

// Open establishes the connection pool for databaseURL. The caller is
// responsible for calling Close when the gateway shuts down.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// Close releases all pooled connections.
func (d *DB) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// Migrate creates the users and daily_quota tables if they do not
// already exist. The gateway owns its own schema; there is no
// external migration tool in scope for this core.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS daily_quota (
			user_id TEXT NOT NULL,
			utc_date DATE NOT NULL,
			tokens_consumed BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, utc_date)
		)`,
	}
	for _, s := range stmts {
		if _, err := d.Pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
