// Package db owns the Postgres pool behind the audit sink. The engine
// never reads back from Postgres, so the pool is tuned for short
// append-only writes rather than query traffic.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/a2e/common/config"
	"github.com/lyzr/a2e/common/logger"
)

// DB wraps the pgxpool used by the Postgres audit sink.
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// New connects the pool and verifies the database is reachable before
// the service accepts traffic.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	// Stagger recycles; appends must not all reconnect at once.
	poolConfig.MaxConnLifetimeJitter = cfg.Database.MaxLifetime / 10
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("audit database connected", "host", cfg.Database.Host, "db", cfg.Database.Database)

	return &DB{Pool: pool, log: log}, nil
}

// Close closes the pool.
func (db *DB) Close() {
	db.log.Info("closing audit database pool")
	db.Pool.Close()
}

// Health pings with a short deadline for the readiness check.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.Pool.Ping(ctx)
}
