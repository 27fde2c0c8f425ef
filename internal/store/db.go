package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect establishes a connection pool to the database and returns the pool
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	// Parse config from DSN
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Set max connections and create pool
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Ping the database to verify connection
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

var migrations = []string{
	`CREATE SCHEMA IF NOT EXISTS hookline`,
	`CREATE TABLE IF NOT EXISTS hookline.subscriptions (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		event_type  TEXT NOT NULL,
		webhook_url TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_event_type
		ON hookline.subscriptions(event_type)`,
	`CREATE TABLE IF NOT EXISTS hookline.orders (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		customer_name TEXT NOT NULL,
		amount        NUMERIC(12,2) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS hookline.delivery_attempts (
		id                   UUID PRIMARY KEY,
		subscription_id      UUID NOT NULL,
		correlation_id       TEXT,
		attempted_at         TIMESTAMPTZ NOT NULL,
		response_status_code INT,
		success              BOOLEAN NOT NULL,
		payload              TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_subscription
		ON hookline.delivery_attempts(subscription_id)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_correlation
		ON hookline.delivery_attempts(correlation_id)`,
}

// Migrate applies the schema idempotently. Services run this at startup
// before serving; a failure here refuses startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
