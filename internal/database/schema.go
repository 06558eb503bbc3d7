package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS orders (
		id                   BIGINT PRIMARY KEY,
		number               TEXT NOT NULL DEFAULT '',
		external_id          TEXT NOT NULL DEFAULT '',
		created_at           TIMESTAMPTZ NOT NULL,
		status               TEXT NOT NULL DEFAULT '',
		customer_id          BIGINT,
		customer_external_id TEXT NOT NULL DEFAULT '',
		total_summ           NUMERIC(14,2) NOT NULL DEFAULT 0,
		sum_paid             NUMERIC(14,2) NOT NULL DEFAULT 0,
		discount             NUMERIC(14,2) NOT NULL DEFAULT 0,
		source_source        TEXT NOT NULL DEFAULT '',
		source_medium        TEXT NOT NULL DEFAULT '',
		source_campaign      TEXT NOT NULL DEFAULT '',
		site                 TEXT NOT NULL DEFAULT '',
		manager_id           BIGINT,
		order_method         TEXT NOT NULL DEFAULT '',
		custom_fields        JSONB NOT NULL DEFAULT '{}'::jsonb,
		raw_data             JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status)`,
	`CREATE INDEX IF NOT EXISTS orders_custom_fields_idx ON orders USING GIN (custom_fields)`,

	/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS customers (
		id            BIGINT PRIMARY KEY,
		external_id   TEXT NOT NULL DEFAULT '',
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL DEFAULT '',
		phone         TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		site          TEXT NOT NULL DEFAULT '',
		vip           BOOLEAN NOT NULL DEFAULT FALSE,
		bad           BOOLEAN NOT NULL DEFAULT FALSE,
		tags          JSONB NOT NULL DEFAULT '[]'::jsonb,
		custom_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
		ltv           NUMERIC(14,2) NOT NULL DEFAULT 0,
		average_check NUMERIC(14,2) NOT NULL DEFAULT 0,
		orders_count  INTEGER NOT NULL DEFAULT 0,
		raw_data      JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS customers_created_at_idx ON customers (created_at)`,

	/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync_metadata (
		entity              TEXT PRIMARY KEY,
		last_sync_timestamp TIMESTAMPTZ NOT NULL,
		synced              INTEGER NOT NULL DEFAULT 0,
		duration_ms         BIGINT NOT NULL DEFAULT 0,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the mirror tables if they don't exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range migrations {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
