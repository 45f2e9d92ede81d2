package driver

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		price       NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
		image       TEXT,
		description TEXT,
		category    TEXT,
		store       TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS products_category_idx ON products (LOWER(category))`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		session_id TEXT,
		product_id BIGINT,
		quantity   INTEGER,
		processed  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the storefront tables when they do not exist.
func Migrate(ctx context.Context, conn Querier) error {
	for i, stmt := range schema {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
