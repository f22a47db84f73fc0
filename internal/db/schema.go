package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; every statement may run on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS annotations (
		identity   TEXT PRIMARY KEY,
		kind       TEXT NOT NULL CHECK (kind IN ('feed', 'derived')),
		price      NUMERIC(10,3) NOT NULL CHECK (price > 0),
		updated_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS annotations_updated_at_idx ON annotations (updated_at DESC)`,
}

// Migrate creates the annotation tables.
func Migrate(ctx context.Context, p *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema step %d: %w", i+1, err)
		}
	}
	return nil
}
