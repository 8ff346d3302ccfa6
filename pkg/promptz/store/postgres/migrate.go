package postgres

import (
	"context"
	"fmt"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/jackc/pgx/v5"
)

// Migrate creates the schema and one table per kind if they do not exist.
func (s *Store) Migrate(ctx context.Context, kinds ...promptz.Kind) error {
	if s.schema != "" {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{s.schema}.Sanitize()
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return s.handlePostgresError("migrate", err)
		}
	}

	for _, kind := range kinds {
		stmt := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				slug TEXT NOT NULL,
				owner TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				howto TEXT NOT NULL DEFAULT '',
				tags TEXT[] NOT NULL DEFAULT '{}',
				scope VARCHAR(16) NOT NULL DEFAULT 'private',
				source_url TEXT NOT NULL DEFAULT '',
				copy_count BIGINT NOT NULL DEFAULT 0,
				download_count BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`, s.table(kind))
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return s.handlePostgresError("migrate "+kind.Name, err)
		}
	}
	return nil
}
