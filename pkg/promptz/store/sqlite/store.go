// Package sqlite stores entities in a single SQLite file. It backs local
// development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	_ "modernc.org/sqlite"
)

// Store implements promptz.Store on a SQLite database.
type Store struct {
	db     *sql.DB
	prefix string
}

var _ promptz.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path.
func Open(path, tablePrefix string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer at a time keeps counter updates serialized without SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &Store{db: db, prefix: tablePrefix}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) table(kind promptz.Kind) string {
	return `"` + strings.ReplaceAll(kind.Table(s.prefix), `"`, `""`) + `"`
}

// Migrate creates one table per kind if it does not exist.
func (s *Store) Migrate(ctx context.Context, kinds ...promptz.Kind) error {
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
				tags TEXT NOT NULL DEFAULT '[]',
				scope TEXT NOT NULL DEFAULT 'private',
				source_url TEXT NOT NULL DEFAULT '',
				copy_count INTEGER NOT NULL DEFAULT 0,
				download_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`, s.table(kind))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", kind.Name, err)
		}
	}
	return nil
}

const columns = `id, slug, owner, name, description, content, howto, tags, scope,
	source_url, copy_count, download_count, created_at, updated_at`

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeTags(e *promptz.Entity) (string, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func scanEntity(row *sql.Row) (*promptz.Entity, error) {
	var (
		e                    promptz.Entity
		tags, scope          string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&e.ID, &e.Slug, &e.Owner, &e.Name, &e.Description, &e.Content, &e.HowTo,
		&tags, &scope, &e.SourceURL, &e.CopyCount, &e.DownloadCount,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Scope = promptz.Scope(scope)
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", e.ID, err)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", e.ID, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at of %s: %w", e.ID, err)
	}
	return &e, nil
}

func (s *Store) Create(ctx context.Context, kind promptz.Kind, entity *promptz.Entity) error {
	tags, err := encodeTags(entity)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, s.table(kind))

	res, err := s.db.ExecContext(ctx, query,
		entity.ID, entity.Slug, entity.Owner, entity.Name, entity.Description,
		entity.Content, entity.HowTo, tags, string(entity.Scope), entity.SourceURL,
		entity.CopyCount, entity.DownloadCount,
		formatTime(entity.CreatedAt), formatTime(entity.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create %s %s: %w", kind.Name, entity.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create %s %s: %w", kind.Name, entity.ID, err)
	}
	if n == 0 {
		return promptz.ErrConflict
	}
	return nil
}

func (s *Store) Update(ctx context.Context, kind promptz.Kind, owner string, entity *promptz.Entity) (*promptz.Entity, error) {
	tags, err := encodeTags(entity)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET slug = ?, name = ?, description = ?, content = ?, howto = ?,
			tags = ?, scope = ?, source_url = ?, updated_at = ?
		WHERE id = ? AND owner = ?
		RETURNING `+columns, s.table(kind))

	row := s.db.QueryRowContext(ctx, query,
		entity.Slug, entity.Name, entity.Description, entity.Content, entity.HowTo,
		tags, string(entity.Scope), entity.SourceURL, formatTime(entity.UpdatedAt),
		entity.ID, owner,
	)
	updated, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, promptz.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", kind.Name, entity.ID, err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, kind promptz.Kind, id, owner string) (*promptz.Entity, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND owner = ? RETURNING `+columns, s.table(kind))

	deleted, err := scanEntity(s.db.QueryRowContext(ctx, query, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, promptz.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s %s: %w", kind.Name, id, err)
	}
	return deleted, nil
}

func (s *Store) Increment(ctx context.Context, kind promptz.Kind, id string, counter promptz.Counter) (*promptz.Entity, error) {
	var column string
	switch counter {
	case promptz.CounterCopy:
		column = "copy_count"
	case promptz.CounterDownload:
		column = "download_count"
	default:
		return nil, fmt.Errorf("%w: unknown counter %q", promptz.ErrInvalidRequest, counter)
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE id = ? RETURNING `+columns,
		s.table(kind), column, column)

	updated, err := scanEntity(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, promptz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment %s %s: %w", kind.Name, id, err)
	}
	return updated, nil
}

func (s *Store) Get(ctx context.Context, kind promptz.Kind, id string) (*promptz.Entity, error) {
	query := fmt.Sprintf(`SELECT `+columns+` FROM %s WHERE id = ?`, s.table(kind))

	e, err := scanEntity(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, promptz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind.Name, id, err)
	}
	return e, nil
}
