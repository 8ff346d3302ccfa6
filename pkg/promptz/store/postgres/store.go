package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements promptz.Store using PostgreSQL. Each kind lives in its own
// table named prefix + plural, e.g. "prompts".
type Store struct {
	db     DBTX
	schema string
	prefix string
}

var _ promptz.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithSchema places the tables in schema instead of the search path
func WithSchema(schema string) Option {
	return func(s *Store) {
		s.schema = schema
	}
}

// WithTablePrefix prefixes every table name
func WithTablePrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new PostgreSQL store
func New(db DBTX, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewWithPool creates a new PostgreSQL store with connection pool
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Store {
	return New(pool, opts...)
}

func (s *Store) table(kind promptz.Kind) string {
	if s.schema != "" {
		return pgx.Identifier{s.schema, kind.Table(s.prefix)}.Sanitize()
	}
	return pgx.Identifier{kind.Table(s.prefix)}.Sanitize()
}

const columns = `id, slug, owner, name, description, content, howto, tags, scope,
	source_url, copy_count, download_count, created_at, updated_at`

func scanEntity(row pgx.Row) (*promptz.Entity, error) {
	var e promptz.Entity
	var scope string
	err := row.Scan(
		&e.ID, &e.Slug, &e.Owner, &e.Name, &e.Description, &e.Content, &e.HowTo,
		&e.Tags, &scope, &e.SourceURL, &e.CopyCount, &e.DownloadCount,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Scope = promptz.Scope(scope)
	if e.Tags == nil {
		e.Tags = []string{}
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func tags(e *promptz.Entity) []string {
	if e.Tags == nil {
		return []string{}
	}
	return e.Tags
}

// Error handling helper
func (s *Store) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return promptz.ErrConflict
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", promptz.ErrInvalidRequest, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - run migrate first")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (s *Store) Create(ctx context.Context, kind promptz.Kind, entity *promptz.Entity) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`, s.table(kind))

	tag, err := s.db.Exec(ctx, query,
		entity.ID, entity.Slug, entity.Owner, entity.Name, entity.Description,
		entity.Content, entity.HowTo, tags(entity), string(entity.Scope), entity.SourceURL,
		entity.CopyCount, entity.DownloadCount, entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return s.handlePostgresError("create", err)
	}
	if tag.RowsAffected() == 0 {
		return promptz.ErrConflict
	}
	return nil
}

func (s *Store) Update(ctx context.Context, kind promptz.Kind, owner string, entity *promptz.Entity) (*promptz.Entity, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET slug = $3, name = $4, description = $5, content = $6, howto = $7,
			tags = $8, scope = $9, source_url = $10, updated_at = $11
		WHERE id = $1 AND owner = $2
		RETURNING `+columns, s.table(kind))

	row := s.db.QueryRow(ctx, query,
		entity.ID, owner, entity.Slug, entity.Name, entity.Description, entity.Content,
		entity.HowTo, tags(entity), string(entity.Scope), entity.SourceURL, entity.UpdatedAt,
	)
	updated, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promptz.ErrUnauthorized
		}
		return nil, s.handlePostgresError("update", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, kind promptz.Kind, id, owner string) (*promptz.Entity, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND owner = $2 RETURNING `+columns, s.table(kind))

	deleted, err := scanEntity(s.db.QueryRow(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promptz.ErrUnauthorized
		}
		return nil, s.handlePostgresError("delete", err)
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

	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE id = $1 RETURNING `+columns,
		s.table(kind), column, column)

	updated, err := scanEntity(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promptz.ErrNotFound
		}
		return nil, s.handlePostgresError("increment", err)
	}
	return updated, nil
}

func (s *Store) Get(ctx context.Context, kind promptz.Kind, id string) (*promptz.Entity, error) {
	query := fmt.Sprintf(`SELECT `+columns+` FROM %s WHERE id = $1`, s.table(kind))

	e, err := scanEntity(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promptz.ErrNotFound
		}
		return nil, s.handlePostgresError("get", err)
	}
	return e, nil
}
