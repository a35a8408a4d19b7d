package member

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend persists records in PostgreSQL.
// The pool is owned by the caller; Close is a no-op.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	schema string
}

// BackendOption configures PostgresBackend.
type BackendOption func(*PostgresBackend) error

// WithSchema sets the DB schema used by the backend (default: "norman").
func WithSchema(schema string) BackendOption {
	return func(b *PostgresBackend) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		b.schema = schema
		return nil
	}
}

// NewPostgresBackend constructs a PostgresBackend.
func NewPostgresBackend(pool *pgxpool.Pool, opts ...BackendOption) (*PostgresBackend, error) {
	b := &PostgresBackend{pool: pool, schema: "norman"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.pool == nil {
		return nil, ErrInvalidInput
	}
	return b, nil
}

// EnsureSchema creates the schema and members table when missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	members := pgIdent(b.schema, "members")
	_, err := b.pool.Exec(ctx, fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT '',
  key        TEXT NOT NULL DEFAULT '',
  approved   BOOLEAN NOT NULL DEFAULT FALSE,
  valid      BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`, pgx.Identifier{b.schema}.Sanitize(), members))
	if err != nil {
		return fmt.Errorf("ensure members schema: %w", err)
	}
	return nil
}

// Close is a no-op (the app owns the pool).
func (b *PostgresBackend) Close() error { return nil }

func (b *PostgresBackend) Load(ctx context.Context, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	members := pgIdent(b.schema, "members")
	var rec Record
	err := b.pool.QueryRow(ctx,
		`SELECT id, name, avatar_url, key, approved, valid
		   FROM `+members+`
		  WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.DisplayName, &rec.AvatarRef, &rec.Key, &rec.Approved, &rec.Valid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func (b *PostgresBackend) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	members := pgIdent(b.schema, "members")
	_, err := b.pool.Exec(ctx,
		`INSERT INTO `+members+` (id, name, avatar_url, key, approved, valid, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   avatar_url = EXCLUDED.avatar_url,
		   key = EXCLUDED.key,
		   approved = EXCLUDED.approved,
		   valid = EXCLUDED.valid,
		   updated_at = now()`,
		rec.ID, rec.DisplayName, rec.AvatarRef, rec.Key, rec.Approved, rec.Valid,
	)
	return err
}

func (b *PostgresBackend) Scan(ctx context.Context, fn func(Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	members := pgIdent(b.schema, "members")
	rows, err := b.pool.Query(ctx,
		`SELECT id, name, avatar_url, key, approved, valid FROM `+members+` ORDER BY id`)
	if err != nil {
		return err
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.DisplayName, &rec.AvatarRef, &rec.Key, &rec.Approved, &rec.Valid)
		return rec, err
	})
	if err != nil {
		return err
	}

	for _, r := range recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
