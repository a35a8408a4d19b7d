package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS members (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT '',
  key        TEXT NOT NULL DEFAULT '',
  approved   INTEGER NOT NULL DEFAULT 0,
  valid      INTEGER NOT NULL DEFAULT 0
);`

// SQLiteBackend stores records in a single SQLite table.
// synchronous=FULL makes every committed write durable before Save returns.
type SQLiteBackend struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteBackend{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.sqlDB == nil {
		return nil
	}
	return b.sqlDB.Close()
}

func (b *SQLiteBackend) Load(ctx context.Context, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	var rec Record
	err := b.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, avatar_url, key, approved, valid FROM members WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.DisplayName, &rec.AvatarRef, &rec.Key, &rec.Approved, &rec.Valid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("load member %s: %w", id, err)
	}
	return rec, true, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.sqlDB.ExecContext(ctx,
		`INSERT INTO members (id, name, avatar_url, key, approved, valid)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   avatar_url = excluded.avatar_url,
		   key = excluded.key,
		   approved = excluded.approved,
		   valid = excluded.valid`,
		rec.ID, rec.DisplayName, rec.AvatarRef, rec.Key, rec.Approved, rec.Valid,
	)
	if err != nil {
		return fmt.Errorf("save member %s: %w", rec.ID, err)
	}
	return nil
}

func (b *SQLiteBackend) Scan(ctx context.Context, fn func(Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rows, err := b.sqlDB.QueryContext(ctx,
		`SELECT id, name, avatar_url, key, approved, valid FROM members ORDER BY id`)
	if err != nil {
		return fmt.Errorf("scan members: %w", err)
	}

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.DisplayName, &rec.AvatarRef, &rec.Key, &rec.Approved, &rec.Valid); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan member row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, r := range recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
