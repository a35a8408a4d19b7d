package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/volskaya/norman/cmd/internal/member"
)

// openBackend opens the configured member backend. The returned pool is
// non-nil only for Postgres; the app owns its lifecycle.
func openBackend(ctx context.Context, cfg Config, log Logger) (member.Backend, *pgxpool.Pool, error) {
	switch cfg.Backend {
	case BackendMemory:
		log.Warn("store.memory", "note", "records are lost on exit")
		return member.NewMemoryBackend(), nil, nil

	case BackendBolt, BackendSQLite:
		if err := ensureDir(cfg.DataPath); err != nil {
			return nil, nil, err
		}
		var (
			b   member.Backend
			err error
		)
		if cfg.Backend == BackendBolt {
			b, err = member.OpenBolt(cfg.DataPath)
		} else {
			b, err = member.OpenSQLite(cfg.DataPath)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
		}
		log.Info("store.open", "backend", cfg.Backend, "path", cfg.DataPath)
		return b, nil, nil

	case BackendPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		b, err := member.NewPostgresBackend(pool, member.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := b.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("store.open", "backend", cfg.Backend, "schema", cfg.DBSchema)
		return b, pool, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
