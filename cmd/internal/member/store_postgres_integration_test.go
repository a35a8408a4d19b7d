package member

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when NORMAN_TEST_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresBackend_StoreContract(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := "norman_member_it_" + strings.ToLower(newTestULID(t))
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	backend, err := NewPostgresBackend(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := backend.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	st, err := NewStore(backend)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	created, err := st.UpsertBlank(ctx, "1", "alice#0001", "")
	if err != nil || !created {
		t.Fatalf("upsert: created=%v err=%v", created, err)
	}
	created, err = st.UpsertBlank(ctx, "1", "alice#0001", "")
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}

	rec, err := st.SetApproval(ctx, Identity{ID: "1"}, true)
	if err != nil {
		t.Fatalf("set approval: %v", err)
	}
	if rec.Key == "" || !rec.Approved || rec.DisplayName != "alice#0001" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	byName, err := st.GetByName(ctx, "alice#0001")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName != rec {
		t.Fatalf("by name=%+v want=%+v", byName, rec)
	}

	if err := st.Invalidate(ctx, "1", true); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	got, err := st.Get(ctx, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != (Record{ID: "1", Key: rec.Key}) {
		t.Fatalf("after invalidate: %+v", got)
	}

	removed, err := st.Delete(ctx, "1")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if _, err := st.Get(ctx, "2"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("NORMAN_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: NORMAN_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse NORMAN_TEST_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (NORMAN_TEST_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func newTestULID(t *testing.T) string {
	t.Helper()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id.String()
}
