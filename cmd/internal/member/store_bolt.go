package member

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const membersBucket = "members"

// BoltBackend keeps records as JSON values in a single bbolt bucket keyed by id.
// Every Save is its own read-write transaction, which bbolt fsyncs on commit.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) a bbolt database file at path.
func OpenBolt(path string) (*BoltBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	b := &BoltBackend{db: db}
	if err := b.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying bbolt database.
func (b *BoltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *BoltBackend) Load(ctx context.Context, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	var (
		rec   Record
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(membersBucket))
		if bucket == nil {
			return fmt.Errorf("members bucket is missing")
		}
		payload := bucket.Get([]byte(id))
		if payload == nil {
			return nil
		}
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("unmarshal member %s: %w", id, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

func (b *BoltBackend) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal member: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(membersBucket))
		if bucket == nil {
			return fmt.Errorf("members bucket is missing")
		}
		return bucket.Put([]byte(rec.ID), payload)
	})
}

func (b *BoltBackend) Scan(ctx context.Context, fn func(Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var recs []Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(membersBucket))
		if bucket == nil {
			return fmt.Errorf("members bucket is missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal member %s: %w", string(k), err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return err
	}

	// Callbacks run outside the read transaction so they may call back into the store.
	for _, r := range recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (b *BoltBackend) ensureBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(membersBucket)); err != nil {
			return fmt.Errorf("create members bucket: %w", err)
		}
		return nil
	})
}
