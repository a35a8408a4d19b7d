package member

import (
	"context"
	"sync"
)

// MemoryBackend is a dev/test-only backend. Nothing survives a restart.
type MemoryBackend struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{recs: make(map[string]Record)}
}

// Close closes the backend (noop for in-memory).
func (b *MemoryBackend) Close() error { return nil }

func (b *MemoryBackend) Load(ctx context.Context, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.recs[id]
	return rec, ok, nil
}

func (b *MemoryBackend) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.recs[rec.ID] = rec
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Scan(ctx context.Context, fn func(Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	snapshot := make([]Record, 0, len(b.recs))
	for _, r := range b.recs {
		snapshot = append(snapshot, r)
	}
	b.mu.RUnlock()

	for _, r := range snapshot {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
