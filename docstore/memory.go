package docstore

import (
	"context"
	"sync"
)

// MemoryBucket is an in-memory Bucket with the same revision semantics as
// a jetstream KV bucket. Used by tests.
type MemoryBucket struct {
	mu      sync.Mutex
	entries map[string]Entry
	seq     uint64
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{entries: make(map[string]Entry)}
}

func (b *MemoryBucket) Get(ctx context.Context, key string) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	return e, nil
}

func (b *MemoryBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; ok {
		return 0, ErrKeyExists
	}
	b.seq++
	b.entries[key] = Entry{Key: key, Value: append([]byte(nil), value...), Revision: b.seq}
	return b.seq, nil
}

func (b *MemoryBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	if e.Revision != revision {
		return 0, ErrConflict
	}
	b.seq++
	b.entries[key] = Entry{Key: key, Value: append([]byte(nil), value...), Revision: b.seq}
	return b.seq, nil
}

func (b *MemoryBucket) Keys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	return keys, nil
}
