package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// Entry is one revisioned value read from a bucket.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// Bucket is the narrow revisioned key-value surface the store consumes.
// jetstream KV buckets satisfy it through kvBucket; tests use an
// in-memory fake.
type Bucket interface {
	Get(ctx context.Context, key string) (Entry, error)
	// Create stores a new key, failing with ErrKeyExists semantics when
	// the key is already present.
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	// Update stores value only if revision matches the stored revision,
	// failing with conflict semantics otherwise.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Keys(ctx context.Context) ([]string, error)
}

// Bucket sentinel errors.
var (
	// ErrKeyNotFound is returned by Get for a missing key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned by Create for an existing key.
	ErrKeyExists = errors.New("key already exists")
)

// kvBucket adapts a jetstream KV bucket to the Bucket interface.
type kvBucket struct {
	kv jetstream.KeyValue
}

// NewKVBucket wraps a jetstream KV bucket.
func NewKVBucket(kv jetstream.KeyValue) Bucket {
	return &kvBucket{kv: kv}
}

func (b *kvBucket) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Entry{}, ErrKeyNotFound
		}
		return Entry{}, err
	}
	return Entry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (b *kvBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := b.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrKeyExists
		}
		return 0, err
	}
	return rev, nil
}

func (b *kvBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := b.kv.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongSequence(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return rev, nil
}

func (b *kvBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

// isWrongSequence detects the server's revision-mismatch error.
func isWrongSequence(err error) bool {
	return err != nil && strings.Contains(err.Error(), "wrong last sequence")
}

// OpenBucket returns the named KV bucket, creating it if necessary.
func OpenBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Yggdrasil %s storage", strings.ToLower(name)),
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	return kv, nil
}
