package projectdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotFound is returned when a project document does not exist.
var ErrNotFound = errors.New("project document not found")

// Notification is one raw change from the feed: the changed key and the
// sequence token it carries.
type Notification struct {
	Key    string
	Cursor uint64
}

// Feed is the narrow surface of the upstream store the feed consumes.
// jetstream KV buckets satisfy it through feedBucket; tests use a fake.
type Feed interface {
	// Fetch reads one raw document by id.
	Fetch(ctx context.Context, id string) ([]byte, error)
	// Notifications streams change notifications with cursors strictly
	// greater than since. The channel closes when ctx is cancelled or the
	// underlying feed ends.
	Notifications(ctx context.Context, since uint64) (<-chan Notification, error)
}

// Change is one resolved change from the feed: the fetched document and
// the cursor to persist once it is handled.
type Change struct {
	Doc    *ProjectDocument
	Cursor uint64
}

// Store provides read-only access to the upstream projects database.
type Store struct {
	feed   Feed
	cursor *CursorFile
	logger *slog.Logger
}

// NewStore creates a projects store over a feed with a durable cursor.
func NewStore(feed Feed, cursor *CursorFile, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{feed: feed, cursor: cursor, logger: logger}
}

// Cursor returns the durable cursor backing the changes feed.
func (s *Store) Cursor() *CursorFile {
	return s.cursor
}

// Fetch reads a project document by id.
func (s *Store) Fetch(ctx context.Context, id string) (*ProjectDocument, error) {
	raw, err := s.feed.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	var doc ProjectDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal project document %s: %w", id, err)
	}
	if doc.ProjectID == "" {
		doc.ProjectID = id
	}
	return &doc, nil
}

// Changes resumes the upstream changes feed from the persisted cursor and
// streams resolved changes. For each notification the full document is
// fetched and the cursor is persisted; fetch errors are logged and
// skipped with the cursor still advancing. The stream ends when ctx is
// cancelled or the underlying feed closes.
func (s *Store) Changes(ctx context.Context) (<-chan Change, error) {
	since := s.cursor.Load()
	notifications, err := s.feed.Notifications(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("open changes feed: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		for n := range notifications {
			doc, err := s.Fetch(ctx, n.Key)
			if err != nil {
				s.logger.Error("skipping change, document fetch failed",
					"doc", n.Key, "cursor", n.Cursor, "error", err)
				s.advance(n.Cursor)
				continue
			}
			select {
			case out <- Change{Doc: doc, Cursor: n.Cursor}:
				s.advance(n.Cursor)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) advance(cursor uint64) {
	if err := s.cursor.Save(cursor); err != nil {
		s.logger.Error("persisting change cursor failed", "cursor", cursor, "error", err)
	}
}

// feedBucket adapts a jetstream KV bucket to the Feed interface. The KV
// stream sequence is the change cursor.
type feedBucket struct {
	kv jetstream.KeyValue
}

// NewKVFeed wraps a jetstream KV bucket as a change feed.
func NewKVFeed(kv jetstream.KeyValue) Feed {
	return &feedBucket{kv: kv}
}

func (f *feedBucket) Fetch(ctx context.Context, id string) ([]byte, error) {
	entry, err := f.kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch project document %s: %w", id, err)
	}
	return entry.Value(), nil
}

func (f *feedBucket) Notifications(ctx context.Context, since uint64) (<-chan Notification, error) {
	opts := []jetstream.WatchOpt{jetstream.IgnoreDeletes()}
	if since > 0 {
		opts = append(opts, jetstream.ResumeFromRevision(since+1))
	}
	watcher, err := f.kv.WatchAll(ctx, opts...)
	if err != nil {
		return nil, err
	}

	out := make(chan Notification)
	go func() {
		defer close(out)
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					// Initial replay marker; live updates follow.
					continue
				}
				select {
				case out <- Notification{Key: entry.Key(), Cursor: entry.Revision()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
