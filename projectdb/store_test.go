package projectdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed replays canned documents and notifications.
type fakeFeed struct {
	docs          map[string][]byte
	notifications []Notification
	since         uint64
}

func (f *fakeFeed) Fetch(ctx context.Context, id string) ([]byte, error) {
	raw, ok := f.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (f *fakeFeed) Notifications(ctx context.Context, since uint64) (<-chan Notification, error) {
	f.since = since
	out := make(chan Notification)
	go func() {
		defer close(out)
		for _, n := range f.notifications {
			if n.Cursor <= since {
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func TestFetch(t *testing.T) {
	feed := &fakeFeed{docs: map[string][]byte{
		"doc1": []byte(`{"project_id": "P001", "project_name": "Test.Project"}`),
		"doc2": []byte(`{"project_name": "No.ID"}`),
	}}
	store := NewStore(feed, NewCursorFile(filepath.Join(t.TempDir(), "cursor")), nil)
	ctx := context.Background()

	doc, err := store.Fetch(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "P001", doc.ProjectID)

	// Documents without an explicit project id fall back to the key.
	doc, err = store.Fetch(ctx, "doc2")
	require.NoError(t, err)
	assert.Equal(t, "doc2", doc.ProjectID)

	_, err = store.Fetch(ctx, "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func collectChanges(t *testing.T, ch <-chan Change) []Change {
	t.Helper()
	var got []Change
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, c)
		case <-timeout:
			t.Fatal("timed out waiting for changes")
		}
	}
}

func TestChanges(t *testing.T) {
	feed := &fakeFeed{
		docs: map[string][]byte{
			"doc1": []byte(`{"project_id": "P001"}`),
			"doc2": []byte(`{"project_id": "P002"}`),
		},
		notifications: []Notification{
			{Key: "doc1", Cursor: 3},
			{Key: "ghost", Cursor: 4},
			{Key: "doc2", Cursor: 5},
		},
	}
	cursor := NewCursorFile(filepath.Join(t.TempDir(), "cursor"))
	store := NewStore(feed, cursor, nil)

	ch, err := store.Changes(context.Background())
	require.NoError(t, err)
	got := collectChanges(t, ch)

	// The unresolvable notification is skipped, its cursor still counts.
	require.Len(t, got, 2)
	assert.Equal(t, "P001", got[0].Doc.ProjectID)
	assert.Equal(t, "P002", got[1].Doc.ProjectID)
	assert.Equal(t, uint64(5), cursor.Load())
}

func TestChangesResumesFromCursor(t *testing.T) {
	feed := &fakeFeed{
		docs: map[string][]byte{
			"doc1": []byte(`{"project_id": "P001"}`),
			"doc2": []byte(`{"project_id": "P002"}`),
		},
		notifications: []Notification{
			{Key: "doc1", Cursor: 3},
			{Key: "doc2", Cursor: 5},
		},
	}
	cursor := NewCursorFile(filepath.Join(t.TempDir(), "cursor"))
	require.NoError(t, cursor.Save(3))
	store := NewStore(feed, cursor, nil)

	ch, err := store.Changes(context.Background())
	require.NoError(t, err)
	got := collectChanges(t, ch)

	assert.Equal(t, uint64(3), feed.since)
	require.Len(t, got, 1)
	assert.Equal(t, "P002", got[0].Doc.ProjectID)
}
