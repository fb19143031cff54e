package docstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *MemoryBucket) {
	t.Helper()
	bucket := NewMemoryBucket()
	return NewStore(bucket, nil), bucket
}

func TestStoreCreate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	doc, err := store.Create(ctx, CreateParams{
		ProjectID:         "P001",
		ProjectsReference: "ref1",
		ProjectName:       "Test.Project",
		Method:            "tenx",
		Sensitive:         true,
	})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, ProjectPending, doc.ProjectStatus)
	assert.NotZero(t, doc.Revision())
	assert.True(t, doc.DeliveryInfo.Sensitive)

	// A second create for the same project keeps the stored document.
	doc.AddSample(Sample{SampleID: "S1"})
	require.NoError(t, store.Save(ctx, doc))

	again, err := store.Create(ctx, CreateParams{ProjectID: "P001", Method: "smartseq3"})
	require.NoError(t, err)
	assert.Equal(t, "tenx", again.Method)
	assert.Len(t, again.Samples, 1)
}

func TestStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	doc, err := store.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, doc)

	ok, err := store.Exists(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

// racingBucket lets a concurrent writer slip in between the store's
// revision read and its update.
type racingBucket struct {
	*MemoryBucket
	onGet func()
}

func (b *racingBucket) Get(ctx context.Context, key string) (Entry, error) {
	e, err := b.MemoryBucket.Get(ctx, key)
	if b.onGet != nil {
		b.onGet()
	}
	return e, err
}

func TestStoreSaveConflict(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBucket()
	bucket := &racingBucket{MemoryBucket: inner}
	store := NewStore(bucket, nil)

	doc, err := store.Create(ctx, CreateParams{ProjectID: "P001", Method: "tenx"})
	require.NoError(t, err)

	var raced bool
	bucket.onGet = func() {
		if raced {
			return
		}
		raced = true
		e, err := inner.Get(ctx, "P001")
		require.NoError(t, err)
		_, err = inner.Update(ctx, "P001", e.Value, e.Revision)
		require.NoError(t, err)
	}

	before := testutil.ToFloat64(saveConflicts)
	doc.AddSample(Sample{SampleID: "S1"})
	err = store.Save(ctx, doc)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, before+1, testutil.ToFloat64(saveConflicts))
}

func TestStoreUpdateDropsConflictingWrite(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBucket()
	bucket := &racingBucket{MemoryBucket: inner}
	store := NewStore(bucket, nil)

	_, err := store.Create(ctx, CreateParams{ProjectID: "P001", Method: "tenx"})
	require.NoError(t, err)
	require.NoError(t, store.AddSample(ctx, "P001", Sample{SampleID: "S1"}))

	gets := 0
	bucket.onGet = func() {
		gets++
		// Update performs two reads (load, then revision check before the
		// write). Interfere after the second so the write conflicts.
		if gets != 2 {
			return
		}
		e, err := inner.Get(ctx, "P001")
		require.NoError(t, err)
		_, err = inner.Update(ctx, "P001", e.Value, e.Revision)
		require.NoError(t, err)
	}

	// The conflicting write is dropped without error; the next change-feed
	// event re-reads the document.
	require.NoError(t, store.UpdateSampleStatus(ctx, "P001", "S1", SampleProcessing))

	doc, err := store.Get(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, SamplePending, doc.SampleByID("S1").Status)
}

func TestStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Create(ctx, CreateParams{ProjectID: "P001", Method: "tenx"})
	require.NoError(t, err)

	require.NoError(t, store.AddSample(ctx, "P001", Sample{SampleID: "S1"}))
	require.NoError(t, store.UpdateSampleStatus(ctx, "P001", "S1", SampleProcessing))
	require.NoError(t, store.SetSampleJobID(ctx, "P001", "S1", "4711"))

	doc, err := store.Get(ctx, "P001")
	require.NoError(t, err)
	s := doc.SampleByID("S1")
	require.NotNil(t, s)
	assert.Equal(t, SampleProcessing, s.Status)
	assert.Equal(t, "4711", s.JobID)
	assert.Equal(t, ProjectProcessing, doc.ProjectStatus)

	// Updating an unknown project is a logged no-op, not an error.
	require.NoError(t, store.UpdateSampleStatus(ctx, "nope", "S1", SampleProcessing))
}

func TestStoreDelivery(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Create(ctx, CreateParams{ProjectID: "P001", Method: "tenx"})
	require.NoError(t, err)
	require.NoError(t, store.AddSample(ctx, "P001", Sample{SampleID: "S1"}))

	entry := DeliveryResult{DDSProjectID: "dds_001", DateUploaded: "2026-02-01", SamplesIncluded: []string{"S1"}}
	require.NoError(t, store.AddDeliveryResult(ctx, "P001", entry))
	require.NoError(t, store.MarkSamplesDelivered(ctx, "P001", []string{"S1", "ghost"}))

	doc, err := store.Get(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, doc.DeliveryInfo.DeliveryResults, 1)
	assert.True(t, doc.SampleByID("S1").Delivered)
}

func TestStoreRejectsIncompleteReport(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Create(ctx, CreateParams{ProjectID: "P001", Method: "tenx"})
	require.NoError(t, err)

	err = store.AddNGIReport(ctx, "P001", NGIReport{FileName: "r.html"})
	require.Error(t, err)

	doc, err := store.Get(ctx, "P001")
	require.NoError(t, err)
	assert.Empty(t, doc.NGIReports)
}
