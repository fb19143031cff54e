package tenx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/projectdb"
	"github.com/ngisweden/yggdrasil/realm"
)

func tenxDoc(projectID string) *projectdb.ProjectDocument {
	return &projectdb.ProjectDocument{
		ID:          "doc-" + projectID,
		ProjectID:   projectID,
		ProjectName: "Test." + projectID,
		Details:     map[string]any{"library_construction_method": "10X Chromium: 3' GEX"},
		Samples: map[string]projectdb.SampleInfo{
			"S1": {Details: map[string]any{"flowcells": []any{"FC1", "FC2"}}},
			"S2": {Details: map[string]any{"flowcells": []any{"FC1"}}},
			"S3": {},
		},
	}
}

func TestRegistered(t *testing.T) {
	_, ok := realm.Lookup(ModuleID)
	assert.True(t, ok)
}

func TestPreProcessRecordsFlowcells(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewStore(docstore.NewMemoryBucket(), nil)
	deps := realm.Deps{Store: store, ScriptsDir: t.TempDir()}

	r, err := New(tenxDoc("P001"), deps)
	require.NoError(t, err)

	_, err = r.EnsureDocument(ctx)
	require.NoError(t, err)
	require.NoError(t, r.ExtractSamples(ctx))
	require.NoError(t, r.RegisterSamples(ctx))
	require.NoError(t, r.PreProcessSamples(ctx))

	doc, err := store.Get(ctx, "P001")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FC1", "FC2"}, doc.SampleByID("S1").Flowcells)
	assert.ElementsMatch(t, []string{"FC1"}, doc.SampleByID("S2").Flowcells)
	assert.Empty(t, doc.SampleByID("S3").Flowcells)

	// The default pre-processing still ran.
	assert.Equal(t, docstore.SamplePreProcessed, doc.SampleByID("S1").Status)

	// Re-running must not duplicate flowcell entries.
	require.NoError(t, r.PreProcessSamples(ctx))
	doc, err = store.Get(ctx, "P001")
	require.NoError(t, err)
	assert.Len(t, doc.SampleByID("S1").Flowcells, 2)
}
