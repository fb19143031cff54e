// Package tenx implements the realm for 10X Chromium projects.
package tenx

import (
	"context"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/projectdb"
	"github.com/ngisweden/yggdrasil/realm"
)

// ModuleID is the registry identifier for this realm.
const ModuleID = "tenx"

func init() {
	realm.Register(ModuleID, New)
}

// Realm processes 10X projects with the default lifecycle hooks.
type Realm struct {
	*realm.Base
}

// New constructs the realm for one project document.
func New(doc *projectdb.ProjectDocument, deps realm.Deps) (realm.Realm, error) {
	return &Realm{Base: realm.NewBase(ModuleID, doc, deps)}, nil
}

// PreProcessSamples records the flowcells each sample was sequenced on
// before running the default pre-processing.
func (r *Realm) PreProcessSamples(ctx context.Context) error {
	if err := r.recordFlowcells(ctx); err != nil {
		return err
	}
	return r.Base.PreProcessSamples(ctx)
}

// recordFlowcells copies upstream per-sample flowcell ids into the
// Yggdrasil document. Inserts are idempotent.
func (r *Realm) recordFlowcells(ctx context.Context) error {
	doc := r.ProjectDoc()
	for id, info := range doc.Samples {
		fcs, ok := info.Details["flowcells"].([]any)
		if !ok {
			continue
		}
		for _, fc := range fcs {
			fcID, ok := fc.(string)
			if !ok {
				continue
			}
			err := r.Store().AddSample(ctx, r.ProjectID(), docstore.Sample{
				SampleID:  id,
				Flowcells: []string{fcID},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
