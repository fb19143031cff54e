// Package smartseq3 implements the realm for SmartSeq 3 projects.
package smartseq3

import (
	"context"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/projectdb"
	"github.com/ngisweden/yggdrasil/realm"
)

// ModuleID is the registry identifier for this realm.
const ModuleID = "smartseq3"

func init() {
	realm.Register(ModuleID, New)
}

// Realm processes SmartSeq 3 projects. Completed projects are held in
// pending_QC until a reviewer signs off, so finalization diverges from
// the default.
type Realm struct {
	*realm.Base
}

// New constructs the realm for one project document.
func New(doc *projectdb.ProjectDocument, deps realm.Deps) (realm.Realm, error) {
	return &Realm{Base: realm.NewBase(ModuleID, doc, deps)}, nil
}

// FinalizeProject parks the project in pending_QC and marks every
// completed sample as awaiting QC.
func (r *Realm) FinalizeProject(ctx context.Context) error {
	return r.Store().Update(ctx, r.ProjectID(), func(doc *docstore.Document) error {
		for _, s := range doc.Samples {
			if s.Status == docstore.SampleCompleted && s.QC == docstore.QCUnset {
				s.QC = docstore.QCPending
			}
		}
		doc.SetProjectStatus(docstore.ProjectPendingQC)
		r.Logger().Info("finalized project", "status", doc.ProjectStatus)
		return nil
	})
}
