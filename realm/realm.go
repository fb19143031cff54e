// Package realm defines the contract between the orchestration core and
// domain-specific processing realms, and provides the project lifecycle
// template plus default hook implementations realms build on.
package realm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/hpc"
	"github.com/ngisweden/yggdrasil/projectdb"
)

// Sample is one processing unit within a realm. Status and job id writes
// persist to the document store.
type Sample interface {
	ID() string
	Status() docstore.SampleStatus
	SetStatus(ctx context.Context, status docstore.SampleStatus) error
	JobID() string
	SetJobID(ctx context.Context, jobID string) error
	// SubmitJob submits the sample's job script to the scheduler.
	SubmitJob(ctx context.Context) error
	// PostProcess drives the sample from processed to completed or
	// post_processing_failed.
	PostProcess(ctx context.Context) error
}

// Realm is the contract the lifecycle template drives. Base provides
// default implementations for everything except domain-specific hooks;
// concrete realms embed Base and override what they need.
type Realm interface {
	// Proceed gates the handler: false means this project should not be
	// processed by this realm.
	Proceed() bool
	ProjectID() string
	Logger() *slog.Logger

	// EnsureDocument returns the Yggdrasil document for the project,
	// creating it on first observation.
	EnsureDocument(ctx context.Context) (*docstore.Document, error)
	SetProjectStatus(ctx context.Context, status docstore.ProjectStatus) error
	CheckRequiredFields() bool
	// AutoSubmit reports whether jobs are submitted automatically or the
	// manual-submission branch applies.
	AutoSubmit() bool

	ExtractSamples(ctx context.Context) error
	RegisterSamples(ctx context.Context) error
	PreProcessSamples(ctx context.Context) error
	SubmitSampleJobs(ctx context.Context) error
	FetchAndMergeSampleInfo(ctx context.Context) error
	MonitorHPCJobs(ctx context.Context) error
	PostProcessSamples(ctx context.Context) error
	FinalizeProject(ctx context.Context) error

	Samples() []Sample
}

// Deps carries the collaborators a realm is constructed with.
type Deps struct {
	Store      *docstore.Store
	Jobs       hpc.JobManager
	ScriptsDir string
	Logger     *slog.Logger
}

// Factory constructs a realm instance for one project document.
type Factory func(doc *projectdb.ProjectDocument, deps Deps) (Realm, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a realm factory under a module identifier. Realm packages
// call this from init(); the registry is the only extension point for
// realms.
func Register(moduleID string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[moduleID] = factory
}

// Lookup returns the factory registered under a module identifier.
func Lookup(moduleID string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[moduleID]
	return f, ok
}

// Registered lists the registered module identifiers, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New constructs a realm through its registered factory.
func New(moduleID string, doc *projectdb.ProjectDocument, deps Deps) (Realm, error) {
	factory, ok := Lookup(moduleID)
	if !ok {
		return nil, fmt.Errorf("no realm registered for module %q", moduleID)
	}
	return factory(doc, deps)
}
