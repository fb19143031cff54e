package realm

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/hpc"
	"github.com/ngisweden/yggdrasil/projectdb"
	"github.com/ngisweden/yggdrasil/session"
)

// Base carries the shared state and default hook implementations of a
// realm. Concrete realms embed *Base and override the hooks they need;
// the lifecycle template always dispatches through the Realm interface so
// overrides take effect.
type Base struct {
	projectDoc *projectdb.ProjectDocument
	store      *docstore.Store
	jobs       hpc.JobManager
	scriptsDir string
	logger     *slog.Logger
	moduleID   string

	mu      sync.Mutex
	samples []Sample
	proceed bool
}

// NewBase creates the shared realm state for one project document.
func NewBase(moduleID string, doc *projectdb.ProjectDocument, deps Deps) *Base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Base{
		projectDoc: doc,
		store:      deps.Store,
		jobs:       deps.Jobs,
		scriptsDir: deps.ScriptsDir,
		logger:     logger.With("project", doc.ProjectID, "module", moduleID),
		moduleID:   moduleID,
	}
	b.proceed = b.CheckRequiredFields()
	return b
}

// Proceed reports whether the handler should run the lifecycle for this
// project.
func (b *Base) Proceed() bool {
	return b.proceed
}

// ProjectID returns the project identity.
func (b *Base) ProjectID() string {
	return b.projectDoc.ProjectID
}

// Logger returns the realm's logger, scoped to the project.
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// ProjectDoc returns the upstream project document.
func (b *Base) ProjectDoc() *projectdb.ProjectDocument {
	return b.projectDoc
}

// Store returns the Yggdrasil document store.
func (b *Base) Store() *docstore.Store {
	return b.store
}

// Jobs returns the HPC job manager.
func (b *Base) Jobs() hpc.JobManager {
	return b.jobs
}

// CheckRequiredFields verifies the upstream document carries everything
// the lifecycle needs.
func (b *Base) CheckRequiredFields() bool {
	doc := b.projectDoc
	if doc.ID == "" || doc.ProjectID == "" || doc.ProjectName == "" {
		b.logger.Error("project document missing identity fields")
		return false
	}
	if _, ok := doc.LibraryConstructionMethod(); !ok {
		b.logger.Error("project document missing library construction method")
		return false
	}
	return true
}

// AutoSubmit reports whether the auto-submission branch applies: the
// upstream submit flag, overridable by the session's manual-submit flag.
func (b *Base) AutoSubmit() bool {
	return b.projectDoc.SubmitJobs() && !session.ManualSubmit()
}

// EnsureDocument returns the Yggdrasil document, creating it on the first
// observation of this project id.
func (b *Base) EnsureDocument(ctx context.Context) (*docstore.Document, error) {
	doc, err := b.store.Get(ctx, b.ProjectID())
	if err != nil {
		return nil, err
	}
	if doc != nil {
		return doc, nil
	}
	method, _ := b.projectDoc.LibraryConstructionMethod()
	return b.store.Create(ctx, docstore.CreateParams{
		ProjectID:         b.ProjectID(),
		ProjectsReference: b.projectDoc.ID,
		ProjectName:       b.projectDoc.ProjectName,
		Method:            method,
		Sensitive:         true,
	})
}

// SetProjectStatus writes the project status to the store with logging.
func (b *Base) SetProjectStatus(ctx context.Context, status docstore.ProjectStatus) error {
	b.logger.Info("project status", "status", status)
	return b.store.SetProjectStatus(ctx, b.ProjectID(), status)
}

// Samples returns the in-memory sample handles built by ExtractSamples.
func (b *Base) Samples() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sample(nil), b.samples...)
}

// SetSamples replaces the in-memory sample handles. Realms overriding
// ExtractSamples use this to install their own.
func (b *Base) SetSamples(samples []Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = samples
}

// ExtractSamples builds sample handles from the upstream document.
// Samples aborted upstream are filtered out entirely and never
// registered. Persisted status and job id take precedence over fresh
// defaults when the Yggdrasil document already knows the sample.
func (b *Base) ExtractSamples(ctx context.Context) error {
	ygg, err := b.store.Get(ctx, b.ProjectID())
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(b.projectDoc.Samples))
	for id := range b.projectDoc.Samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	samples := make([]Sample, 0, len(ids))
	for _, id := range ids {
		info := b.projectDoc.Samples[id]
		if info.Aborted() {
			b.logger.Info("skipping aborted sample", "sample", id)
			continue
		}
		params := BaseSampleParams{
			ID:         id,
			ProjectID:  b.ProjectID(),
			Status:     docstore.SamplePending,
			ScriptPath: filepath.Join(b.scriptsDir, b.ProjectID(), id+".sh"),
			Store:      b.store,
			Jobs:       b.jobs,
			Logger:     b.logger,
		}
		if ygg != nil {
			if persisted := ygg.SampleByID(id); persisted != nil {
				params.Status = persisted.Status
				params.JobID = persisted.JobID
			}
		}
		samples = append(samples, NewBaseSample(params))
	}
	b.SetSamples(samples)
	b.logger.Info("extracted samples", "count", len(samples))
	return nil
}

// RegisterSamples registers the extracted samples in the document store,
// idempotently per sample id.
func (b *Base) RegisterSamples(ctx context.Context) error {
	for _, s := range b.Samples() {
		err := b.store.AddSample(ctx, b.ProjectID(), docstore.Sample{
			SampleID: s.ID(),
			Status:   s.Status(),
			JobID:    s.JobID(),
		})
		if err != nil {
			return fmt.Errorf("register sample %s: %w", s.ID(), err)
		}
	}
	return nil
}

// PreProcessSamples runs the default pre-processing: each not-yet-started
// sample is driven through pre_processing to pre_processed. Samples that
// do not end in pre_processed are excluded from submission by the status
// selection in SubmitSampleJobs.
func (b *Base) PreProcessSamples(ctx context.Context) error {
	for _, s := range b.Samples() {
		switch s.Status() {
		case docstore.SamplePending, docstore.SampleInitialized:
		default:
			continue
		}
		if err := s.SetStatus(ctx, docstore.SamplePreProcessing); err != nil {
			return err
		}
		if err := s.SetStatus(ctx, docstore.SamplePreProcessed); err != nil {
			return err
		}
	}
	return nil
}

// SubmitSampleJobs fans out job submission for every pre-processed
// sample. A failed submission is logged and leaves the sample eligible
// for a later pass; it never aborts the other samples.
func (b *Base) SubmitSampleJobs(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, s := range b.Samples() {
		if s.Status() != docstore.SamplePreProcessed {
			continue
		}
		wg.Add(1)
		go func(s Sample) {
			defer wg.Done()
			if err := s.SubmitJob(ctx); err != nil {
				b.logger.Error("sample job submission failed", "sample", s.ID(), "error", err)
			}
		}(s)
	}
	wg.Wait()
	return nil
}

// monitoredStatuses selects the samples MonitorHPCJobs watches.
var monitoredStatuses = map[docstore.SampleStatus]bool{
	docstore.SampleAutoSubmitted:     true,
	docstore.SampleManuallySubmitted: true,
	docstore.SampleProcessing:        true,
}

// MonitorHPCJobs awaits concurrent monitors for every sample with a job
// id in a submitted or processing state. A failure in one sample never
// aborts the others.
func (b *Base) MonitorHPCJobs(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, s := range b.Samples() {
		if s.JobID() == "" || !monitoredStatuses[s.Status()] {
			continue
		}
		wg.Add(1)
		go func(s Sample) {
			defer wg.Done()
			if err := b.jobs.Monitor(ctx, s.JobID(), s); err != nil {
				b.logger.Error("job monitor ended with error",
					"sample", s.ID(), "job", s.JobID(), "error", err)
			}
		}(s)
	}
	wg.Wait()
	return nil
}

// FetchAndMergeSampleInfo reloads each sample's job id and status from
// the document store, overwriting the in-memory copies when they
// disagree. Used on re-entry after external actors updated the store.
func (b *Base) FetchAndMergeSampleInfo(ctx context.Context) error {
	ygg, err := b.store.Get(ctx, b.ProjectID())
	if err != nil {
		return err
	}
	if ygg == nil {
		return fmt.Errorf("no yggdrasil document for project %s", b.ProjectID())
	}
	for _, s := range b.Samples() {
		persisted := ygg.SampleByID(s.ID())
		if persisted == nil {
			continue
		}
		bs, ok := s.(*BaseSample)
		if !ok {
			continue
		}
		if s.Status() != persisted.Status || s.JobID() != persisted.JobID {
			b.logger.Debug("merging sample state from store",
				"sample", s.ID(), "status", persisted.Status, "job", persisted.JobID)
			bs.setLocal(persisted.Status, persisted.JobID)
		}
	}
	return nil
}

// PostProcessSamples invokes post-processing synchronously for every
// sample in processed state. Samples in other states are reported but
// untouched.
func (b *Base) PostProcessSamples(ctx context.Context) error {
	for _, s := range b.Samples() {
		if s.Status() != docstore.SampleProcessed {
			b.logger.Debug("skipping post-processing", "sample", s.ID(), "status", s.Status())
			continue
		}
		if err := s.PostProcess(ctx); err != nil {
			b.logger.Error("sample post-processing failed", "sample", s.ID(), "error", err)
		}
	}
	return nil
}

// FinalizeProject re-derives the project status from the persisted
// samples. Realms may override (SmartSeq3 holds the project in
// pending_QC instead).
func (b *Base) FinalizeProject(ctx context.Context) error {
	return b.store.Update(ctx, b.ProjectID(), func(doc *docstore.Document) error {
		doc.SetProjectStatus(doc.DerivedStatus())
		b.logger.Info("finalized project", "status", doc.ProjectStatus)
		return nil
	})
}
