package realm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/hpc"
)

// BaseSample is the default Sample implementation. It mirrors one sample
// of the Yggdrasil document and persists every status and job-id write.
type BaseSample struct {
	id         string
	projectID  string
	scriptPath string
	store      *docstore.Store
	jobs       hpc.JobManager
	logger     *slog.Logger

	mu     sync.Mutex
	status docstore.SampleStatus
	jobID  string

	// post is the realm-specific post-processing hook; nil means no extra
	// work beyond the status transitions.
	post func(ctx context.Context) error
}

// BaseSampleParams configures a BaseSample.
type BaseSampleParams struct {
	ID         string
	ProjectID  string
	Status     docstore.SampleStatus
	JobID      string
	ScriptPath string
	Store      *docstore.Store
	Jobs       hpc.JobManager
	Logger     *slog.Logger
	Post       func(ctx context.Context) error
}

// NewBaseSample creates a sample handle.
func NewBaseSample(p BaseSampleParams) *BaseSample {
	if p.Status == "" {
		p.Status = docstore.SamplePending
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &BaseSample{
		id:         p.ID,
		projectID:  p.ProjectID,
		status:     p.Status,
		jobID:      p.JobID,
		scriptPath: p.ScriptPath,
		store:      p.Store,
		jobs:       p.Jobs,
		logger:     p.Logger,
		post:       p.Post,
	}
}

// ID returns the sample id.
func (s *BaseSample) ID() string {
	return s.id
}

// Status returns the sample's current in-memory status.
func (s *BaseSample) Status() docstore.SampleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus transitions the sample and persists the change.
func (s *BaseSample) SetStatus(ctx context.Context, status docstore.SampleStatus) error {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.logger.Info("sample status", "project", s.projectID, "sample", s.id, "status", status)
	return s.store.UpdateSampleStatus(ctx, s.projectID, s.id, status)
}

// JobID returns the scheduler job id, or empty.
func (s *BaseSample) JobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

// SetJobID records the scheduler job id and persists it.
func (s *BaseSample) SetJobID(ctx context.Context, jobID string) error {
	s.mu.Lock()
	s.jobID = jobID
	s.mu.Unlock()
	return s.store.SetSampleJobID(ctx, s.projectID, s.id, jobID)
}

// setLocal overwrites the in-memory copies without persisting. Used when
// merging authoritative state back from the document store.
func (s *BaseSample) setLocal(status docstore.SampleStatus, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.jobID = jobID
}

// SubmitJob submits the sample's job script. On success the sample moves
// to auto-submitted; on failure the status is left unchanged so a later
// pass can retry.
func (s *BaseSample) SubmitJob(ctx context.Context) error {
	jobID, ok := s.jobs.Submit(ctx, s.scriptPath)
	if !ok {
		return fmt.Errorf("submission failed for sample %s (script %s)", s.id, s.scriptPath)
	}
	if err := s.SetJobID(ctx, jobID); err != nil {
		return err
	}
	return s.SetStatus(ctx, docstore.SampleAutoSubmitted)
}

// PostProcess drives a processed sample to completed, or to
// post_processing_failed when the realm hook reports an error.
func (s *BaseSample) PostProcess(ctx context.Context) error {
	if err := s.SetStatus(ctx, docstore.SamplePostProcessing); err != nil {
		return err
	}
	if s.post != nil {
		if err := s.post(ctx); err != nil {
			s.logger.Error("sample post-processing failed",
				"project", s.projectID, "sample", s.id, "error", err)
			if serr := s.SetStatus(ctx, docstore.SamplePostProcessFailed); serr != nil {
				return serr
			}
			return err
		}
	}
	return s.SetStatus(ctx, docstore.SampleCompleted)
}
