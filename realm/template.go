package realm

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/ngisweden/yggdrasil/docstore"
)

// LaunchTemplate drives one lifecycle pass for a project, dispatching to
// the realm's hooks based on the persisted project status. A failure in a
// hook ends the pass with the project left in its last persisted state;
// the next event picks it up again.
func LaunchTemplate(ctx context.Context, r Realm) error {
	logger := r.Logger().With("pass", ulid.Make().String())

	doc, err := r.EnsureDocument(ctx)
	if err != nil {
		logger.Error("loading yggdrasil document failed", "error", err)
		return err
	}

	switch doc.ProjectStatus {
	case docstore.ProjectPending, docstore.ProjectProcessing, docstore.ProjectPartiallyCompleted:
		// Every main-flow step is idempotent, so re-entering here resumes
		// interrupted monitors and retries failed submissions.
		return runMainFlow(ctx, r)

	case docstore.ProjectManuallySubmitted:
		return resumeManuallySubmitted(ctx, r)

	case docstore.ProjectCompleted:
		logger.Info("project already completed")
		return nil

	default:
		logger.Warn("unknown project state for lifecycle", "status", doc.ProjectStatus)
		return nil
	}
}

// runMainFlow handles a pending project: extract and register samples,
// pre-process, then either drive the jobs to completion or park the
// project for manual submission.
func runMainFlow(ctx context.Context, r Realm) error {
	if err := r.ExtractSamples(ctx); err != nil {
		return fmt.Errorf("extract samples: %w", err)
	}
	if err := r.RegisterSamples(ctx); err != nil {
		return fmt.Errorf("register samples: %w", err)
	}
	if err := r.PreProcessSamples(ctx); err != nil {
		return fmt.Errorf("pre-process samples: %w", err)
	}

	if !r.AutoSubmit() {
		// External actors submit the jobs and record job ids; a later
		// event re-enters at the manually_submitted_samples state.
		return r.SetProjectStatus(ctx, docstore.ProjectManuallySubmitted)
	}

	if err := r.SubmitSampleJobs(ctx); err != nil {
		return fmt.Errorf("submit sample jobs: %w", err)
	}
	return finishPass(ctx, r)
}

// resumeManuallySubmitted re-enters a project whose jobs were submitted
// externally: reload sample state from the store, then monitor and
// finish as usual.
func resumeManuallySubmitted(ctx context.Context, r Realm) error {
	if err := r.ExtractSamples(ctx); err != nil {
		return fmt.Errorf("extract samples: %w", err)
	}
	if err := r.FetchAndMergeSampleInfo(ctx); err != nil {
		return fmt.Errorf("merge sample info: %w", err)
	}
	return finishPass(ctx, r)
}

// finishPass monitors outstanding jobs, post-processes and finalizes.
func finishPass(ctx context.Context, r Realm) error {
	if err := r.MonitorHPCJobs(ctx); err != nil {
		return fmt.Errorf("monitor hpc jobs: %w", err)
	}
	if err := r.PostProcessSamples(ctx); err != nil {
		return fmt.Errorf("post-process samples: %w", err)
	}
	if err := r.FinalizeProject(ctx); err != nil {
		return fmt.Errorf("finalize project: %w", err)
	}
	return nil
}
