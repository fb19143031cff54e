// Package hpc submits job scripts to the batch scheduler and drives
// samples to terminal states based on job outcomes.
package hpc

import (
	"context"

	"github.com/ngisweden/yggdrasil/docstore"
)

// SampleHandle is the per-sample surface a monitor drives. Status writes
// persist to the document store.
type SampleHandle interface {
	ID() string
	SetStatus(ctx context.Context, status docstore.SampleStatus) error
	PostProcess(ctx context.Context) error
}

// JobManager submits job scripts and monitors jobs until they reach a
// terminal state. Many monitors may run concurrently; each sample has at
// most one monitor at a time. Implementations are stateless beyond
// per-call locals.
type JobManager interface {
	// Submit submits a job script and returns the scheduler job id.
	// A missing script, a command timeout, or a submission failure all
	// return ok=false.
	Submit(ctx context.Context, scriptPath string) (jobID string, ok bool)

	// Monitor polls the job until it terminates, then transitions the
	// sample: processed + post-process on success, processing_failed
	// otherwise. Cancellation is honoured between polls.
	Monitor(ctx context.Context, jobID string, sample SampleHandle) error
}
