package hpc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ngisweden/yggdrasil/config"
	"github.com/ngisweden/yggdrasil/docstore"
)

var (
	submittedBatchJob = regexp.MustCompile(`Submitted batch job (\d+)`)
	digitRun          = regexp.MustCompile(`\d+`)
)

// Job status tokens the engine interprets. OUT_OF_ME+ is the truncated
// form the scheduler returns for out-of-memory kills.
const (
	tokenCompleted = "COMPLETED"
	tokenFailed    = "FAILED"
	tokenCancelled = "CANCELLED"
	tokenTimeout   = "TIMEOUT"
	tokenOOM       = "OUT_OF_ME+"
)

// terminalTokens maps each terminal status token to whether the job
// succeeded.
var terminalTokens = map[string]bool{
	tokenCompleted: true,
	tokenFailed:    false,
	tokenCancelled: false,
	tokenTimeout:   false,
	tokenOOM:       false,
}

// SlurmManager drives jobs through the cluster's submit and accounting
// commands.
type SlurmManager struct {
	submitCmd      []string
	statusCmd      []string
	commandTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
}

// NewSlurmManager creates a manager from the HPC configuration.
func NewSlurmManager(cfg config.HPCConfig, logger *slog.Logger) *SlurmManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlurmManager{
		submitCmd:      strings.Fields(cfg.SubmitCommand),
		statusCmd:      strings.Fields(cfg.StatusCommand),
		commandTimeout: cfg.GetCommandTimeout(),
		pollInterval:   cfg.GetPollInterval(),
		logger:         logger,
	}
}

// Submit runs the submit command for a job script and parses the job id
// from its output.
func (m *SlurmManager) Submit(ctx context.Context, scriptPath string) (string, bool) {
	if _, err := os.Stat(scriptPath); err != nil {
		m.logger.Error("job script missing", "script", scriptPath, "error", err)
		return "", false
	}
	out, err := m.run(ctx, append(m.submitCmd, scriptPath))
	if err != nil {
		m.logger.Error("job submission failed", "script", scriptPath, "error", err)
		return "", false
	}
	jobID, ok := parseJobID(out)
	if !ok {
		m.logger.Error("no job id in submit output", "script", scriptPath, "output", out)
		return "", false
	}
	jobsSubmitted.Inc()
	m.logger.Info("submitted job", "script", scriptPath, "job", jobID)
	return jobID, true
}

// Monitor polls the accounting command until the job reaches a terminal
// status, then transitions the sample.
func (m *SlurmManager) Monitor(ctx context.Context, jobID string, sample SampleHandle) error {
	m.logger.Info("monitoring job", "job", jobID, "sample", sample.ID())
	activeMonitors.Inc()
	defer activeMonitors.Dec()
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job monitor cancelled", "job", jobID, "sample", sample.ID())
			return ctx.Err()
		case <-timer.C:
		}

		token, err := m.jobStatus(ctx, jobID)
		if err != nil {
			// Transient accounting failure; the next poll retries.
			m.logger.Warn("job status poll failed", "job", jobID, "error", err)
			timer.Reset(m.pollInterval)
			continue
		}

		succeeded, terminal := terminalTokens[token]
		if !terminal {
			m.logger.Debug("job still running", "job", jobID, "state", token)
			timer.Reset(m.pollInterval)
			continue
		}

		if succeeded {
			m.logger.Info("job completed", "job", jobID, "sample", sample.ID())
			if err := sample.SetStatus(ctx, docstore.SampleProcessed); err != nil {
				return fmt.Errorf("mark sample %s processed: %w", sample.ID(), err)
			}
			return sample.PostProcess(ctx)
		}
		m.logger.Warn("job ended unsuccessfully", "job", jobID, "sample", sample.ID(), "state", token)
		return sample.SetStatus(ctx, docstore.SampleProcessingFailed)
	}
}

// jobStatus runs the accounting command and reads a single status token.
func (m *SlurmManager) jobStatus(ctx context.Context, jobID string) (string, error) {
	out, err := m.run(ctx, append(m.statusCmd, jobID))
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("empty status output for job %s", jobID)
}

// run executes a scheduler command with the per-call timeout.
func (m *SlurmManager) run(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty scheduler command")
	}
	cctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	out, err := cmd.Output()
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command %s timed out after %s", argv[0], m.commandTimeout)
		}
		return "", fmt.Errorf("command %s: %w", argv[0], err)
	}
	return string(out), nil
}

// parseJobID extracts a job id from submit output: the sbatch banner when
// present, otherwise the first contiguous digit run.
func parseJobID(out string) (string, bool) {
	if match := submittedBatchJob.FindStringSubmatch(out); match != nil {
		return match[1], true
	}
	if id := digitRun.FindString(out); id != "" {
		return id, true
	}
	return "", false
}
