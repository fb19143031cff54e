package hpc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ngisweden/yggdrasil/docstore"
)

// MockManager is a development stand-in for the scheduler: it generates a
// synthetic job id and, after a delay, drives the sample to processed.
// Selected at session init time via the dev-mode flag.
type MockManager struct {
	// MinDelay and MaxDelay bound the simulated run time. Defaults are
	// 15s and 35s.
	MinDelay time.Duration
	MaxDelay time.Duration
	logger   *slog.Logger
}

// NewMockManager creates a mock manager with the default delay window.
func NewMockManager(logger *slog.Logger) *MockManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockManager{
		MinDelay: 15 * time.Second,
		MaxDelay: 35 * time.Second,
		logger:   logger,
	}
}

// Submit returns a synthetic job id without touching the scheduler.
func (m *MockManager) Submit(ctx context.Context, scriptPath string) (string, bool) {
	jobID := fmt.Sprintf("%d", 100000+rand.Intn(900000))
	jobsSubmitted.Inc()
	m.logger.Info("mock job submitted", "script", scriptPath, "job", jobID)
	return jobID, true
}

// Monitor waits a random delay within the configured window and marks the
// sample processed.
func (m *MockManager) Monitor(ctx context.Context, jobID string, sample SampleHandle) error {
	delay := m.MinDelay
	if m.MaxDelay > m.MinDelay {
		delay += time.Duration(rand.Int63n(int64(m.MaxDelay - m.MinDelay)))
	}
	m.logger.Info("mock monitoring job", "job", jobID, "sample", sample.ID(), "delay", delay)
	activeMonitors.Inc()
	defer activeMonitors.Dec()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}
	if err := sample.SetStatus(ctx, docstore.SampleProcessed); err != nil {
		return fmt.Errorf("mark sample %s processed: %w", sample.ID(), err)
	}
	return sample.PostProcess(ctx)
}
