package hpc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngisweden/yggdrasil/config"
	"github.com/ngisweden/yggdrasil/docstore"
)

// fakeSample records the transitions a monitor drives.
type fakeSample struct {
	id            string
	statuses      []docstore.SampleStatus
	postProcessed bool
}

func (s *fakeSample) ID() string { return s.id }

func (s *fakeSample) SetStatus(ctx context.Context, status docstore.SampleStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeSample) PostProcess(ctx context.Context) error {
	s.postProcessed = true
	return nil
}

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testManager(t *testing.T, submit, status string) *SlurmManager {
	t.Helper()
	return NewSlurmManager(config.HPCConfig{
		SubmitCommand:  submit,
		StatusCommand:  status,
		CommandTimeout: "5s",
		PollInterval:   "20ms",
	}, nil)
}

func TestParseJobID(t *testing.T) {
	cases := []struct {
		out  string
		want string
		ok   bool
	}{
		{"Submitted batch job 4711", "4711", true},
		{"Submitted batch job 4711 on cluster foo", "4711", true},
		{"4711", "4711", true},
		{"job id: 12345\n", "12345", true},
		{"no digits here", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := parseJobID(tc.out)
		assert.Equal(t, tc.ok, ok, "output %q", tc.out)
		assert.Equal(t, tc.want, got, "output %q", tc.out)
	}
}

func TestSubmit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "job.sh", "true")

	t.Run("parses the sbatch banner", func(t *testing.T) {
		submit := writeScript(t, dir, "sbatch_ok.sh", `echo "Submitted batch job 4711"`)
		m := testManager(t, submit, "true")
		before := testutil.ToFloat64(jobsSubmitted)
		jobID, ok := m.Submit(context.Background(), script)
		require.True(t, ok)
		assert.Equal(t, "4711", jobID)
		assert.Equal(t, before+1, testutil.ToFloat64(jobsSubmitted))
	})

	t.Run("missing script fails", func(t *testing.T) {
		submit := writeScript(t, dir, "sbatch_unused.sh", `echo "Submitted batch job 1"`)
		m := testManager(t, submit, "true")
		_, ok := m.Submit(context.Background(), filepath.Join(dir, "absent.sh"))
		assert.False(t, ok)
	})

	t.Run("failing submit command fails", func(t *testing.T) {
		submit := writeScript(t, dir, "sbatch_fail.sh", "exit 1")
		m := testManager(t, submit, "true")
		_, ok := m.Submit(context.Background(), script)
		assert.False(t, ok)
	})

	t.Run("output without a job id fails", func(t *testing.T) {
		submit := writeScript(t, dir, "sbatch_noid.sh", `echo "submission accepted"`)
		m := testManager(t, submit, "true")
		_, ok := m.Submit(context.Background(), script)
		assert.False(t, ok)
	})

	t.Run("hanging submit command times out", func(t *testing.T) {
		submit := writeScript(t, dir, "sbatch_hang.sh", "sleep 30")
		m := testManager(t, submit, "true")
		m.commandTimeout = 100 * time.Millisecond
		_, ok := m.Submit(context.Background(), script)
		assert.False(t, ok)
	})
}

// statusScript emits PENDING for the first polls, then the given token.
func statusScript(t *testing.T, dir, token string, pendingPolls int) string {
	t.Helper()
	counter := filepath.Join(dir, "polls")
	body := fmt.Sprintf(`count=$(cat %[1]s 2>/dev/null || echo 0)
count=$((count + 1))
echo $count > %[1]s
if [ $count -le %[2]d ]; then echo "  PENDING "; else echo "  %[3]s "; fi`, counter, pendingPolls, token)
	return writeScript(t, dir, "sacct.sh", body)
}

func TestMonitor(t *testing.T) {
	t.Run("completed job post-processes the sample", func(t *testing.T) {
		dir := t.TempDir()
		m := testManager(t, "true", statusScript(t, dir, "COMPLETED", 2))
		sample := &fakeSample{id: "S1"}

		require.NoError(t, m.Monitor(context.Background(), "4711", sample))
		require.NotEmpty(t, sample.statuses)
		assert.Equal(t, docstore.SampleProcessed, sample.statuses[len(sample.statuses)-1])
		assert.True(t, sample.postProcessed)
	})

	t.Run("failed job marks the sample failed", func(t *testing.T) {
		dir := t.TempDir()
		m := testManager(t, "true", statusScript(t, dir, "FAILED", 1))
		sample := &fakeSample{id: "S1"}

		require.NoError(t, m.Monitor(context.Background(), "4711", sample))
		require.NotEmpty(t, sample.statuses)
		assert.Equal(t, docstore.SampleProcessingFailed, sample.statuses[len(sample.statuses)-1])
		assert.False(t, sample.postProcessed)
	})

	t.Run("out of memory counts as failure", func(t *testing.T) {
		dir := t.TempDir()
		m := testManager(t, "true", statusScript(t, dir, "OUT_OF_ME+", 0))
		sample := &fakeSample{id: "S1"}

		require.NoError(t, m.Monitor(context.Background(), "4711", sample))
		assert.Equal(t, []docstore.SampleStatus{docstore.SampleProcessingFailed}, sample.statuses)
	})

	t.Run("cancellation stops the monitor", func(t *testing.T) {
		dir := t.TempDir()
		m := testManager(t, "true", statusScript(t, dir, "PENDING", 1000))
		sample := &fakeSample{id: "S1"}

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		err := m.Monitor(ctx, "4711", sample)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, sample.statuses)
	})

	t.Run("poll errors are retried", func(t *testing.T) {
		dir := t.TempDir()
		// Fail the first poll, then report completion.
		counter := filepath.Join(dir, "polls")
		status := writeScript(t, dir, "sacct.sh", fmt.Sprintf(`count=$(cat %[1]s 2>/dev/null || echo 0)
count=$((count + 1))
echo $count > %[1]s
if [ $count -le 1 ]; then exit 1; else echo "COMPLETED"; fi`, counter))
		m := testManager(t, "true", status)
		sample := &fakeSample{id: "S1"}

		require.NoError(t, m.Monitor(context.Background(), "4711", sample))
		assert.True(t, sample.postProcessed)
	})
}

func TestMockManager(t *testing.T) {
	m := NewMockManager(nil)
	m.MinDelay = 10 * time.Millisecond
	m.MaxDelay = 20 * time.Millisecond

	jobID, ok := m.Submit(context.Background(), "whatever.sh")
	require.True(t, ok)
	assert.Len(t, jobID, 6)

	sample := &fakeSample{id: "S1"}
	require.NoError(t, m.Monitor(context.Background(), jobID, sample))
	assert.Equal(t, []docstore.SampleStatus{docstore.SampleProcessed}, sample.statuses)
	assert.True(t, sample.postProcessed)
}
