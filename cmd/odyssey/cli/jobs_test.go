package cli

import (
	"bytes"
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/jobs"
)

func newTestCLI(t *testing.T) (*JobsCLI, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestTriggerEnqueuesKnownJobs(t *testing.T) {
	c, mr := newTestCLI(t)
	var stdout, stderr bytes.Buffer

	code := c.Command(context.Background(), JobsOptions{Action: "trigger", Name: jobs.TaskOverdueSweep, AsOf: "2026-03-31", Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "enqueued "+jobs.TaskOverdueSweep)

	code = c.Command(context.Background(), JobsOptions{Action: "trigger", Name: jobs.TaskLedgerIntegrity, Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code, stderr.String())

	pending, err := mr.List("asynq:{" + jobs.QueueDefault + "}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestTriggerRejectsUnknownInput(t *testing.T) {
	c, _ := newTestCLI(t)
	var stdout, stderr bytes.Buffer

	require.Equal(t, 1, c.Command(context.Background(), JobsOptions{Action: "trigger", Name: "report:render", Stdout: &stdout, Stderr: &stderr}))
	require.Contains(t, stderr.String(), "unsupported job")

	stderr.Reset()
	require.Equal(t, 1, c.Command(context.Background(), JobsOptions{Action: "trigger", Name: jobs.TaskOverdueSweep, AsOf: "31/03/2026", Stdout: &stdout, Stderr: &stderr}))
	require.Contains(t, stderr.String(), "invalid as-of")

	stderr.Reset()
	require.Equal(t, 2, c.Command(context.Background(), JobsOptions{Action: "purge", Stdout: &stdout, Stderr: &stderr}))
	require.Contains(t, stderr.String(), jobs.TaskLedgerIntegrity)
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := NewJobsCLI("")
	require.Error(t, err)
}
