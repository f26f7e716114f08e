package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/executor"
	"github.com/toolsascode/schemaflow/internal/queue"
	"github.com/toolsascode/schemaflow/internal/state"
)

type mockRunner struct {
	requests []*executor.RunRequest
	by       string
	method   string
	result   *executor.RunResult
	err      error
}

func (r *mockRunner) Run(ctx context.Context, req *executor.RunRequest) (*executor.RunResult, error) {
	r.requests = append(r.requests, req)
	r.by, r.method, _ = executor.GetExecutionContext(ctx)
	return r.result, r.err
}

// mockQueue feeds a fixed list of jobs to the handler
type mockQueue struct {
	jobs    []*queue.Job
	results []*queue.JobResult
	errs    []error
	closed  bool
}

func (q *mockQueue) PublishJob(ctx context.Context, job *queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *mockQueue) Consume(ctx context.Context, handler queue.JobHandler) error {
	for _, job := range q.jobs {
		result, err := handler(ctx, job)
		q.results = append(q.results, result)
		q.errs = append(q.errs, err)
	}
	return nil
}

func (q *mockQueue) Close() error {
	q.closed = true
	return nil
}

func TestWorkerProcessesJobs(t *testing.T) {
	runner := &mockRunner{result: &executor.RunResult{
		RunID:          "run-1",
		Success:        true,
		Status:         state.StatusSuccessful,
		ScriptCount:    3,
		StatementCount: 7,
	}}
	failOnError := false
	q := &mockQueue{jobs: []*queue.Job{{
		ID:            "job-1",
		FailOnError:   &failOnError,
		AppliedPolicy: "all",
		RequestedBy:   "alice",
		Metadata:      map[string]interface{}{"execution_method": "api"},
	}}}

	w := NewWorker(runner, q)
	require.NoError(t, w.Start(context.Background()))

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, "job-1", req.JobID)
	assert.Equal(t, "all", req.AppliedPolicy)
	require.NotNil(t, req.FailOnError)
	assert.False(t, *req.FailOnError)
	assert.Equal(t, "alice", runner.by)
	assert.Equal(t, "api/queue", runner.method)

	require.Len(t, q.results, 1)
	assert.NoError(t, q.errs[0])
	result := q.results[0]
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "run-1", result.RunID)
	assert.True(t, result.Success)
	assert.Equal(t, "SUCCESSFUL", result.Status)
	assert.Equal(t, 7, result.StatementCount)

	require.NoError(t, w.Stop())
	assert.True(t, q.closed)
}

func TestWorkerReportsFailedRun(t *testing.T) {
	runErr := errors.New("migration of definition \"orders\" in module \"core\" failed")
	runner := &mockRunner{
		result: &executor.RunResult{RunID: "run-2", Status: state.StatusFailed, Errors: []string{runErr.Error()}},
		err:    runErr,
	}
	q := &mockQueue{jobs: []*queue.Job{{ID: "job-2"}}}

	require.NoError(t, NewWorker(runner, q).Start(context.Background()))

	assert.Equal(t, "worker", runner.by)
	assert.Equal(t, "queue", runner.method)
	require.Len(t, q.results, 1)
	assert.ErrorIs(t, q.errs[0], runErr)
	assert.False(t, q.results[0].Success)
	assert.Equal(t, []string{runErr.Error()}, q.results[0].Errors)
	assert.Equal(t, "FAILED", q.results[0].Status)
}

func TestWorkerRunRejectedBeforeStart(t *testing.T) {
	runner := &mockRunner{err: errors.New("failed to acquire run lock")}
	q := &mockQueue{jobs: []*queue.Job{{ID: "job-3"}}}

	require.NoError(t, NewWorker(runner, q).Start(context.Background()))

	require.Len(t, q.results, 1)
	assert.Error(t, q.errs[0])
	assert.Equal(t, []string{"failed to acquire run lock"}, q.results[0].Errors)
}
