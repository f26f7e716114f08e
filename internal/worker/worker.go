package worker

import (
	"context"

	"github.com/toolsascode/schemaflow/internal/executor"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/queue"
)

// Runner executes a migration run
type Runner interface {
	Run(ctx context.Context, req *executor.RunRequest) (*executor.RunResult, error)
}

// Worker processes migration jobs from the queue
type Worker struct {
	runner Runner
	queue  queue.Queue
}

// NewWorker creates a new migration worker
func NewWorker(runner Runner, q queue.Queue) *Worker {
	return &Worker{
		runner: runner,
		queue:  q,
	}
}

// Start consumes and processes jobs until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	logger.Info("Starting migration worker...")
	return w.queue.Consume(ctx, w.processJob)
}

// processJob runs the session for one job. A run that fails outright is
// returned as an error so brokers that support it can redeliver the job.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	logger.Infof("Processing migration job %s requested by %s", job.ID, job.RequestedBy)

	method := "queue"
	if m, ok := job.Metadata["execution_method"].(string); ok && m != "" {
		method = m + "/queue"
	}
	requestedBy := job.RequestedBy
	if requestedBy == "" {
		requestedBy = "worker"
	}
	ctx = executor.SetExecutionContext(ctx, requestedBy, method, job.Metadata)

	result, err := w.runner.Run(ctx, &executor.RunRequest{
		FailOnError:   job.FailOnError,
		AppliedPolicy: job.AppliedPolicy,
		JobID:         job.ID,
	})

	jobResult := &queue.JobResult{JobID: job.ID}
	if result != nil {
		jobResult.RunID = result.RunID
		jobResult.Success = result.Success
		jobResult.Status = string(result.Status)
		jobResult.ScriptCount = result.ScriptCount
		jobResult.StatementCount = result.StatementCount
		jobResult.FailedStatementCount = result.FailedStatementCount
		jobResult.Errors = result.Errors
	}
	if err != nil {
		jobResult.Success = false
		if result == nil {
			jobResult.Errors = append(jobResult.Errors, err.Error())
		}
		return jobResult, err
	}
	return jobResult, nil
}

// Stop stops the worker
func (w *Worker) Stop() error {
	logger.Info("Stopping migration worker...")
	return w.queue.Close()
}
