package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrClosed is returned when a closed queue is asked to consume
var ErrClosed = errors.New("queue is closed")

// Job is a request to run the migration session asynchronously
type Job struct {
	ID            string                 `json:"id"`
	FailOnError   *bool                  `json:"fail_on_error,omitempty"`
	AppliedPolicy string                 `json:"applied_policy,omitempty"`
	RequestedBy   string                 `json:"requested_by,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// JobResult is the outcome of one job
type JobResult struct {
	JobID                string   `json:"job_id"`
	RunID                string   `json:"run_id,omitempty"`
	Success              bool     `json:"success"`
	Status               string   `json:"status"`
	ScriptCount          int      `json:"script_count"`
	StatementCount       int      `json:"statement_count"`
	FailedStatementCount int      `json:"failed_statement_count"`
	Errors               []string `json:"errors,omitempty"`
}

// Producer publishes migration jobs to the queue
type Producer interface {
	// PublishJob publishes a migration job to the queue
	PublishJob(ctx context.Context, job *Job) error

	// Close closes the producer connection
	Close() error
}

// Consumer consumes migration jobs from the queue
type Consumer interface {
	// Consume starts consuming jobs from the queue
	// The handler function is called for each job
	Consume(ctx context.Context, handler JobHandler) error

	// Close closes the consumer connection
	Close() error
}

// JobHandler processes a migration job
type JobHandler func(ctx context.Context, job *Job) (*JobResult, error)

// Queue provides both producer and consumer capabilities
type Queue interface {
	Producer
	Consumer
}

// EncodeJob serializes a job, assigning an id when it has none
func EncodeJob(job *Job) ([]byte, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// DecodeJob deserializes a job. fallbackID is used when the payload carries
// no id (brokers also pass it as a header or key).
func DecodeJob(data []byte, fallbackID string) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == "" {
		job.ID = fallbackID
	}
	return &job, nil
}

// LogResult reports a processed job through logf-style callbacks
func LogResult(result *JobResult, infof, warnf func(format string, args ...interface{})) {
	if result == nil {
		return
	}
	if result.Success {
		infof("Successfully processed migration job %s (run %s): %d script(s), %d statement(s)",
			result.JobID, result.RunID, result.ScriptCount, result.StatementCount)
	} else {
		warnf("Migration job %s (run %s) completed with errors: %v", result.JobID, result.RunID, result.Errors)
	}
}
