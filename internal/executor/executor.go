package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/toolsascode/schemaflow/internal/condition"
	"github.com/toolsascode/schemaflow/internal/lock"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/queue"
	"github.com/toolsascode/schemaflow/internal/registry"
	"github.com/toolsascode/schemaflow/internal/script"
	"github.com/toolsascode/schemaflow/internal/session"
	"github.com/toolsascode/schemaflow/internal/state"
)

// Options are the run defaults; a RunRequest may override some of them
type Options struct {
	FailOnError   bool
	AppliedPolicy string
	// DatabaseType filters descriptor definitions restricted to a database
	DatabaseType string
	// LockKey names the run lock; defaults to lock.DefaultKey
	LockKey string
}

// Executor runs migration sessions against one target database
type Executor struct {
	target     session.Target
	tracker    state.Tracker
	scripts    *script.Source
	discoverer registry.Discoverer
	opts       Options

	locker lock.Locker
	queue  queue.Queue // Optional queue for async execution
	mu     sync.Mutex
}

// NewExecutor creates a new migration executor. Runs are serialized by a
// process-local lock until SetLocker installs another one.
func NewExecutor(target session.Target, tracker state.Tracker, scripts *script.Source, discoverer registry.Discoverer, opts Options) *Executor {
	if opts.LockKey == "" {
		opts.LockKey = lock.DefaultKey
	}
	return &Executor{
		target:     target,
		tracker:    tracker,
		scripts:    scripts,
		discoverer: discoverer,
		opts:       opts,
		locker:     lock.NewLocal(),
	}
}

// SetLocker replaces the run lock
func (e *Executor) SetLocker(l lock.Locker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locker = l
}

// SetQueue sets the queue for async execution
func (e *Executor) SetQueue(q queue.Queue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = q
}

// RunRequest asks for one migration run
type RunRequest struct {
	FailOnError   *bool  // nil keeps the configured default
	AppliedPolicy string // empty keeps the configured default
	JobID         string // set when the run comes from the queue
}

// RunResult represents the result of a run, or of queueing one
type RunResult struct {
	RunID                string
	JobID                string
	Queued               bool
	Success              bool
	Status               state.Status
	Phase                string
	ScriptCount          int
	StatementCount       int
	FailedStatementCount int
	Log                  []string
	Errors               []string
}

// Execute runs the session, or queues a job when a queue is configured
func (e *Executor) Execute(ctx context.Context, req *RunRequest) (*RunResult, error) {
	e.mu.Lock()
	q := e.queue
	e.mu.Unlock()

	if q != nil {
		return e.queueJob(ctx, q, req)
	}
	return e.Run(ctx, req)
}

func (e *Executor) queueJob(ctx context.Context, q queue.Queue, req *RunRequest) (*RunResult, error) {
	if req == nil {
		req = &RunRequest{}
	}
	by, method, _ := GetExecutionContext(ctx)

	job := &queue.Job{
		FailOnError:   req.FailOnError,
		AppliedPolicy: req.AppliedPolicy,
		RequestedBy:   by,
		Metadata:      map[string]interface{}{"execution_method": method},
	}
	if err := q.PublishJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to queue migration job: %w", err)
	}

	return &RunResult{
		JobID:   job.ID,
		Queued:  true,
		Success: true,
		Status:  state.StatusNA,
	}, nil
}

// Run executes one migration session synchronously while holding the run
// lock. The result is returned even when the run fails.
func (e *Executor) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	if req == nil {
		req = &RunRequest{}
	}
	opts, err := e.sessionOptions(ctx, req)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	locker := e.locker
	e.mu.Unlock()

	release, err := locker.Acquire(ctx, e.opts.LockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer release()

	loader := registry.NewLoader(e.discoverer, e.opts.DatabaseType)
	s := session.New(e.target, e.scripts, e.tracker, loader, opts)
	runErr := s.Execute(ctx)

	result := &RunResult{
		RunID:                s.ID(),
		JobID:                req.JobID,
		Success:              runErr == nil && s.Status() == state.StatusSuccessful,
		Status:               s.Status(),
		Phase:                s.Phase().String(),
		ScriptCount:          s.ScriptCount(),
		StatementCount:       s.StatementCount(),
		FailedStatementCount: s.FailedStatementCount(),
		Log:                  s.Log(),
	}
	for _, le := range loader.Errors() {
		result.Errors = append(result.Errors, le.Error())
	}
	if runErr != nil {
		result.Errors = append(result.Errors, runErr.Error())
	} else if s.FailedStatementCount() > 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%d statement(s) failed", s.FailedStatementCount()))
	}

	logRunResult(result)
	return result, runErr
}

func (e *Executor) sessionOptions(ctx context.Context, req *RunRequest) (session.Options, error) {
	failOnError := e.opts.FailOnError
	if req.FailOnError != nil {
		failOnError = *req.FailOnError
	}

	policyName := e.opts.AppliedPolicy
	if req.AppliedPolicy != "" {
		policyName = req.AppliedPolicy
	}
	policy, err := session.ParseAppliedPolicy(strings.ToLower(policyName))
	if err != nil {
		return session.Options{}, err
	}

	return session.Options{
		FailOnError:   failOnError,
		AppliedPolicy: policy,
		ExecutedBy:    executedBy(ctx),
	}, nil
}

// History returns registry rows, newest first
func (e *Executor) History(ctx context.Context, filters *state.Filters) ([]*state.Record, error) {
	return e.tracker.History(ctx, filters)
}

// StatusResult is the latest registry state of one definition or migration
type StatusResult struct {
	ID     string
	Status state.Status
	Last   *state.Record // nil when the id was never recorded
}

// Status returns the latest registry row for id
func (e *Executor) Status(ctx context.Context, id string) (*StatusResult, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	records, err := e.tracker.History(ctx, &state.Filters{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	result := &StatusResult{ID: id, Status: state.StatusNA}
	if len(records) > 0 {
		result.Last = records[0]
		result.Status = records[0].Status
	}
	return result, nil
}

// CheckCondition evaluates a condition expression against the live target
func (e *Executor) CheckCondition(ctx context.Context, expression string) (bool, error) {
	return condition.Evaluate(ctx, expression, e.target)
}

// HealthCheck performs health checks on the executor
func (e *Executor) HealthCheck(ctx context.Context) error {
	if err := e.target.HealthCheck(ctx); err != nil {
		return fmt.Errorf("target database health check failed: %w", err)
	}
	if err := e.tracker.Initialize(ctx); err != nil {
		return fmt.Errorf("registry health check failed: %w", err)
	}
	return nil
}

func logRunResult(result *RunResult) {
	if result.Success {
		logger.Infof("Run %s completed: %d script(s), %d statement(s)",
			result.RunID, result.ScriptCount, result.StatementCount)
		return
	}
	logger.Warnf("Run %s finished with status %s: %v", result.RunID, result.Status, result.Errors)
}
