// Package session drives one end-to-end migration run: it acquires the
// schema handle, ensures the execution registry exists, loads descriptors,
// and then brings every definition up to date in resolved order, either by
// running its baseline script or its pending migrations.
//
// A Session is single-use and not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/toolsascode/schemaflow/internal/backends"
	"github.com/toolsascode/schemaflow/internal/condition"
	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/schema"
	"github.com/toolsascode/schemaflow/internal/script"
	"github.com/toolsascode/schemaflow/internal/state"
)

// Phase is the lifecycle position of a session
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseInitialized
	PhaseRegistryReady
	PhaseLoading
	PhaseExecuting
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "NOT_STARTED"
	case PhaseInitialized:
		return "INITIALIZED"
	case PhaseRegistryReady:
		return "REGISTRY_READY"
	case PhaseLoading:
		return "LOADING"
	case PhaseExecuting:
		return "EXECUTING"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseFailed:
		return "FAILED"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// AppliedPolicy decides when a definition with declared tables counts as
// already applied
type AppliedPolicy string

const (
	// AppliedAny treats a definition as applied when any declared table exists
	AppliedAny AppliedPolicy = "any"
	// AppliedAll requires every declared table to exist
	AppliedAll AppliedPolicy = "all"
)

// ParseAppliedPolicy parses a policy name; empty means AppliedAny
func ParseAppliedPolicy(value string) (AppliedPolicy, error) {
	switch AppliedPolicy(value) {
	case "", AppliedAny:
		return AppliedAny, nil
	case AppliedAll:
		return AppliedAll, nil
	}
	return "", fmt.Errorf("unknown applied policy %q (expected any or all)", value)
}

// Target is the database a session migrates
type Target interface {
	backends.Inspector
	backends.Executor
	HealthCheck(ctx context.Context) error
}

// Loader supplies definitions in resolved order
type Loader interface {
	Load(ctx context.Context) error
	Definitions() []*descriptor.Definition
}

// Options tune a session
type Options struct {
	// FailOnError makes the first failing statement fatal to the run
	FailOnError bool
	// AppliedPolicy selects the already-applied heuristic; defaults to AppliedAny
	AppliedPolicy AppliedPolicy
	// RunID identifies the run in the registry; generated when empty
	RunID string
	// ExecutedBy is recorded with every registry row
	ExecutedBy string
}

// Session is one migration run
type Session struct {
	target  Target
	scripts *script.Source
	tracker state.Tracker
	loader  Loader
	opts    Options

	schema *schema.Schema
	phase  Phase
	status state.Status
	log    []string

	scriptCount          int
	statementCount       int
	failedStatementCount int
}

// New creates a session
func New(target Target, scripts *script.Source, tracker state.Tracker, loader Loader, opts Options) *Session {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.AppliedPolicy == "" {
		opts.AppliedPolicy = AppliedAny
	}
	return &Session{
		target:  target,
		scripts: scripts,
		tracker: tracker,
		loader:  loader,
		opts:    opts,
		phase:   PhaseNotStarted,
		status:  state.StatusNA,
	}
}

// ID returns the run id
func (s *Session) ID() string { return s.opts.RunID }

// Phase returns the current lifecycle phase
func (s *Session) Phase() Phase { return s.phase }

// Status is FAILED once any statement failed, SUCCESSFUL once execution
// started without failures, and NA before that
func (s *Session) Status() state.Status { return s.status }

// ScriptCount returns the number of scripts executed
func (s *Session) ScriptCount() int { return s.scriptCount }

// StatementCount returns the number of statements sent to the executor
func (s *Session) StatementCount() int { return s.statementCount }

// FailedStatementCount returns the number of statements that failed
func (s *Session) FailedStatementCount() int { return s.failedStatementCount }

// Log returns the session log
func (s *Session) Log() []string {
	return append([]string(nil), s.log...)
}

func (s *Session) entry() *logrus.Entry {
	return logger.WithFields(map[string]interface{}{"run_id": s.opts.RunID})
}

func (s *Session) logf(format string, args ...interface{}) {
	s.log = append(s.log, fmt.Sprintf(format, args...))
}

// Execute runs the session to completion. Statement failures are counted
// and recorded; they only abort the run when FailOnError is set, in which
// case a *MigrationError is returned. Missing scripts, unreadable scripts,
// invalid conditions and registry failures are always fatal.
func (s *Session) Execute(ctx context.Context) (err error) {
	if s.phase != PhaseNotStarted {
		return fmt.Errorf("session %s already executed (phase %s)", s.opts.RunID, s.phase)
	}

	defer func() {
		if err != nil {
			s.phase = PhaseFailed
			s.logf("run failed: %v", err)
			s.entry().Errorf("Migration run failed: %v", err)
		}
	}()

	if err := s.target.HealthCheck(ctx); err != nil {
		return fmt.Errorf("failed to acquire schema: %w", err)
	}
	s.schema = schema.New(s.target, s.scripts)
	s.phase = PhaseInitialized

	if err := s.tracker.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	s.phase = PhaseRegistryReady

	s.phase = PhaseLoading
	if err := s.loader.Load(ctx); err != nil {
		return fmt.Errorf("failed to load descriptors: %w", err)
	}
	definitions := s.loader.Definitions()

	s.phase = PhaseExecuting
	s.status = state.StatusSuccessful
	s.logf("run %s: %d definition(s) to process", s.opts.RunID, len(definitions))
	s.entry().Infof("Processing %d definition(s)", len(definitions))

	for _, def := range definitions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.executeDefinition(ctx, def); err != nil {
			return err
		}
	}

	s.phase = PhaseCompleted
	s.logf("run %s finished: %d script(s), %d statement(s), %d failed", s.opts.RunID,
		s.scriptCount, s.statementCount, s.failedStatementCount)
	s.entry().Infof("Run finished with status %s: %d script(s), %d statement(s), %d failed",
		s.status, s.scriptCount, s.statementCount, s.failedStatementCount)
	return nil
}

func (s *Session) executeDefinition(ctx context.Context, def *descriptor.Definition) error {
	scope := &definitionScope{definition: def}

	applied, err := s.isApplied(ctx, def)
	if err != nil {
		return s.fatal(scope, err)
	}

	if !applied {
		return s.createDefinition(ctx, scope)
	}
	return s.migrateDefinition(ctx, scope)
}

func (s *Session) isApplied(ctx context.Context, def *descriptor.Definition) (bool, error) {
	return DefinitionApplied(ctx, s.schema, s.tracker, def, s.opts.AppliedPolicy)
}

// DefinitionApplied reports whether def already exists in the target.
// Definitions without declared tables fall back to the registry status of
// their baseline script.
func DefinitionApplied(ctx context.Context, sch *schema.Schema, tracker state.Tracker, def *descriptor.Definition, policy AppliedPolicy) (bool, error) {
	if len(def.Tables) == 0 {
		status, err := tracker.LastStatus(ctx, def.ID)
		if err != nil {
			return false, err
		}
		return status.Done(), nil
	}

	if policy == AppliedAll {
		return sch.AllTablesExist(ctx, def.Tables)
	}
	return sch.AnyTableExists(ctx, def.Tables)
}

// createDefinition runs the baseline script and marks every migration of
// the definition APPLIED, since the baseline already holds their end state.
func (s *Session) createDefinition(ctx context.Context, scope *definitionScope) error {
	def := scope.definition

	baseline, err := s.schema.BaselineScript(def)
	if err != nil {
		return s.fatal(scope, err)
	}

	ok, err := s.runScript(ctx, scope.forScript(nil, baseline))
	if err != nil {
		return err
	}
	if !ok {
		// best effort: a failed baseline leaves its migrations pending
		return nil
	}

	for _, m := range def.Migrations {
		scr, err := s.schema.MigrationScript(m)
		if err != nil {
			return s.fatal(scope, &ChecksumError{Path: m.Path, Err: err})
		}

		ec := scope.forScript(m, scr)
		ec.logf("applied by baseline %s", baseline.Name)
		record := s.newRecord(ec, time.Now(), 0, state.StatusApplied)
		if err := s.tracker.Record(ctx, record); err != nil {
			return s.fatal(scope, err)
		}
		ec.clearLog()
	}

	return nil
}

// migrateDefinition runs every pending migration whose condition does not
// already hold.
func (s *Session) migrateDefinition(ctx context.Context, scope *definitionScope) error {
	def := scope.definition
	entry := s.entry().WithField("definition", def.Name)

	for _, m := range def.Migrations {
		status, err := s.tracker.LastStatus(ctx, m.ID)
		if err != nil {
			return s.fatal(scope, err)
		}
		if status.Done() {
			entry.Debugf("Skipping %s: already %s", m.Path, status)
			continue
		}

		cond, err := condition.Parse(m.Condition)
		if err != nil {
			return s.fatal(scope, fmt.Errorf("migration %s: %w", m.Path, err))
		}
		if !cond.IsEmpty() {
			satisfied, err := cond.Evaluate(ctx, s.schema)
			if err != nil {
				return s.fatal(scope, fmt.Errorf("migration %s: %w", m.Path, err))
			}
			if satisfied {
				entry.Infof("Skipping %s: condition %q already holds", m.Path, cond)
				s.logf("skipped %s: %s", m.Path, cond)
				continue
			}
		}

		scr, err := s.schema.MigrationScript(m)
		if err != nil {
			return s.fatal(scope, err)
		}
		if _, err := s.runScript(ctx, scope.forScript(m, scr)); err != nil {
			return err
		}
	}

	return nil
}

// runScript executes the statements of one script in order and writes its
// registry row. ok is false when any statement failed. A non-nil error is
// session-fatal.
func (s *Session) runScript(ctx context.Context, ec *execContext) (ok bool, err error) {
	def := ec.scope.definition
	entry := s.entry().WithFields(logrus.Fields{
		"module":     def.Module.ID,
		"definition": def.Name,
		"script":     ec.script.Name,
	})
	entry.Infof("Executing %s script", ec.kind())

	start := time.Now()
	s.scriptCount++

	var firstErr error
	statements := ec.script.Statements()
	for i, stmt := range statements {
		s.statementCount++
		ec.logf("[%d/%d] %s", i+1, len(statements), stmt)

		if execErr := s.target.Exec(ctx, stmt); execErr != nil {
			s.failedStatementCount++
			s.status = state.StatusFailed
			ec.logf("ERROR: %v", execErr)
			entry.Errorf("Statement %d/%d failed: %v", i+1, len(statements), execErr)
			if firstErr == nil {
				firstErr = execErr
			}
			if s.opts.FailOnError {
				break
			}
		}
	}

	status := state.StatusSuccessful
	if firstErr != nil {
		status = state.StatusFailed
	}

	record := s.newRecord(ec, start, time.Since(start).Milliseconds(), status)
	if err := s.tracker.Record(ctx, record); err != nil {
		return false, s.fatal(ec.scope, err)
	}
	ec.clearLog()
	s.logf("%s %s: %s", ec.kind(), ec.script.Name, status)

	if firstErr != nil && s.opts.FailOnError {
		return false, s.fatal(ec.scope, fmt.Errorf("%s: %w", ec.script.Name, firstErr))
	}
	return firstErr == nil, nil
}

func (s *Session) newRecord(ec *execContext, appliedAt time.Time, durationMs int64, status state.Status) *state.Record {
	def := ec.scope.definition
	return &state.Record{
		ID:         ec.registryID(),
		Name:       def.Name,
		Module:     def.Module.ID,
		Path:       ec.script.Name,
		AppliedAt:  appliedAt,
		DurationMs: durationMs,
		Status:     status,
		Checksum:   ec.script.Checksum(),
		Log:        ec.scriptLog(),
		RunID:      s.opts.RunID,
		ExecutedBy: s.opts.ExecutedBy,
	}
}

// fatal wraps err into a *MigrationError for the definition in scope
func (s *Session) fatal(scope *definitionScope, err error) error {
	var migrationErr *MigrationError
	if errors.As(err, &migrationErr) {
		return err
	}
	def := scope.definition
	moduleName := def.Module.Name
	if moduleName == "" {
		moduleName = def.Module.ID
	}
	return &MigrationError{
		Definition: def.Name,
		Module:     moduleName,
		Log:        append([]string(nil), scope.log...),
		Err:        err,
	}
}
