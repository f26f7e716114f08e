package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/toolsascode/schemaflow/internal/condition"
	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/registry"
	"github.com/toolsascode/schemaflow/internal/schema"
	"github.com/toolsascode/schemaflow/internal/session"
	"github.com/toolsascode/schemaflow/internal/state"
)

// Action is what the next run would do with a definition or migration
type Action string

const (
	ActionCreate   Action = "create"   // definition missing: its baseline runs
	ActionMigrate  Action = "migrate"  // definition exists: pending migrations run
	ActionBaseline Action = "baseline" // migration recorded APPLIED by the baseline
	ActionApplied  Action = "applied"  // migration already recorded
	ActionRun      Action = "run"
	ActionSkip     Action = "skip" // condition already holds
)

// PlannedMigration is one migration in a plan
type PlannedMigration struct {
	ID        string
	Path      string
	Condition string
	Status    state.Status
	Action    Action
}

// PlannedDefinition is one definition in a plan
type PlannedDefinition struct {
	ID         string
	Module     string
	Name       string
	Path       string
	Order      int
	Tables     []string
	Applied    bool
	Status     state.Status
	Action     Action
	Migrations []*PlannedMigration
}

// Plan previews a run without executing anything
type Plan struct {
	Definitions []*PlannedDefinition
	LoadErrors  []string
}

// Pending counts the scripts the next run would execute
func (p *Plan) Pending() int {
	n := 0
	for _, d := range p.Definitions {
		if d.Action == ActionCreate {
			n++
		}
		for _, m := range d.Migrations {
			if m.Action == ActionRun {
				n++
			}
		}
	}
	return n
}

// Plan loads the descriptors and reports, in run order, what the next run
// would do. A non-empty filter keeps definitions whose name, path or module
// matches it.
func (e *Executor) Plan(ctx context.Context, filter string) (*Plan, error) {
	if err := e.target.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("target database health check failed: %w", err)
	}
	if err := e.tracker.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	policy, err := session.ParseAppliedPolicy(strings.ToLower(e.opts.AppliedPolicy))
	if err != nil {
		return nil, err
	}

	loader := registry.NewLoader(e.discoverer, e.opts.DatabaseType)
	if err := loader.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load descriptors: %w", err)
	}

	definitions := loader.Definitions()
	if filter != "" {
		definitions = loader.FindDefinitions(filter)
	}

	plan := &Plan{}
	for _, le := range loader.Errors() {
		plan.LoadErrors = append(plan.LoadErrors, le.Error())
	}

	sch := schema.New(e.target, e.scripts)
	for _, def := range definitions {
		planned, err := e.planDefinition(ctx, sch, def, policy)
		if err != nil {
			return nil, err
		}
		plan.Definitions = append(plan.Definitions, planned)
	}
	return plan, nil
}

func (e *Executor) planDefinition(ctx context.Context, sch *schema.Schema, def *descriptor.Definition, policy session.AppliedPolicy) (*PlannedDefinition, error) {
	applied, err := session.DefinitionApplied(ctx, sch, e.tracker, def, policy)
	if err != nil {
		return nil, err
	}
	status, err := e.tracker.LastStatus(ctx, def.ID)
	if err != nil {
		return nil, err
	}

	planned := &PlannedDefinition{
		ID:      def.ID,
		Module:  def.ModuleID(),
		Name:    def.Name,
		Path:    def.Path,
		Order:   def.Order(),
		Tables:  def.Tables,
		Applied: applied,
		Status:  status,
		Action:  ActionMigrate,
	}
	if !applied {
		planned.Action = ActionCreate
	}

	for _, m := range def.Migrations {
		pm := &PlannedMigration{ID: m.ID, Path: m.Path, Condition: m.Condition}
		if pm.Status, err = e.tracker.LastStatus(ctx, m.ID); err != nil {
			return nil, err
		}

		switch {
		case !applied:
			pm.Action = ActionBaseline
		case pm.Status.Done():
			pm.Action = ActionApplied
		default:
			cond, err := condition.Parse(m.Condition)
			if err != nil {
				return nil, fmt.Errorf("migration %s: %w", m.Path, err)
			}
			pm.Action = ActionRun
			if !cond.IsEmpty() {
				holds, err := cond.Evaluate(ctx, sch)
				if err != nil {
					return nil, fmt.Errorf("migration %s: %w", m.Path, err)
				}
				if holds {
					pm.Action = ActionSkip
				}
			}
		}
		planned.Migrations = append(planned.Migrations, pm)
	}
	return planned, nil
}
