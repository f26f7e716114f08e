package migrations

import (
	"github.com/toolsascode/schemaflow/internal/condition"
	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/state"
)

// Public aliases for the descriptor model, so code outside this module can
// use the types without importing internal packages.
type (
	Module     = descriptor.Module
	Definition = descriptor.Definition
	Migration  = descriptor.Migration
	Condition  = condition.Condition
	Status     = state.Status
	Record     = state.Record
)

// Registry statuses
const (
	StatusNA         = state.StatusNA
	StatusSuccessful = state.StatusSuccessful
	StatusFailed     = state.StatusFailed
	StatusApplied    = state.StatusApplied
)
