// Package schema provides the handle a migration session works against:
// live object inspection of the target database plus resolution of the
// scripts that describe it.
package schema

import (
	"context"
	"fmt"

	"github.com/toolsascode/schemaflow/internal/backends"
	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/script"
)

// Schema combines an Inspector with a script source
type Schema struct {
	backends.Inspector
	scripts *script.Source
}

// New creates a Schema
func New(inspector backends.Inspector, scripts *script.Source) *Schema {
	return &Schema{Inspector: inspector, scripts: scripts}
}

// BaselineScript resolves the baseline script of a definition
func (s *Schema) BaselineScript(def *descriptor.Definition) (*script.Script, error) {
	return s.scripts.Baseline(def.Path)
}

// MigrationScript resolves the script of a migration
func (s *Schema) MigrationScript(m *descriptor.Migration) (*script.Script, error) {
	return s.scripts.Migration(m.Path)
}

// AnyTableExists reports whether at least one of tables exists
func (s *Schema) AnyTableExists(ctx context.Context, tables []string) (bool, error) {
	for _, table := range tables {
		exists, err := s.TableExists(ctx, table)
		if err != nil {
			return false, fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// AllTablesExist reports whether every one of tables exists. An empty list
// is reported as not existing.
func (s *Schema) AllTablesExist(ctx context.Context, tables []string) (bool, error) {
	if len(tables) == 0 {
		return false, nil
	}
	for _, table := range tables {
		exists, err := s.TableExists(ctx, table)
		if err != nil {
			return false, fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}
