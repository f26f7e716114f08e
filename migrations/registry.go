package migrations

import (
	"context"
	"errors"
	"io/fs"

	"github.com/toolsascode/schemaflow/internal/condition"
	"github.com/toolsascode/schemaflow/internal/registry"
)

// Load reads every descriptor below root in fsys and returns the definitions
// in run order. Descriptors that fail to load are skipped and reported
// together in the returned error alongside the definitions that did load.
func Load(ctx context.Context, fsys fs.FS, root, databaseType string) ([]*Definition, error) {
	loader := registry.NewLoader(registry.NewDirDiscoverer(fsys, root), databaseType)
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}

	var errs []error
	for _, le := range loader.Errors() {
		errs = append(errs, le)
	}
	return loader.Definitions(), errors.Join(errs...)
}

// ParseCondition parses a condition expression such as
// "column orders.status exists"
func ParseCondition(text string) (*Condition, error) {
	return condition.Parse(text)
}
