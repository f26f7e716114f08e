package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/logger"
)

// Loader builds the module/definition graph from descriptor sources and
// resolves the module order. It never touches the database.
type Loader struct {
	discoverer   Discoverer
	databaseType string

	modules     map[string]*descriptor.Module
	moduleList  []*descriptor.Module // load order
	definitions map[string]*descriptor.Definition
	defList     []*descriptor.Definition
	loadErrors  []*LoadError
	sequence    int
}

// NewLoader creates a loader. Definitions restricted to a database other
// than databaseType are skipped; an empty databaseType keeps them all.
func NewLoader(discoverer Discoverer, databaseType string) *Loader {
	return &Loader{
		discoverer:   discoverer,
		databaseType: databaseType,
		modules:      make(map[string]*descriptor.Module),
		definitions:  make(map[string]*descriptor.Definition),
	}
}

// Load discovers every descriptor source and loads each one. A source that
// fails to load is logged and skipped. Module order is resolved once all
// sources are in; only discovery failures and dependency cycles are
// returned.
func (l *Loader) Load(ctx context.Context) error {
	if l.discoverer == nil {
		return fmt.Errorf("no descriptor discoverer configured")
	}

	sources, err := l.discoverer.Discover(ctx)
	if err != nil {
		return err
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.LoadSource(ctx, src); err != nil {
			logger.Errorf("%v", err)
		}
	}

	logger.Infof("Loaded %d module(s) and %d definition(s) from %d descriptor(s)",
		len(l.moduleList), len(l.defList), len(sources))

	return l.Resolve()
}

// LoadSource loads one descriptor source. Failures come back as *LoadError
// and leave the loader unchanged.
func (l *Loader) LoadSource(ctx context.Context, src Source) error {
	loadErr := func(err error) error {
		le := &LoadError{Source: src.Name, Err: err}
		l.loadErrors = append(l.loadErrors, le)
		return le
	}

	if src.Open == nil {
		return loadErr(fmt.Errorf("source cannot be opened"))
	}

	r, err := src.Open()
	if err != nil {
		return loadErr(err)
	}
	defer func() { _ = r.Close() }()

	doc, err := descriptor.Parse(src.Name, r)
	if err != nil {
		return loadErr(err)
	}

	module, definitions, err := doc.Build(src.Name, l.sequence, l.databaseType)
	if err != nil {
		return loadErr(err)
	}

	if existing, ok := l.modules[module.ID]; ok {
		return loadErr(fmt.Errorf("module %s is already defined by %s", module.ID, existing.Source))
	}
	seen := make(map[string]bool, len(definitions))
	for _, def := range definitions {
		if _, ok := l.definitions[def.ID]; ok || seen[def.ID] {
			return loadErr(fmt.Errorf("definition %s (%s) is defined twice", def.Name, def.Path))
		}
		seen[def.ID] = true
	}

	l.sequence++
	l.modules[module.ID] = module
	l.moduleList = append(l.moduleList, module)
	for _, def := range definitions {
		l.definitions[def.ID] = def
		l.defList = append(l.defList, def)
	}

	logger.Debugf("Loaded module %s (order %d) with %d definition(s) from %s",
		module.ID, module.Order, len(definitions), src.Name)
	return nil
}

// Resolve orders modules after their dependencies. Dependencies on modules
// that were never loaded are logged and ignored.
func (l *Loader) Resolve() error {
	for _, m := range l.moduleList {
		for _, dep := range m.DependsOn {
			if _, ok := l.modules[dep]; !ok {
				logger.Warnf("Module %s depends on unknown module %s; ignoring", m.ID, dep)
			}
		}
	}
	return ResolveOrder(l.moduleList)
}

// Errors returns the load errors collected so far
func (l *Loader) Errors() []*LoadError {
	return l.loadErrors
}

// Modules returns all modules by resolved order, ties in load order
func (l *Loader) Modules() []*descriptor.Module {
	modules := append([]*descriptor.Module(nil), l.moduleList...)
	sort.SliceStable(modules, func(i, j int) bool {
		return modules[i].Order < modules[j].Order
	})
	return modules
}

// Definitions returns all definitions ascending by resolved order. Ties
// are broken by module load sequence, then local order.
func (l *Loader) Definitions() []*descriptor.Definition {
	defs := append([]*descriptor.Definition(nil), l.defList...)
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i], defs[j]
		if a.Order() != b.Order() {
			return a.Order() < b.Order()
		}
		if a.Module.Sequence != b.Module.Sequence {
			return a.Module.Sequence < b.Module.Sequence
		}
		return a.LocalOrder < b.LocalOrder
	})
	return defs
}

// Module returns a module by id
func (l *Loader) Module(id string) (*descriptor.Module, error) {
	m, ok := l.modules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	return m, nil
}

// Definition returns a definition by id
func (l *Loader) Definition(id string) (*descriptor.Definition, error) {
	d, ok := l.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return d, nil
}

// FindDefinitions returns definitions whose name, path or module id
// contains term, case-insensitively, in resolved order
func (l *Loader) FindDefinitions(term string) []*descriptor.Definition {
	term = strings.ToLower(term)
	var found []*descriptor.Definition
	for _, def := range l.Definitions() {
		if strings.Contains(strings.ToLower(def.Name), term) ||
			strings.Contains(strings.ToLower(def.Path), term) ||
			strings.Contains(strings.ToLower(def.Module.ID), term) {
			found = append(found, def)
		}
	}
	return found
}
