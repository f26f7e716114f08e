// Package descriptor holds the module/definition/migration graph built from
// schema descriptor documents.
package descriptor

// Module is a named unit of schema ownership. Order is assigned at load time
// and raised by the dependency resolver until every dependency orders first.
type Module struct {
	ID        string
	Name      string
	Order     int
	DependsOn []string

	// Source names the descriptor the module was loaded from.
	Source string
	// Sequence is the module's position in load order, used to break ties.
	Sequence int
}

// Definition is one versioned schema unit inside a module: a baseline script
// plus the incremental migrations layered on top of it.
type Definition struct {
	ID           string
	Name         string
	Path         string
	DatabaseType string

	// Tables gate the already-applied check.
	Tables []string
	// DependsOn lists table names for documentation only; it does not affect ordering.
	DependsOn []string

	LocalOrder int
	Module     *Module
	Migrations []*Migration
}

// Order is the definition's global position: module order * 100 + local order.
func (d *Definition) Order() int {
	if d.Module == nil {
		return d.LocalOrder
	}
	return d.Module.Order*100 + d.LocalOrder
}

// ModuleID returns the owning module's id, or "" when detached.
func (d *Definition) ModuleID() string {
	if d.Module == nil {
		return ""
	}
	return d.Module.ID
}

// Migration is one incremental script scoped to a definition, guarded by a
// condition expression that is compiled lazily by the session.
type Migration struct {
	ID         string
	Path       string
	Condition  string
	Definition *Definition
}
