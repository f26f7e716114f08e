package session

import (
	"fmt"
	"strings"

	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/script"
)

// definitionScope holds what is being processed for one definition and the
// log accumulated across all of its scripts.
type definitionScope struct {
	definition *descriptor.Definition
	log        []string
}

// execContext is passed down the call chain for one script execution. The
// per-script log ends up in the registry row.
type execContext struct {
	scope     *definitionScope
	migration *descriptor.Migration // nil for the baseline script
	script    *script.Script
	log       []string
}

func (s *definitionScope) forScript(m *descriptor.Migration, scr *script.Script) *execContext {
	return &execContext{scope: s, migration: m, script: scr}
}

// registryID is the registry key of the script being executed
func (ec *execContext) registryID() string {
	if ec.migration != nil {
		return ec.migration.ID
	}
	return ec.scope.definition.ID
}

func (ec *execContext) kind() string {
	if ec.migration != nil {
		return "migration"
	}
	return "baseline"
}

func (ec *execContext) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	ec.log = append(ec.log, line)
	ec.scope.log = append(ec.scope.log, line)
}

func (ec *execContext) scriptLog() string {
	return strings.Join(ec.log, "\n")
}

func (ec *execContext) clearLog() {
	ec.log = nil
}
