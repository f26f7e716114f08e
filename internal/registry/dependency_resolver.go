package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/logger"
)

// DependencyCycleError is returned when module dependencies do not settle
// into an order because they form a cycle
type DependencyCycleError struct {
	Path []string
}

func (e *DependencyCycleError) Error() string {
	if len(e.Path) == 0 {
		return "circular module dependency detected"
	}
	return fmt.Sprintf("circular module dependency detected: %s", strings.Join(e.Path, " -> "))
}

// DependencyGraph is the module dependency graph
type DependencyGraph struct {
	nodes map[string]bool
	edges map[string][]string // from -> to (from depends on to)
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]bool),
		edges: make(map[string][]string),
	}
}

// AddNode adds a module to the graph
func (g *DependencyGraph) AddNode(id string) {
	if !g.nodes[id] {
		g.nodes[id] = true
		g.edges[id] = []string{}
	}
}

// AddEdge adds a dependency edge from 'from' to 'to' (from depends on to)
func (g *DependencyGraph) AddEdge(from, to string) {
	if !g.nodes[from] || !g.nodes[to] {
		return
	}
	g.edges[from] = append(g.edges[from], to)
}

// DetectCycles finds one cycle using DFS. Nodes are visited in sorted
// order so the reported path is deterministic.
func (g *DependencyGraph) DetectCycles() []string {
	visited := make(map[string]bool)
	onPath := make(map[string]bool)
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if onPath[id] {
			// close the loop at the first occurrence of id
			for i, n := range stack {
				if n == id {
					cycle = append(append([]string{}, stack[i:]...), id)
					break
				}
			}
			return true
		}
		if visited[id] {
			return false
		}

		onPath[id] = true
		stack = append(stack, id)
		for _, dep := range g.edges[id] {
			if dfs(dep) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		delete(onPath, id)
		visited[id] = true
		return false
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

// ResolveOrder bumps module orders until every module orders strictly after
// all of its dependencies. Full passes repeat until one makes no change.
// An acyclic graph settles within len(modules) passes; running past
// len(modules)+1 passes means a cycle, reported as *DependencyCycleError.
// Dependencies on unknown modules are ignored.
func ResolveOrder(modules []*descriptor.Module) error {
	byID := make(map[string]*descriptor.Module, len(modules))
	for _, m := range modules {
		byID[m.ID] = m
	}

	maxPasses := len(modules) + 1
	for pass := 1; ; pass++ {
		changes := 0
		for _, m := range modules {
			for _, depID := range m.DependsOn {
				dep, ok := byID[depID]
				if !ok {
					continue
				}
				if m.Order <= dep.Order {
					m.Order = max(m.Order, dep.Order+1)
					changes++
				}
			}
		}

		if changes == 0 {
			logger.Debugf("Module order resolved after %d pass(es)", pass)
			return nil
		}
		if pass >= maxPasses {
			break
		}
	}

	graph := NewDependencyGraph()
	for _, m := range modules {
		graph.AddNode(m.ID)
	}
	for _, m := range modules {
		for _, depID := range m.DependsOn {
			graph.AddEdge(m.ID, depID)
		}
	}
	return &DependencyCycleError{Path: graph.DetectCycles()}
}
