// Package resolver turns a flat task list into a dependency-respecting
// execution order: layered batches over hard edges, detected cycles, and
// dangling references. Soft edges are recorded but never block.
package resolver

import (
	"errors"
	"sort"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// ErrCycleDetected indicates a circular hard dependency in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DanglingRef records a dependency on a task id missing from the input.
// The edge is dropped and the dependent task is still scheduled.
type DanglingRef struct {
	TaskID    string
	MissingID string
}

// Graph is the resolver output.
type Graph struct {
	// Batches are layers of task ids; every task's hard dependencies live
	// in strictly earlier batches. Within a batch, tasks are ordered by
	// ascending priority, ties broken by id.
	Batches [][]string
	// Order is the flat execution order (batches concatenated).
	Order []string
	// Cycles lists the simple cycles found in the hard-edge subgraph.
	// Tasks on a cycle are excluded from Batches.
	Cycles [][]string
	// Dangling lists references to unknown task ids.
	Dangling []DanglingRef
	// SoftEdges maps task id to the soft dependencies recorded for it.
	SoftEdges map[string][]string

	tasks map[string]*models.Task
	// hard maps task id to its deduplicated hard dependencies.
	hard map[string][]string
}

// HasCycle reports whether any hard cycle was detected.
func (g *Graph) HasCycle() bool {
	return len(g.Cycles) > 0
}

// Task returns the input task for an id, or nil.
func (g *Graph) Task(id string) *models.Task {
	return g.tasks[id]
}

// HardDeps returns the deduplicated hard dependencies of a task.
func (g *Graph) HardDeps(id string) []string {
	return g.hard[id]
}

// BatchIndex returns the batch a task landed in, or -1 if it is on a
// cycle (or unknown).
func (g *Graph) BatchIndex(id string) int {
	for i, batch := range g.Batches {
		for _, tid := range batch {
			if tid == id {
				return i
			}
		}
	}
	return -1
}

// Resolve runs Kahn's topological sort restricted to hard edges.
func Resolve(tasks []*models.Task) *Graph {
	g := &Graph{
		SoftEdges: make(map[string][]string),
		tasks:     make(map[string]*models.Task, len(tasks)),
		hard:      make(map[string][]string, len(tasks)),
	}
	for _, t := range tasks {
		g.tasks[t.ID] = t
	}

	// Build hard adjacency with deduplication; record soft edges and
	// dangling references.
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string)
	for _, t := range tasks {
		indegree[t.ID] += 0
		seen := make(map[string]bool, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if _, ok := g.tasks[dep]; !ok {
				g.Dangling = append(g.Dangling, DanglingRef{TaskID: t.ID, MissingID: dep})
				continue
			}
			if t.DependencyType == models.DependencySoft {
				g.SoftEdges[t.ID] = append(g.SoftEdges[t.ID], dep)
				continue
			}
			g.hard[t.ID] = append(g.hard[t.ID], dep)
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	// Drain layer by layer.
	done := make(map[string]bool, len(tasks))
	remaining := len(tasks)
	for remaining > 0 {
		var layer []string
		for id, deg := range indegree {
			if deg == 0 && !done[id] {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			break // residual nodes participate in cycles
		}
		g.sortLayer(layer)
		g.Batches = append(g.Batches, layer)
		g.Order = append(g.Order, layer...)
		for _, id := range layer {
			done[id] = true
			remaining--
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
	}

	if remaining > 0 {
		var residual []string
		for id := range g.tasks {
			if !done[id] {
				residual = append(residual, id)
			}
		}
		sort.Strings(residual)
		g.Cycles = enumerateCycles(residual, g.hard)
	}

	return g
}

// sortLayer orders a batch by ascending priority, ties broken by id.
func (g *Graph) sortLayer(layer []string) {
	sort.Slice(layer, func(i, j int) bool {
		a, b := g.tasks[layer[i]], g.tasks[layer[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return layer[i] < layer[j]
	})
}

// enumerateCycles finds simple cycles among the residual nodes by DFS.
// Each returned cycle is rotated to start at its smallest id so the set
// can be deduplicated.
func enumerateCycles(residual []string, hard map[string][]string) [][]string {
	residualSet := make(map[string]bool, len(residual))
	for _, id := range residual {
		residualSet[id] = true
	}

	var cycles [][]string
	found := make(map[string]bool)

	onStack := make(map[string]int) // id -> index in stack
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, dep := range hard[id] {
			if !residualSet[dep] {
				continue
			}
			if at, ok := onStack[dep]; ok {
				cycle := append([]string(nil), stack[at:]...)
				key := canonicalizeCycle(cycle)
				if !found[key] {
					found[key] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			visit(dep)
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
	}

	for _, id := range residual {
		visit(id)
	}
	return cycles
}

// canonicalizeCycle rotates the cycle to start at the smallest id and
// returns a stable key for deduplication. The rotation mutates the slice.
func canonicalizeCycle(cycle []string) string {
	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	rotated := append(append([]string(nil), cycle[min:]...), cycle[:min]...)
	copy(cycle, rotated)
	key := ""
	for _, id := range cycle {
		key += id + "\x00"
	}
	return key
}
