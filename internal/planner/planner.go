// Package planner builds immutable execution plans: resolver batches
// combined with file-conflict prediction and worktree pre-assignment.
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/resolver"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// BuildPlan runs the planning pipeline over a project's pending tasks.
// It mutates each task's metadata with its predicted files; the caller
// persists both the tasks and the returned plan.
//
// A hard dependency cycle is a planning error and aborts the build.
func BuildPlan(projectID string, tasks []*models.Task, epics []*models.Epic, maxWorktrees int) (*models.ExecutionPlan, error) {
	graph := resolver.Resolve(tasks)
	if graph.HasCycle() {
		var parts []string
		for _, cycle := range graph.Cycles {
			parts = append(parts, strings.Join(cycle, " -> "))
		}
		return nil, fmt.Errorf("%w: %s", resolver.ErrCycleDetected, strings.Join(parts, "; "))
	}

	conflicts := PredictConflicts(tasks)
	assignments := AssignWorktrees(tasks, epics, maxWorktrees)

	batches := make([]models.Batch, 0, len(graph.Batches))
	parallelPossible := 0
	for i, ids := range graph.Batches {
		b := models.Batch{
			BatchID:   i,
			TaskIDs:   ids,
			DependsOn: batchDependencies(graph, i, ids),
		}
		b.CanParallel = len(ids) > 1 && !anyConflictWithin(conflicts, ids)
		if b.CanParallel {
			parallelPossible++
		}
		batches = append(batches, b)
	}

	return &models.ExecutionPlan{
		ProjectID:           projectID,
		CreatedAt:           time.Now().UTC().Truncate(time.Second),
		Batches:             batches,
		WorktreeAssignments: assignments,
		PredictedConflicts:  conflicts,
		Metadata: models.PlanMetadata{
			TotalTasks:        len(tasks),
			ParallelPossible:  parallelPossible,
			ConflictsDetected: len(conflicts),
		},
	}, nil
}

// batchDependencies lists the earlier batches holding hard dependencies
// of this batch's tasks.
func batchDependencies(g *resolver.Graph, idx int, ids []string) []int {
	seen := make(map[int]bool)
	var deps []int
	for _, id := range ids {
		for _, dep := range g.HardDeps(id) {
			bi := g.BatchIndex(dep)
			if bi >= 0 && bi < idx && !seen[bi] {
				seen[bi] = true
				deps = append(deps, bi)
			}
		}
	}
	// Ascending for stable serialization.
	for i := 1; i < len(deps); i++ {
		for j := i; j > 0 && deps[j-1] > deps[j]; j-- {
			deps[j-1], deps[j] = deps[j], deps[j-1]
		}
	}
	if deps == nil {
		deps = []int{}
	}
	return deps
}

// anyConflictWithin reports whether some predicted conflict's task set is
// entirely contained in the batch.
func anyConflictWithin(conflicts []models.PredictedConflict, batch []string) bool {
	inBatch := make(map[string]bool, len(batch))
	for _, id := range batch {
		inBatch[id] = true
	}
	for _, c := range conflicts {
		if len(c.TaskIDs) < 2 {
			continue
		}
		all := true
		for _, id := range c.TaskIDs {
			if !inBatch[id] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
