package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConflictType classifies a predicted file conflict between tasks.
type ConflictType string

const (
	// ConflictSameFile means two or more tasks reference the same path.
	ConflictSameFile ConflictType = "same_file"
	// ConflictSameDirectory means tasks reference distinct files in the
	// same directory.
	ConflictSameDirectory ConflictType = "same_directory"
	// ConflictPotential is a weaker textual suspicion.
	ConflictPotential ConflictType = "potential"
)

// PredictedConflict is a static, text-based suspicion that a set of tasks
// will touch overlapping paths. Conflicts downgrade parallelism; they are
// hints, never a correctness mechanism.
type PredictedConflict struct {
	TaskIDs        []string     `json:"task_ids"`
	PredictedFiles []string     `json:"predicted_files"`
	ConflictType   ConflictType `json:"conflict_type"`
}

// Batch is one layer of the execution plan. Tasks within a batch may run
// concurrently when CanParallel is set; consecutive batches are strictly
// sequenced.
type Batch struct {
	BatchID     int      `json:"batch_id"`
	TaskIDs     []string `json:"task_ids"`
	CanParallel bool     `json:"can_parallel"`
	DependsOn   []int    `json:"depends_on"`
}

// BatchStatus is the live status persisted for a batch during execution.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// PlanMetadata carries summary counters alongside the plan.
type PlanMetadata struct {
	TotalTasks        int `json:"total_tasks"`
	ParallelPossible  int `json:"parallel_possible"`
	ConflictsDetected int `json:"conflicts_detected"`
}

// ExecutionPlan is the immutable output of the plan builder. It is stored
// as JSON inside project metadata under the execution_plan key.
type ExecutionPlan struct {
	ProjectID           string              `json:"project_id"`
	CreatedAt           time.Time           `json:"created_at"`
	Batches             []Batch             `json:"batches"`
	WorktreeAssignments map[string]string   `json:"worktree_assignments"`
	PredictedConflicts  []PredictedConflict `json:"predicted_conflicts"`
	Metadata            PlanMetadata        `json:"metadata"`
}

// TaskCount returns the total number of tasks across all batches.
func (p *ExecutionPlan) TaskCount() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.TaskIDs)
	}
	return n
}

// MarshalPlan serializes a plan to its persisted JSON form.
func MarshalPlan(p *ExecutionPlan) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal execution plan: %w", err)
	}
	return data, nil
}

// UnmarshalPlan parses a plan from its persisted JSON form.
func UnmarshalPlan(data []byte) (*ExecutionPlan, error) {
	var p ExecutionPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal execution plan: %w", err)
	}
	return &p, nil
}

// ExecutionMode is the per-project execution style derived from the plan.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// SelectMode is the single pure function that decides the execution mode
// for a plan: parallel iff any batch can run two or more tasks
// concurrently. The result is persisted on the project and drives which
// driver runs the plan.
func SelectMode(p *ExecutionPlan) ExecutionMode {
	if p == nil {
		return ModeSequential
	}
	for _, b := range p.Batches {
		if b.CanParallel && len(b.TaskIDs) >= 2 {
			return ModeParallel
		}
	}
	return ModeSequential
}
