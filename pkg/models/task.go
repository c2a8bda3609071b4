// Package models defines the core domain types shared across the engine:
// projects, epics, tasks, sessions, worktrees, execution plans, and costs.
package models

import "time"

// DependencyType describes how a task dependency affects scheduling.
type DependencyType string

const (
	// DependencyHard blocks scheduling until the dependency completes.
	DependencyHard DependencyType = "hard"
	// DependencySoft is informational and never blocks scheduling.
	DependencySoft DependencyType = "soft"
)

// Project is the root entity. It owns all epics, tasks, sessions,
// worktrees, batches, and costs; deleting a project cascades.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	WorkingDir string    `json:"working_dir"`
	CreatedAt  time.Time `json:"created_at"`
	// Metadata is a free-form JSON mapping holding the execution mode,
	// the most recent execution plan, settings, and status timestamps.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Well-known project metadata keys.
const (
	MetaExecutionPlan  = "execution_plan"
	MetaExecutionMode  = "execution_mode"
	MetaStopRequested  = "parallel_stop_requested"
	MetaLastPlannedAt  = "last_planned_at"
	MetaLastExecutedAt = "last_executed_at"
)

// Epic is a named grouping of tasks within a project. Lower priority
// sorts earlier. An epic owns its tasks and, once scheduled, a worktree.
type Epic struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	Priority  int      `json:"priority"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Task is a unit of agent work. It belongs to exactly one epic.
type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	// EpicID is empty for tasks outside any epic; those fall into the
	// default worktree during planning.
	EpicID      string `json:"epic_id,omitempty"`
	Description string `json:"description"`
	// Action is the long-form instruction text handed to the agent.
	Action         string         `json:"action"`
	Priority       int            `json:"priority"`
	Done           bool           `json:"done"`
	DependsOn      []string       `json:"depends_on,omitempty"`
	DependencyType DependencyType `json:"dependency_type,omitempty"`
	Metadata       TaskMetadata   `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// TaskMetadata holds planner- and selector-written task annotations.
// The agent never writes here; the planner owns predicted_files and the
// user owns model_override.
type TaskMetadata struct {
	PredictedFiles []string `json:"predicted_files,omitempty"`
	ModelOverride  string   `json:"model_override,omitempty"`
}

// Text returns the concatenated description and action, which is what
// conflict prediction and complexity scoring scan.
func (t *Task) Text() string {
	if t.Action == "" {
		return t.Description
	}
	return t.Description + "\n" + t.Action
}

// Test is a verification item attached to a task.
type Test struct {
	ID          string   `json:"id"`
	TaskID      string   `json:"task_id"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Steps       []string `json:"steps,omitempty"`
	Passed      bool     `json:"passed"`
	Result      string   `json:"result,omitempty"`
}
