package models

import "time"

// WorktreeStatus is the lifecycle state of an isolated working copy.
type WorktreeStatus string

const (
	// WorktreeActive means the directory and branch exist and agents may use it.
	WorktreeActive WorktreeStatus = "active"
	// WorktreeMerged means the branch has been merged into trunk.
	WorktreeMerged WorktreeStatus = "merged"
	// WorktreeConflict means the last merge attempt hit conflicts; the
	// directory is left in place for manual inspection.
	WorktreeConflict WorktreeStatus = "conflict"
	// WorktreeCleanup means the worktree has been removed.
	WorktreeCleanup WorktreeStatus = "cleanup"
	// WorktreeAbandoned means reconciliation found the directory or branch
	// gone without a recorded merge.
	WorktreeAbandoned WorktreeStatus = "abandoned"
)

// Worktree is an isolated working copy of the repository on a dedicated
// branch, keyed uniquely by (project, epic).
type Worktree struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	EpicID    string         `json:"epic_id"`
	Name      string         `json:"name"`
	Path      string         `json:"path"`
	Branch    string         `json:"branch"`
	Status    WorktreeStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	// MergeCommit is the trunk commit produced when the worktree merged.
	MergeCommit string     `json:"merge_commit,omitempty"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`
}
