package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

const worktreeColumns = `id, project_id, epic_id, name, path, branch, status,
	created_at, merge_commit, merged_at`

// UpsertWorktree inserts or refreshes the worktree row for an epic. The
// (project, epic) pair is unique; re-creating an existing worktree updates
// the path/branch/status in place.
func (s *Store) UpsertWorktree(w *models.Worktree) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = models.WorktreeActive
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.Exec(`
		INSERT INTO worktrees (id, project_id, epic_id, name, path, branch, status,
			created_at, merge_commit, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, epic_id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			branch = excluded.branch,
			status = excluded.status
	`, w.ID, w.ProjectID, w.EpicID, w.Name, w.Path, w.Branch, string(w.Status),
		formatTime(w.CreatedAt), w.MergeCommit, formatNullableTime(w.MergedAt))
	if err != nil {
		return fmt.Errorf("upsert worktree: %w", err)
	}
	return nil
}

func scanWorktree(row interface{ Scan(...any) error }) (*models.Worktree, error) {
	var w models.Worktree
	var status, createdAt string
	var mergedAt sql.NullString
	if err := row.Scan(&w.ID, &w.ProjectID, &w.EpicID, &w.Name, &w.Path, &w.Branch,
		&status, &createdAt, &w.MergeCommit, &mergedAt); err != nil {
		return nil, err
	}
	w.Status = models.WorktreeStatus(status)
	w.CreatedAt, _ = parseTime(createdAt)
	w.MergedAt = parseNullableTime(mergedAt)
	return &w, nil
}

// GetWorktreeByEpic returns the worktree assigned to an epic, or nil.
func (s *Store) GetWorktreeByEpic(projectID, epicID string) (*models.Worktree, error) {
	row := s.QueryRow("SELECT "+worktreeColumns+" FROM worktrees WHERE project_id = ? AND epic_id = ?",
		projectID, epicID)
	w, err := scanWorktree(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	return w, nil
}

// UpdateWorktreeStatus transitions the worktree for an epic.
func (s *Store) UpdateWorktreeStatus(projectID, epicID string, status models.WorktreeStatus) error {
	res, err := s.Exec(`
		UPDATE worktrees SET status = ? WHERE project_id = ? AND epic_id = ?
	`, string(status), projectID, epicID)
	if err != nil {
		return fmt.Errorf("update worktree status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update worktree status: no worktree for epic %s", epicID)
	}
	return nil
}

// RecordMerge marks a worktree merged and stamps the trunk commit it
// produced.
func (s *Store) RecordMerge(projectID, epicID, mergeCommit string, at time.Time) error {
	res, err := s.Exec(`
		UPDATE worktrees SET status = ?, merge_commit = ?, merged_at = ?
		WHERE project_id = ? AND epic_id = ?
	`, string(models.WorktreeMerged), mergeCommit, formatTime(at), projectID, epicID)
	if err != nil {
		return fmt.Errorf("record merge: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("record merge: no worktree for epic %s", epicID)
	}
	return nil
}

// ListWorktrees returns a project's worktree rows. A nil status filter
// returns all of them.
func (s *Store) ListWorktrees(projectID string, status *models.WorktreeStatus) ([]*models.Worktree, error) {
	query := "SELECT " + worktreeColumns + " FROM worktrees WHERE project_id = ?"
	args := []any{projectID}
	if status != nil {
		query += " AND status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	defer rows.Close()

	var worktrees []*models.Worktree
	for rows.Next() {
		w, err := scanWorktree(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worktree: %w", err)
		}
		worktrees = append(worktrees, w)
	}
	return worktrees, rows.Err()
}
