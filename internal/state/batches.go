package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// BatchRecord is the live execution status persisted for one plan batch.
type BatchRecord struct {
	ProjectID   string
	BatchID     int
	TaskIDs     []string
	CanParallel bool
	Status      models.BatchStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// UpsertBatch seeds (or resets) the row for a plan batch. Re-planning
// resets previously executed batches to pending.
func (s *Store) UpsertBatch(projectID string, b models.Batch) error {
	taskIDs, err := json.Marshal(orEmpty(b.TaskIDs))
	if err != nil {
		return fmt.Errorf("marshal batch task ids: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO parallel_batches (project_id, batch_id, task_ids, can_parallel, status)
		VALUES (?, ?, ?, ?, 'pending')
		ON CONFLICT(project_id, batch_id) DO UPDATE SET
			task_ids = excluded.task_ids,
			can_parallel = excluded.can_parallel,
			status = 'pending',
			started_at = NULL,
			completed_at = NULL
	`, projectID, b.BatchID, string(taskIDs), boolInt(b.CanParallel))
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// UpdateBatchStatus is the single place batch status transitions happen.
// Running stamps started_at; terminal states stamp completed_at.
func (s *Store) UpdateBatchStatus(projectID string, batchID int, status models.BatchStatus, at time.Time) error {
	var query string
	switch status {
	case models.BatchRunning:
		query = "UPDATE parallel_batches SET status = ?, started_at = ? WHERE project_id = ? AND batch_id = ?"
	case models.BatchCompleted, models.BatchFailed, models.BatchCancelled:
		query = "UPDATE parallel_batches SET status = ?, completed_at = ? WHERE project_id = ? AND batch_id = ?"
	default:
		query = "UPDATE parallel_batches SET status = ?, started_at = started_at WHERE project_id = ? AND batch_id = ?"
	}
	var res sql.Result
	var err error
	if status == models.BatchPending {
		res, err = s.Exec(query, string(status), projectID, batchID)
	} else {
		res, err = s.Exec(query, string(status), formatTime(at), projectID, batchID)
	}
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update batch status: no batch %d for project %s", batchID, projectID)
	}
	return nil
}

func scanBatch(row interface{ Scan(...any) error }) (*BatchRecord, error) {
	var r BatchRecord
	var taskIDs, status string
	var canParallel int
	var startedAt, completedAt sql.NullString
	if err := row.Scan(&r.ProjectID, &r.BatchID, &taskIDs, &canParallel, &status,
		&startedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(taskIDs), &r.TaskIDs); err != nil {
		return nil, fmt.Errorf("unmarshal batch task ids: %w", err)
	}
	r.CanParallel = canParallel != 0
	r.Status = models.BatchStatus(status)
	r.StartedAt = parseNullableTime(startedAt)
	r.CompletedAt = parseNullableTime(completedAt)
	return &r, nil
}

const batchColumns = "project_id, batch_id, task_ids, can_parallel, status, started_at, completed_at"

// GetBatch returns the live record for one batch, or nil.
func (s *Store) GetBatch(projectID string, batchID int) (*BatchRecord, error) {
	row := s.QueryRow("SELECT "+batchColumns+" FROM parallel_batches WHERE project_id = ? AND batch_id = ?",
		projectID, batchID)
	r, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return r, nil
}

// ListBatches returns a project's batch records in plan order.
func (s *Store) ListBatches(projectID string) ([]*BatchRecord, error) {
	rows, err := s.Query("SELECT "+batchColumns+" FROM parallel_batches WHERE project_id = ? ORDER BY batch_id", projectID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var records []*BatchRecord
	for rows.Next() {
		r, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
