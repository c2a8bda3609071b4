package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// CreateEpic inserts an epic row.
func (s *Store) CreateEpic(e *models.Epic) error {
	deps, err := json.Marshal(orEmpty(e.DependsOn))
	if err != nil {
		return fmt.Errorf("marshal epic depends_on: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO epics (id, project_id, name, priority, depends_on)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, e.Name, e.Priority, string(deps))
	if err != nil {
		return fmt.Errorf("create epic: %w", err)
	}
	return nil
}

// ListEpics returns all epics for a project ordered by priority then name.
func (s *Store) ListEpics(projectID string) ([]*models.Epic, error) {
	rows, err := s.Query(`
		SELECT id, project_id, name, priority, depends_on
		FROM epics WHERE project_id = ? ORDER BY priority, name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list epics: %w", err)
	}
	defer rows.Close()

	var epics []*models.Epic
	for rows.Next() {
		var e models.Epic
		var deps string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Name, &e.Priority, &deps); err != nil {
			return nil, fmt.Errorf("scan epic: %w", err)
		}
		if err := json.Unmarshal([]byte(deps), &e.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal epic depends_on: %w", err)
		}
		epics = append(epics, &e)
	}
	return epics, rows.Err()
}

// CreateTask inserts a task row.
func (s *Store) CreateTask(t *models.Task) error {
	deps, err := json.Marshal(orEmpty(t.DependsOn))
	if err != nil {
		return fmt.Errorf("marshal task depends_on: %w", err)
	}
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal task metadata: %w", err)
	}
	depType := t.DependencyType
	if depType == "" {
		depType = models.DependencyHard
	}
	var epicID any
	if t.EpicID != "" {
		epicID = t.EpicID
	}
	_, err = s.Exec(`
		INSERT INTO tasks (id, project_id, epic_id, description, action, priority, done,
			depends_on, dependency_type, metadata, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, epicID, t.Description, t.Action, t.Priority, boolInt(t.Done),
		string(deps), string(depType), string(meta), formatTime(t.CreatedAt),
		formatNullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	var epicID, completedAt sql.NullString
	var deps, depType, meta, createdAt string
	var done int
	if err := row.Scan(&t.ID, &t.ProjectID, &epicID, &t.Description, &t.Action,
		&t.Priority, &done, &deps, &depType, &meta, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	t.EpicID = epicID.String
	t.Done = done != 0
	t.DependencyType = models.DependencyType(depType)
	if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
		return nil, fmt.Errorf("unmarshal task depends_on: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal task metadata: %w", err)
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

const taskColumns = `id, project_id, epic_id, description, action, priority, done,
	depends_on, dependency_type, metadata, created_at, completed_at`

// GetTask retrieves a task by id. Returns nil when not found.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListPendingTasks returns the not-done tasks of a project, ordered by
// priority then id. This ordering is the planner's input.
func (s *Store) ListPendingTasks(projectID string) ([]*models.Task, error) {
	return s.listTasks("SELECT "+taskColumns+" FROM tasks WHERE project_id = ? AND done = 0 ORDER BY priority, id", projectID)
}

// ListTasks returns all tasks of a project.
func (s *Store) ListTasks(projectID string) ([]*models.Task, error) {
	return s.listTasks("SELECT "+taskColumns+" FROM tasks WHERE project_id = ? ORDER BY priority, id", projectID)
}

func (s *Store) listTasks(query string, args ...any) ([]*models.Task, error) {
	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkTaskDone flips the done flag and stamps completion time.
func (s *Store) MarkTaskDone(id string, at time.Time) error {
	res, err := s.Exec(`
		UPDATE tasks SET done = 1, completed_at = ? WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark task done: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("mark task done: task %s not found", id)
	}
	return nil
}

// UpdateTaskMetadata overwrites a task's metadata (predicted files,
// model override).
func (s *Store) UpdateTaskMetadata(id string, meta models.TaskMetadata) error {
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal task metadata: %w", err)
	}
	if _, err := s.Exec("UPDATE tasks SET metadata = ? WHERE id = ?", string(blob), id); err != nil {
		return fmt.Errorf("update task metadata: %w", err)
	}
	return nil
}

// CreateTest inserts a test row for a task.
func (s *Store) CreateTest(t *models.Test) error {
	steps, err := json.Marshal(orEmpty(t.Steps))
	if err != nil {
		return fmt.Errorf("marshal test steps: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO tests (id, task_id, category, description, steps, passed, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.TaskID, t.Category, t.Description, string(steps), boolInt(t.Passed), t.Result)
	if err != nil {
		return fmt.Errorf("create test: %w", err)
	}
	return nil
}

// ListTestsByTask returns all tests attached to a task.
func (s *Store) ListTestsByTask(taskID string) ([]*models.Test, error) {
	rows, err := s.Query(`
		SELECT id, task_id, category, description, steps, passed, result
		FROM tests WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	var tests []*models.Test
	for rows.Next() {
		var t models.Test
		var steps string
		var passed int
		if err := rows.Scan(&t.ID, &t.TaskID, &t.Category, &t.Description, &steps, &passed, &t.Result); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		t.Passed = passed != 0
		if err := json.Unmarshal([]byte(steps), &t.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal test steps: %w", err)
		}
		tests = append(tests, &t)
	}
	return tests, rows.Err()
}

// RecordTestResult updates a test's pass flag and result blob.
func (s *Store) RecordTestResult(id string, passed bool, result string) error {
	if _, err := s.Exec(`
		UPDATE tests SET passed = ?, result = ? WHERE id = ?
	`, boolInt(passed), result, id); err != nil {
		return fmt.Errorf("record test result: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
