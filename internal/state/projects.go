package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// CreateProject inserts a new project row.
func (s *Store) CreateProject(p *models.Project) error {
	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal project metadata: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO projects (id, name, working_dir, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.WorkingDir, string(blob), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	var p models.Project
	var meta, createdAt string
	if err := row.Scan(&p.ID, &p.Name, &p.WorkingDir, &meta, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal project metadata: %w", err)
	}
	p.CreatedAt, _ = parseTime(createdAt)
	return &p, nil
}

// GetProject retrieves a project by id. Returns nil when not found.
func (s *Store) GetProject(id string) (*models.Project, error) {
	row := s.QueryRow(`
		SELECT id, name, working_dir, metadata, created_at FROM projects WHERE id = ?
	`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetProjectByName retrieves a project by its unique name.
func (s *Store) GetProjectByName(name string) (*models.Project, error) {
	row := s.QueryRow(`
		SELECT id, name, working_dir, metadata, created_at FROM projects WHERE name = ?
	`, name)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by name: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project; ownership cascades to everything else.
func (s *Store) DeleteProject(id string) error {
	if _, err := s.Exec("DELETE FROM projects WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// SetProjectMeta merges a single key into the project metadata mapping.
func (s *Store) SetProjectMeta(projectID, key string, value any) error {
	return s.Transaction(func(tx *sql.Tx) error {
		var blob string
		if err := tx.QueryRow("SELECT metadata FROM projects WHERE id = ?", projectID).Scan(&blob); err != nil {
			return fmt.Errorf("load project metadata: %w", err)
		}
		meta := map[string]any{}
		if err := json.Unmarshal([]byte(blob), &meta); err != nil {
			return fmt.Errorf("unmarshal project metadata: %w", err)
		}
		meta[key] = value
		out, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal project metadata: %w", err)
		}
		if _, err := tx.Exec("UPDATE projects SET metadata = ? WHERE id = ?", string(out), projectID); err != nil {
			return fmt.Errorf("update project metadata: %w", err)
		}
		return nil
	})
}

// GetProjectMeta reads a single metadata key; ok=false when absent.
func (s *Store) GetProjectMeta(projectID, key string) (any, bool, error) {
	p, err := s.GetProject(projectID)
	if err != nil {
		return nil, false, err
	}
	if p == nil || p.Metadata == nil {
		return nil, false, nil
	}
	v, ok := p.Metadata[key]
	return v, ok, nil
}

// SaveExecutionPlan persists the plan as JSON inside project metadata and
// seeds the parallel_batches rows for live status tracking.
func (s *Store) SaveExecutionPlan(projectID string, plan *models.ExecutionPlan) error {
	blob, err := models.MarshalPlan(plan)
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		return fmt.Errorf("reparse execution plan: %w", err)
	}
	if err := s.SetProjectMeta(projectID, models.MetaExecutionPlan, raw); err != nil {
		return err
	}
	if err := s.SetProjectMeta(projectID, models.MetaLastPlannedAt, formatTime(time.Now())); err != nil {
		return err
	}
	for _, b := range plan.Batches {
		if err := s.UpsertBatch(projectID, b); err != nil {
			return err
		}
	}
	return nil
}

// LoadExecutionPlan reads the persisted plan; nil when no plan is stored.
func (s *Store) LoadExecutionPlan(projectID string) (*models.ExecutionPlan, error) {
	v, ok, err := s.GetProjectMeta(projectID, models.MetaExecutionPlan)
	if err != nil || !ok {
		return nil, err
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("remarshal execution plan: %w", err)
	}
	return models.UnmarshalPlan(blob)
}

// SetExecutionMode persists the mode derived from the plan.
func (s *Store) SetExecutionMode(projectID string, mode models.ExecutionMode) error {
	return s.SetProjectMeta(projectID, models.MetaExecutionMode, string(mode))
}

// ExecutionMode reads the persisted mode, defaulting to sequential.
func (s *Store) ExecutionMode(projectID string) (models.ExecutionMode, error) {
	v, ok, err := s.GetProjectMeta(projectID, models.MetaExecutionMode)
	if err != nil || !ok {
		return models.ModeSequential, err
	}
	if str, ok := v.(string); ok && str == string(models.ModeParallel) {
		return models.ModeParallel, nil
	}
	return models.ModeSequential, nil
}

// RequestStop persists the stop hint so a replacement process after a
// crash sees the same intent.
func (s *Store) RequestStop(projectID string) error {
	return s.SetProjectMeta(projectID, models.MetaStopRequested, true)
}

// ClearStop removes the persisted stop hint.
func (s *Store) ClearStop(projectID string) error {
	return s.SetProjectMeta(projectID, models.MetaStopRequested, false)
}

// StopRequested reads the persisted stop hint.
func (s *Store) StopRequested(projectID string) (bool, error) {
	v, ok, err := s.GetProjectMeta(projectID, models.MetaStopRequested)
	if err != nil || !ok {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}
