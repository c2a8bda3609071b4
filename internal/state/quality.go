package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QualityCheck records the outcome of one agent invocation for a
// (task type, model) pair. The selector aggregates these rows to decide
// tier upgrades and downgrades.
type QualityCheck struct {
	ID         string
	SessionID  string
	ProjectID  string
	TaskID     string
	TaskType   string
	Model      string
	Success    bool
	DurationMS int64
	Tokens     int64
	Notes      string
	CreatedAt  time.Time
}

// AddQualityCheck appends an outcome row.
func (s *Store) AddQualityCheck(q *QualityCheck) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.TaskType == "" {
		q.TaskType = "general"
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	var taskID any
	if q.TaskID != "" {
		taskID = q.TaskID
	}
	_, err := s.Exec(`
		INSERT INTO session_quality_checks (id, session_id, project_id, task_id,
			task_type, model, success, duration_ms, tokens, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.SessionID, q.ProjectID, taskID, q.TaskType, q.Model,
		boolInt(q.Success), q.DurationMS, q.Tokens, q.Notes, formatTime(q.CreatedAt))
	if err != nil {
		return fmt.Errorf("add quality check: %w", err)
	}
	return nil
}

// OutcomeStats aggregates recorded outcomes for a (task type, model)
// pair across all projects in this database.
type OutcomeStats struct {
	Samples     int
	Successes   int
	SuccessRate float64
}

// OutcomesFor returns the aggregate outcome stats for a task type and
// model. Zero samples means no history exists.
func (s *Store) OutcomesFor(taskType, model string) (OutcomeStats, error) {
	var stats OutcomeStats
	row := s.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(success), 0)
		FROM session_quality_checks WHERE task_type = ? AND model = ?
	`, taskType, model)
	if err := row.Scan(&stats.Samples, &stats.Successes); err != nil {
		return stats, fmt.Errorf("outcomes for %s/%s: %w", taskType, model, err)
	}
	if stats.Samples > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Samples)
	}
	return stats, nil
}

// DeepReview is a post-session review verdict with structured findings.
type DeepReview struct {
	ID        string
	SessionID string
	Verdict   string
	Findings  []string
	CreatedAt time.Time
}

// AddDeepReview records a review verdict against a session.
func (s *Store) AddDeepReview(r *DeepReview) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	findings, err := json.Marshal(orEmpty(r.Findings))
	if err != nil {
		return fmt.Errorf("marshal review findings: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO session_deep_reviews (id, session_id, verdict, findings, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.SessionID, r.Verdict, string(findings), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("add deep review: %w", err)
	}
	return nil
}

// AddPromptAnalysis records a prompt-improvement analysis and returns its id.
func (s *Store) AddPromptAnalysis(projectID, scope, analysis string) (string, error) {
	id := uuid.NewString()
	_, err := s.Exec(`
		INSERT INTO prompt_improvement_analyses (id, project_id, scope, analysis, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, projectID, scope, analysis, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("add prompt analysis: %w", err)
	}
	return id, nil
}

// AddPromptProposal attaches a proposal to an analysis and returns its id.
func (s *Store) AddPromptProposal(analysisID, proposal string) (string, error) {
	id := uuid.NewString()
	_, err := s.Exec(`
		INSERT INTO prompt_proposals (id, analysis_id, proposal, created_at)
		VALUES (?, ?, ?, ?)
	`, id, analysisID, proposal, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("add prompt proposal: %w", err)
	}
	return id, nil
}

// AcceptPromptProposal flags a proposal accepted.
func (s *Store) AcceptPromptProposal(id string) error {
	if _, err := s.Exec("UPDATE prompt_proposals SET accepted = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("accept prompt proposal: %w", err)
	}
	return nil
}
