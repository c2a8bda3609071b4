package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// AddCost appends a row to the cost ledger. The ledger is append-only;
// totals only ever grow.
func (s *Store) AddCost(c *models.AgentCost) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var sessionID, taskID any
	if c.SessionID != "" {
		sessionID = c.SessionID
	}
	if c.TaskID != "" {
		taskID = c.TaskID
	}
	_, err := s.Exec(`
		INSERT INTO agent_costs (id, project_id, session_id, task_id, model,
			input_tokens, output_tokens, cost_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProjectID, sessionID, taskID, c.Model,
		c.InputTokens, c.OutputTokens, c.CostCents, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("add cost: %w", err)
	}
	return nil
}

// TotalCostCents returns a project's accumulated spend in minor units.
func (s *Store) TotalCostCents(projectID string) (int64, error) {
	var total int64
	row := s.QueryRow("SELECT COALESCE(SUM(cost_cents), 0) FROM agent_costs WHERE project_id = ?", projectID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

// ModelCost summarizes spend for one model within a project.
type ModelCost struct {
	Model        string
	Entries      int
	InputTokens  int64
	OutputTokens int64
	CostCents    int64
}

// CostByModel breaks a project's spend down per model, most expensive
// first.
func (s *Store) CostByModel(projectID string) ([]ModelCost, error) {
	rows, err := s.Query(`
		SELECT model, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(cost_cents)
		FROM agent_costs WHERE project_id = ?
		GROUP BY model ORDER BY SUM(cost_cents) DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("cost by model: %w", err)
	}
	defer rows.Close()

	var out []ModelCost
	for rows.Next() {
		var mc ModelCost
		if err := rows.Scan(&mc.Model, &mc.Entries, &mc.InputTokens, &mc.OutputTokens, &mc.CostCents); err != nil {
			return nil, fmt.Errorf("scan model cost: %w", err)
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// SessionCostCents returns the spend recorded against one session.
func (s *Store) SessionCostCents(sessionID string) (int64, error) {
	var total int64
	row := s.QueryRow("SELECT COALESCE(SUM(cost_cents), 0) FROM agent_costs WHERE session_id = ?", sessionID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("session cost: %w", err)
	}
	return total, nil
}
