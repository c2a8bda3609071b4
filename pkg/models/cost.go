package models

import "time"

// AgentCost is one append-only ledger row tying a project (and optionally
// a session and task) to model usage. Cost is stored in minor currency
// units so aggregation stays exact.
type AgentCost struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	SessionID    string    `json:"session_id,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostCents    int64     `json:"cost_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExpertiseRecord is a per-(project, domain) knowledge blob. Version
// increments monotonically on every write.
type ExpertiseRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Domain    string    `json:"domain"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
