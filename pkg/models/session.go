package models

import "time"

// SessionType identifies what kind of agent invocation a session records.
type SessionType string

const (
	SessionInitializer SessionType = "initializer"
	SessionCoding      SessionType = "coding"
	SessionReview      SessionType = "review"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionPending     SessionStatus = "pending"
	SessionRunning     SessionStatus = "running"
	SessionCompleted   SessionStatus = "completed"
	SessionError       SessionStatus = "error"
	SessionInterrupted SessionStatus = "interrupted"
)

// Session records one invocation of an agent against a project.
// Initializer and review sessions run exclusively; coding sessions may
// run concurrently, one per worktree. LastHeartbeat advances
// monotonically while a session is running.
type Session struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	// Seq is a monotonically increasing per-project sequence number.
	Seq           int            `json:"seq"`
	TaskID        string         `json:"task_id,omitempty"`
	Type          SessionType    `json:"type"`
	Model         string         `json:"model"`
	Status        SessionStatus  `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	Metrics       SessionMetrics `json:"metrics"`
	// InterruptionReason is set when the session ends interrupted,
	// either by cancellation or by the stale-session reaper.
	InterruptionReason string `json:"interruption_reason,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

// SessionMetrics aggregates per-session agent usage.
type SessionMetrics struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CostCents    int64 `json:"cost_cents"`
	ToolCalls    int   `json:"tool_calls"`
}

// StaleThreshold returns how long a running session of this type may go
// without a heartbeat before the reaper marks it interrupted.
func (t SessionType) StaleThreshold() time.Duration {
	switch t {
	case SessionInitializer:
		return 35 * time.Minute
	case SessionReview:
		return 10 * time.Minute
	default:
		return 15 * time.Minute
	}
}
