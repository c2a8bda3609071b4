// Package agent dispatches task work to a model-backed agent. The engine
// only sees the Runner interface; the Anthropic adapter is one
// implementation, fakes in tests are another.
package agent

import "context"

// Request is one unit of agent work, executed inside a working directory.
type Request struct {
	// WorkingDir is the directory the agent operates in, usually a
	// worktree. Tool access is confined to it.
	WorkingDir string
	// TaskText is the task description and action handed to the agent.
	TaskText string
	// PromptContext is extra system-prompt material: domain expertise,
	// project conventions.
	PromptContext string
	// Model is the concrete model identifier chosen by the selector.
	Model string
	// InputCentsPerMTok / OutputCentsPerMTok price the run.
	InputCentsPerMTok  int64
	OutputCentsPerMTok int64
}

// Result reports what one agent run did and cost.
type Result struct {
	// OK is true when the agent finished its turn normally.
	OK bool
	// Logs is the agent's final textual output.
	Logs string
	// ModifiedFiles lists paths the agent wrote or edited, relative to
	// the working directory.
	ModifiedFiles []string
	InputTokens   int64
	OutputTokens  int64
	CostCents     int64
}

// Runner executes agent requests. Run blocks until the agent finishes,
// fails, or ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}
