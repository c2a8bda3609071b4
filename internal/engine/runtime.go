// Package engine executes persisted plans: batches of tasks dispatched
// to agents under a concurrency bound, merged back through validation,
// with sessions, costs, and outcomes recorded along the way.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/agent"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/config"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/exec"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/expertise"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/git"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/selector"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/state"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/worktree"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// WorktreeManager is the worktree surface the engine drives.
type WorktreeManager interface {
	Create(ctx context.Context, projectID string, epic *models.Epic) (*models.Worktree, error)
	Merge(ctx context.Context, projectID, epicID string) (*worktree.MergeResult, error)
	Cleanup(ctx context.Context, projectID, epicID string, force bool) error
}

var _ WorktreeManager = (*worktree.Manager)(nil)

// Runtime bundles everything plan execution needs. It is assembled once
// per run; nothing inside the engine reaches for ambient state.
type Runtime struct {
	Store     *state.Store
	Git       git.Runner
	Exec      exec.CommandRunner
	Agent     agent.Runner
	Worktrees WorktreeManager
	Selector  *selector.Selector
	Expertise *expertise.Store
	Config    *config.Config
	Logger    *zap.Logger
	Sink      EventSink

	stop atomic.Bool
}

// Normalize fills optional fields with safe defaults.
func (rt *Runtime) Normalize() {
	if rt.Logger == nil {
		rt.Logger = zap.NewNop()
	}
	if rt.Sink == nil {
		rt.Sink = NopSink{}
	}
}

// RequestStop flags the run for graceful cancellation and persists the
// hint so a replacement process sees the same intent. Running tasks
// finish; no new batch starts.
func (rt *Runtime) RequestStop(projectID string) error {
	rt.stop.Store(true)
	rt.emit(ProgressEvent{Type: EventStopRequested, ProjectID: projectID, BatchID: -1})
	return rt.Store.RequestStop(projectID)
}

// stopRequested checks the in-memory flag first, then the persisted hint.
func (rt *Runtime) stopRequested(projectID string) bool {
	if rt.stop.Load() {
		return true
	}
	hinted, err := rt.Store.StopRequested(projectID)
	if err != nil {
		rt.Logger.Warn("failed to read stop hint", zap.Error(err))
		return false
	}
	if hinted {
		rt.stop.Store(true)
	}
	return hinted
}

func (rt *Runtime) emit(e ProgressEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	rt.Sink.Publish(e)
}
