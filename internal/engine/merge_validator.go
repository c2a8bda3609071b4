package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// MergeStatus is the outcome of validating a batch's merges.
type MergeStatus string

const (
	MergePassed MergeStatus = "passed"
	// MergeSkipped means the batch ran sequentially and merged inline,
	// so no separate validation happened.
	MergeSkipped    MergeStatus = "skipped"
	MergeConflicted MergeStatus = "conflicts"
	MergeTestFailed MergeStatus = "test_failed"
)

// MergeOutcome reports what happened when a batch's worktrees were
// folded back into trunk.
type MergeOutcome struct {
	Status MergeStatus
	// MergeCommits lists the trunk commits created, in merge order.
	MergeCommits []string
	// Conflicts maps epic id to conflicted paths when Status is conflicts.
	Conflicts map[string][]string
	// TestOutput holds the trailing test output when Status is test_failed.
	TestOutput string
}

const testOutputTail = 4000

// validateMerges folds each epic's worktree into trunk one at a time,
// then gates the result on the configured test command. Any conflict or
// test failure rolls trunk back to where it was before the first merge;
// worktrees are only removed after everything passed.
func (rt *Runtime) validateMerges(ctx context.Context, project *models.Project, batchID int, epicIDs []string) (*MergeOutcome, error) {
	sort.Strings(epicIDs)
	outcome := &MergeOutcome{Status: MergePassed}

	rt.emit(ProgressEvent{Type: EventMergeStarted, ProjectID: project.ID, BatchID: batchID})

	for _, epicID := range epicIDs {
		res, err := rt.Worktrees.Merge(ctx, project.ID, epicID)
		if err != nil {
			rt.rollback(ctx, project, batchID, len(outcome.MergeCommits))
			return nil, fmt.Errorf("merge epic %s: %w", epicID, err)
		}
		if len(res.ConflictedFiles) > 0 || res.MergeCommit == "" {
			// Conflict: undo the merges that already landed so trunk
			// stays atomic for the batch.
			rt.rollback(ctx, project, batchID, len(outcome.MergeCommits))
			outcome.Status = MergeConflicted
			outcome.Conflicts = map[string][]string{epicID: res.ConflictedFiles}
			outcome.MergeCommits = nil
			rt.emit(ProgressEvent{
				Type: EventMergeConflict, ProjectID: project.ID, BatchID: batchID,
				Message: fmt.Sprintf("epic %s: %d conflicted files", epicID, len(res.ConflictedFiles)),
			})
			return outcome, nil
		}
		outcome.MergeCommits = append(outcome.MergeCommits, res.MergeCommit)
	}

	if rt.Config.TestCommand != "" {
		out, err := rt.Exec.RunCommandString(ctx, project.WorkingDir, rt.Config.TestTimeout, rt.Config.TestCommand)
		if err != nil {
			rt.rollback(ctx, project, batchID, len(outcome.MergeCommits))
			outcome.Status = MergeTestFailed
			outcome.TestOutput = tail(string(out), testOutputTail)
			outcome.MergeCommits = nil
			rt.emit(ProgressEvent{
				Type: EventTestsFailed, ProjectID: project.ID, BatchID: batchID,
				Message: err.Error(),
			})
			// Worktrees stay on disk so the failure can be inspected.
			return outcome, nil
		}
	}

	for _, epicID := range epicIDs {
		if err := rt.Worktrees.Cleanup(ctx, project.ID, epicID, false); err != nil {
			rt.Logger.Warn("worktree cleanup failed",
				zap.String("epic_id", epicID), zap.Error(err))
		}
	}

	rt.emit(ProgressEvent{
		Type: EventMergeCompleted, ProjectID: project.ID, BatchID: batchID,
		Message: fmt.Sprintf("%d merges validated", len(outcome.MergeCommits)),
	})
	return outcome, nil
}

// rollback discards the last n trunk commits after a failed validation.
func (rt *Runtime) rollback(ctx context.Context, project *models.Project, batchID, n int) {
	if n <= 0 {
		return
	}
	if err := rt.Git.ResetHardBack(ctx, n); err != nil {
		rt.Logger.Error("rollback failed",
			zap.Int("commits", n), zap.Error(err))
		return
	}
	rt.emit(ProgressEvent{
		Type: EventRollback, ProjectID: project.ID, BatchID: batchID,
		Message: fmt.Sprintf("rolled back %d merge commits", n),
	})
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
