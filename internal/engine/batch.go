package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// BatchResult is the outcome of executing one batch.
type BatchResult struct {
	BatchID  int
	Status   models.BatchStatus
	Tasks    []TaskResult
	Merge    *MergeOutcome
	Duration time.Duration
}

// PlanResult is the outcome of one full plan execution.
type PlanResult struct {
	Success          bool
	StoppedEarly     bool
	BatchesCompleted int
	BatchesTotal     int
	TotalCostCents   int64
	TotalDuration    time.Duration
	Batches          []BatchResult
}

// ExecutePlan runs the project's persisted plan batch by batch. The
// execution mode is derived from the plan and persisted before the first
// batch starts. Batches halt the run on task failure, merge conflict, or
// test failure; a stop request lets running tasks finish and cancels
// everything after them.
func (rt *Runtime) ExecutePlan(ctx context.Context, projectID string) (*PlanResult, error) {
	rt.Normalize()

	project, err := rt.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	plan, err := rt.Store.LoadExecutionPlan(projectID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("project %s has no execution plan", projectID)
	}

	mode := models.SelectMode(plan)
	if err := rt.Store.SetExecutionMode(projectID, mode); err != nil {
		return nil, err
	}

	// A fresh run starts with a clean cancellation slate.
	rt.stop.Store(false)
	if err := rt.Store.ClearStop(projectID); err != nil {
		return nil, err
	}
	if err := rt.Store.SetProjectMeta(projectID, models.MetaLastExecutedAt,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}

	tasks, err := rt.Store.ListTasks(projectID)
	if err != nil {
		return nil, err
	}
	taskByID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		taskByID[t.ID] = t
	}
	epicList, err := rt.Store.ListEpics(projectID)
	if err != nil {
		return nil, err
	}
	epics := make(map[string]*models.Epic, len(epicList))
	for _, e := range epicList {
		epics[e.ID] = e
	}

	started := time.Now()
	result := &PlanResult{BatchesTotal: len(plan.Batches)}
	rt.emit(ProgressEvent{
		Type: EventRunStarted, ProjectID: projectID, BatchID: -1,
		Message: fmt.Sprintf("%s mode, %d batches", mode, len(plan.Batches)),
	})
	rt.Logger.Info("executing plan",
		zap.String("project_id", projectID),
		zap.String("mode", string(mode)),
		zap.Int("batches", len(plan.Batches)))

	halted := false
	for _, batch := range plan.Batches {
		if halted || rt.stopRequested(projectID) {
			if !halted {
				result.StoppedEarly = true
				halted = true
			}
			rt.markBatch(projectID, batch.BatchID, models.BatchCancelled)
			result.Batches = append(result.Batches, BatchResult{
				BatchID: batch.BatchID, Status: models.BatchCancelled,
			})
			continue
		}

		br := rt.executeBatch(ctx, project, plan, batch, taskByID, epics, mode)
		result.Batches = append(result.Batches, br)
		for _, tr := range br.Tasks {
			result.TotalCostCents += tr.CostCents
		}
		switch br.Status {
		case models.BatchCompleted:
			result.BatchesCompleted++
		case models.BatchCancelled:
			result.StoppedEarly = true
			halted = true
		default:
			halted = true
		}
	}

	result.TotalDuration = time.Since(started)
	result.Success = result.BatchesCompleted == result.BatchesTotal && !result.StoppedEarly
	rt.emit(ProgressEvent{
		Type: EventRunCompleted, ProjectID: projectID, BatchID: -1,
		Message: fmt.Sprintf("%d/%d batches completed", result.BatchesCompleted, result.BatchesTotal),
	})
	return result, nil
}

// executeBatch runs one batch's tasks and folds their worktrees back.
// Parallel batches go through full merge validation; sequential batches
// merge inline and skip it.
func (rt *Runtime) executeBatch(ctx context.Context, project *models.Project, plan *models.ExecutionPlan, batch models.Batch, taskByID map[string]*models.Task, epics map[string]*models.Epic, mode models.ExecutionMode) BatchResult {
	started := time.Now()
	br := BatchResult{BatchID: batch.BatchID}

	var pending []*models.Task
	for _, id := range batch.TaskIDs {
		t, ok := taskByID[id]
		if !ok {
			rt.Logger.Warn("plan references unknown task",
				zap.Int("batch_id", batch.BatchID), zap.String("task_id", id))
			continue
		}
		if !t.Done {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		rt.markBatch(project.ID, batch.BatchID, models.BatchCompleted)
		br.Status = models.BatchCompleted
		br.Duration = time.Since(started)
		return br
	}

	rt.markBatch(project.ID, batch.BatchID, models.BatchRunning)
	rt.emit(ProgressEvent{
		Type: EventBatchStarted, ProjectID: project.ID, BatchID: batch.BatchID,
		Message: fmt.Sprintf("%d tasks", len(pending)),
	})

	parallel := mode == models.ModeParallel && batch.CanParallel && len(pending) >= 2
	if parallel {
		br.Tasks = rt.runTasksParallel(ctx, project, batch.BatchID, pending, epics)
	} else {
		br.Tasks = rt.runTasksSequential(ctx, project, batch.BatchID, pending, epics)
	}

	interrupted, failed := false, false
	for _, tr := range br.Tasks {
		if tr.Interrupted {
			interrupted = true
		} else if !tr.Success {
			failed = true
		}
	}
	if interrupted {
		rt.markBatch(project.ID, batch.BatchID, models.BatchCancelled)
		br.Status = models.BatchCancelled
		br.Duration = time.Since(started)
		return br
	}
	if failed {
		rt.markBatch(project.ID, batch.BatchID, models.BatchFailed)
		br.Status = models.BatchFailed
		br.Duration = time.Since(started)
		return br
	}

	epicIDs := batchEpicIDs(pending)
	if len(epicIDs) > 0 {
		var outcome *MergeOutcome
		var err error
		if parallel {
			outcome, err = rt.validateMerges(ctx, project, batch.BatchID, epicIDs)
		} else {
			outcome, err = rt.mergeInline(ctx, project, batch.BatchID, epicIDs)
		}
		if err != nil {
			rt.Logger.Error("merge failed",
				zap.Int("batch_id", batch.BatchID), zap.Error(err))
			rt.markBatch(project.ID, batch.BatchID, models.BatchFailed)
			br.Status = models.BatchFailed
			br.Duration = time.Since(started)
			return br
		}
		br.Merge = outcome
		if outcome.Status == MergeConflicted || outcome.Status == MergeTestFailed {
			rt.markBatch(project.ID, batch.BatchID, models.BatchFailed)
			br.Status = models.BatchFailed
			br.Duration = time.Since(started)
			return br
		}
	}

	rt.markBatch(project.ID, batch.BatchID, models.BatchCompleted)
	br.Status = models.BatchCompleted
	br.Duration = time.Since(started)
	rt.emit(ProgressEvent{
		Type: EventBatchCompleted, ProjectID: project.ID, BatchID: batch.BatchID,
	})
	return br
}

// mergeInline folds each epic's worktree into trunk right after a
// sequential batch, without the test gate. Conflicts still fail the
// batch.
func (rt *Runtime) mergeInline(ctx context.Context, project *models.Project, batchID int, epicIDs []string) (*MergeOutcome, error) {
	outcome := &MergeOutcome{Status: MergeSkipped}
	for _, epicID := range epicIDs {
		res, err := rt.Worktrees.Merge(ctx, project.ID, epicID)
		if err != nil {
			return nil, fmt.Errorf("merge epic %s: %w", epicID, err)
		}
		if len(res.ConflictedFiles) > 0 || res.MergeCommit == "" {
			outcome.Status = MergeConflicted
			outcome.Conflicts = map[string][]string{epicID: res.ConflictedFiles}
			rt.emit(ProgressEvent{
				Type: EventMergeConflict, ProjectID: project.ID, BatchID: batchID,
				Message: fmt.Sprintf("epic %s: %d conflicted files", epicID, len(res.ConflictedFiles)),
			})
			return outcome, nil
		}
		outcome.MergeCommits = append(outcome.MergeCommits, res.MergeCommit)
		if err := rt.Worktrees.Cleanup(ctx, project.ID, epicID, false); err != nil {
			rt.Logger.Warn("worktree cleanup failed",
				zap.String("epic_id", epicID), zap.Error(err))
		}
	}
	return outcome, nil
}

func (rt *Runtime) markBatch(projectID string, batchID int, status models.BatchStatus) {
	if err := rt.Store.UpdateBatchStatus(projectID, batchID, status, time.Now()); err != nil {
		rt.Logger.Error("failed to update batch status",
			zap.Int("batch_id", batchID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// batchEpicIDs returns the distinct epic ids represented in a batch, in
// first-seen order. Tasks without an epic run in the project root and
// have nothing to merge.
func batchEpicIDs(tasks []*models.Task) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tasks {
		if t.EpicID == "" || seen[t.EpicID] {
			continue
		}
		seen[t.EpicID] = true
		out = append(out, t.EpicID)
	}
	return out
}
