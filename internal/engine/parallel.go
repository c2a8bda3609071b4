package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/agent"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/expertise"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/state"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// TaskResult is the outcome of executing one task.
type TaskResult struct {
	TaskID      string
	SessionID   string
	Success     bool
	Interrupted bool
	CostCents   int64
	Err         error
}

// runTasksParallel executes a batch's tasks concurrently, bounded by the
// configured MaxConcurrency. Results come back in completion order.
func (rt *Runtime) runTasksParallel(ctx context.Context, project *models.Project, batchID int, tasks []*models.Task, epics map[string]*models.Epic) []TaskResult {
	sem := semaphore.NewWeighted(int64(rt.Config.MaxConcurrency))

	var mu sync.Mutex
	var results []TaskResult
	var wg sync.WaitGroup

	for _, task := range tasks {
		if rt.stop.Load() || ctx.Err() != nil {
			// A stop landed mid-batch; nothing further is dispatched.
			mu.Lock()
			results = append(results, TaskResult{TaskID: task.ID, Interrupted: true, Err: context.Canceled})
			mu.Unlock()
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled while waiting for a slot; the task never started.
			mu.Lock()
			results = append(results, TaskResult{TaskID: task.ID, Interrupted: true, Err: err})
			mu.Unlock()
			continue
		}
		if rt.stop.Load() {
			// The stop landed while this task waited for its permit.
			sem.Release(1)
			mu.Lock()
			results = append(results, TaskResult{TaskID: task.ID, Interrupted: true, Err: context.Canceled})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(task *models.Task) {
			defer wg.Done()
			defer sem.Release(1)
			res := rt.runTask(ctx, project, batchID, task, epics[task.EpicID])
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(task)
	}
	wg.Wait()
	return results
}

// runTasksSequential executes a batch's tasks one after another, halting
// at the first failure or interruption.
func (rt *Runtime) runTasksSequential(ctx context.Context, project *models.Project, batchID int, tasks []*models.Task, epics map[string]*models.Epic) []TaskResult {
	var results []TaskResult
	for _, task := range tasks {
		if rt.stop.Load() || ctx.Err() != nil {
			results = append(results, TaskResult{TaskID: task.ID, Interrupted: true, Err: context.Canceled})
			break
		}
		res := rt.runTask(ctx, project, batchID, task, epics[task.EpicID])
		results = append(results, res)
		if !res.Success {
			break
		}
	}
	return results
}

// runTask drives one task end to end: model selection, session
// lifecycle with heartbeats, agent dispatch inside the epic's worktree,
// cost and outcome recording. Cancellation ends the session interrupted,
// never as an error.
func (rt *Runtime) runTask(ctx context.Context, project *models.Project, batchID int, task *models.Task, epic *models.Epic) TaskResult {
	result := TaskResult{TaskID: task.ID}

	workDir := project.WorkingDir
	if epic != nil {
		w, err := rt.Worktrees.Create(ctx, project.ID, epic)
		if err != nil {
			result.Err = fmt.Errorf("prepare worktree: %w", err)
			return result
		}
		workDir = w.Path
	}

	taskType := expertise.Classify(task)
	spent, err := rt.Store.TotalCostCents(project.ID)
	if err != nil {
		result.Err = err
		return result
	}
	rec, err := rt.Selector.Recommend(task, taskType, spent)
	if err != nil {
		result.Err = err
		return result
	}

	sess := &models.Session{
		ProjectID: project.ID,
		TaskID:    task.ID,
		Type:      models.SessionCoding,
		Model:     rec.Model,
	}
	if err := rt.Store.CreateSession(sess); err != nil {
		result.Err = err
		return result
	}
	result.SessionID = sess.ID
	started := time.Now()
	if err := rt.Store.StartSession(sess.ID, started); err != nil {
		result.Err = err
		return result
	}
	stopHeartbeat := rt.heartbeatLoop(sess.ID)
	defer stopHeartbeat()

	rt.emit(ProgressEvent{
		Type: EventTaskStarted, ProjectID: project.ID, BatchID: batchID,
		TaskID: task.ID, SessionID: sess.ID,
		Message: fmt.Sprintf("model %s (%s)", rec.Model, rec.Tier),
	})

	promptContext, err := rt.Expertise.Get(taskType)
	if err != nil {
		rt.Logger.Warn("failed to load expertise", zap.String("domain", taskType), zap.Error(err))
	}

	pricing := rt.Config.PricingForTier(rec.Tier)
	agentRes, agentErr := rt.Agent.Run(ctx, agent.Request{
		WorkingDir:         workDir,
		TaskText:           task.Text(),
		PromptContext:      promptContext,
		Model:              rec.Model,
		InputCentsPerMTok:  pricing.InputCentsPerMTok,
		OutputCentsPerMTok: pricing.OutputCentsPerMTok,
	})
	stopHeartbeat()
	ended := time.Now()

	var metrics models.SessionMetrics
	if agentRes != nil {
		metrics = models.SessionMetrics{
			InputTokens:  agentRes.InputTokens,
			OutputTokens: agentRes.OutputTokens,
			CostCents:    agentRes.CostCents,
		}
		result.CostCents = agentRes.CostCents
		if err := rt.Store.AddCost(&models.AgentCost{
			ProjectID:    project.ID,
			SessionID:    sess.ID,
			TaskID:       task.ID,
			Model:        rec.Model,
			InputTokens:  agentRes.InputTokens,
			OutputTokens: agentRes.OutputTokens,
			CostCents:    agentRes.CostCents,
		}); err != nil {
			rt.Logger.Error("failed to record cost", zap.String("task_id", task.ID), zap.Error(err))
		}
	}

	success := agentErr == nil && agentRes != nil && agentRes.OK
	rt.recordOutcome(project.ID, sess.ID, task, taskType, rec.Model, success, ended.Sub(started), agentRes)

	switch {
	case ctx.Err() != nil:
		result.Interrupted = true
		result.Err = ctx.Err()
		if err := rt.Store.InterruptSession(sess.ID, ended, "stop requested"); err != nil {
			rt.Logger.Error("failed to interrupt session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		rt.emit(ProgressEvent{
			Type: EventTaskFailed, ProjectID: project.ID, BatchID: batchID,
			TaskID: task.ID, SessionID: sess.ID, Message: "interrupted",
		})

	case !success:
		result.Err = agentErr
		msg := "agent reported failure"
		if agentErr != nil {
			msg = agentErr.Error()
		}
		if err := rt.Store.FailSession(sess.ID, ended, metrics, msg); err != nil {
			rt.Logger.Error("failed to close session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		rt.emit(ProgressEvent{
			Type: EventTaskFailed, ProjectID: project.ID, BatchID: batchID,
			TaskID: task.ID, SessionID: sess.ID, Message: msg,
		})

	default:
		result.Success = true
		if err := rt.Store.MarkTaskDone(task.ID, ended); err != nil {
			rt.Logger.Error("failed to mark task done", zap.String("task_id", task.ID), zap.Error(err))
		}
		if err := rt.Store.CompleteSession(sess.ID, ended, metrics); err != nil {
			rt.Logger.Error("failed to close session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		rt.emit(ProgressEvent{
			Type: EventTaskCompleted, ProjectID: project.ID, BatchID: batchID,
			TaskID: task.ID, SessionID: sess.ID,
		})
	}
	return result
}

// heartbeatLoop refreshes the session heartbeat until the returned stop
// function is called. Safe to call the stop function more than once.
func (rt *Runtime) heartbeatLoop(sessionID string) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(rt.Config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				if err := rt.Store.Heartbeat(sessionID, t); err != nil {
					rt.Logger.Warn("heartbeat failed",
						zap.String("session_id", sessionID), zap.Error(err))
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (rt *Runtime) recordOutcome(projectID, sessionID string, task *models.Task, taskType, model string, success bool, dur time.Duration, res *agent.Result) {
	var tokens int64
	var notes string
	if res != nil {
		tokens = res.InputTokens + res.OutputTokens
		notes = firstLine(res.Logs)
	}
	if err := rt.Selector.RecordOutcome(&state.QualityCheck{
		SessionID:  sessionID,
		ProjectID:  projectID,
		TaskID:     task.ID,
		TaskType:   taskType,
		Model:      model,
		Success:    success,
		DurationMS: dur.Milliseconds(),
		Tokens:     tokens,
		Notes:      notes,
	}); err != nil {
		rt.Logger.Error("failed to record outcome", zap.String("task_id", task.ID), zap.Error(err))
	}

	if notes != "" {
		if err := rt.Expertise.Observe(sessionID, task, expertise.Observation{
			Success: success,
			Summary: notes,
		}); err != nil {
			rt.Logger.Warn("failed to record expertise", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
