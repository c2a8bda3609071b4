package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/agent"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/config"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/expertise"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/git"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/selector"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/state"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/worktree"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// fakeAgent succeeds by default, tracks peak concurrency, and fails any
// task whose text contains "FAIL". If block is set it waits for context
// cancellation instead of returning.
type fakeAgent struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int
	delay       time.Duration
	block       bool
	started     chan string
	onRun       func()
}

var _ agent.Runner = (*fakeAgent)(nil)

func (f *fakeAgent) Run(ctx context.Context, req agent.Request) (*agent.Result, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	onRun := f.onRun
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.started <- req.TaskText
	}
	if onRun != nil {
		onRun()
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.Contains(req.TaskText, "FAIL") {
		return &agent.Result{OK: false, Logs: "task failed"}, nil
	}
	return &agent.Result{
		OK: true, Logs: "done",
		InputTokens: 1000, OutputTokens: 200, CostCents: 3,
	}, nil
}

// fakeWorktrees tracks lifecycle calls; epics listed in conflicts merge
// with conflicted files instead of a commit.
type fakeWorktrees struct {
	mu        sync.Mutex
	base      string
	created   []string
	merged    []string
	cleaned   []string
	conflicts map[string][]string
}

var _ WorktreeManager = (*fakeWorktrees)(nil)

func (f *fakeWorktrees) Create(ctx context.Context, projectID string, epic *models.Epic) (*models.Worktree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, epic.ID)
	return &models.Worktree{
		ProjectID: projectID, EpicID: epic.ID,
		Path:   filepath.Join(f.base, "epic-"+epic.ID),
		Branch: "epic-" + epic.ID, Status: models.WorktreeActive,
	}, nil
}

func (f *fakeWorktrees) Merge(ctx context.Context, projectID, epicID string) (*worktree.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if files, ok := f.conflicts[epicID]; ok {
		return &worktree.MergeResult{ConflictedFiles: files}, nil
	}
	f.merged = append(f.merged, epicID)
	return &worktree.MergeResult{MergeCommit: "commit-" + epicID}, nil
}

func (f *fakeWorktrees) Cleanup(ctx context.Context, projectID, epicID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, epicID)
	return nil
}

// fakeExec records test-command invocations and returns canned output.
type fakeExec struct {
	mu    sync.Mutex
	out   string
	err   error
	calls []string
}

func (f *fakeExec) Run(ctx context.Context, workDir string, timeout time.Duration, name string, args ...string) ([]byte, error) {
	return []byte(f.out), f.err
}

func (f *fakeExec) RunCommandString(ctx context.Context, workDir string, timeout time.Duration, command string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()
	return []byte(f.out), f.err
}

// fakeGit records rollbacks; everything else is unused by the engine.
type fakeGit struct {
	git.Runner
	mu     sync.Mutex
	resets []int
}

func (g *fakeGit) ResetHardBack(ctx context.Context, n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets = append(g.resets, n)
	return nil
}

type harness struct {
	store   *state.Store
	cfg     *config.Config
	agent   *fakeAgent
	wt      *fakeWorktrees
	exec    *fakeExec
	git     *fakeGit
	rt      *Runtime
	project *models.Project
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	project := &models.Project{
		ID: "p1", Name: "proj", WorkingDir: t.TempDir(), CreatedAt: time.Now(),
	}
	if err := store.CreateProject(project); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	h := &harness{
		store:   store,
		cfg:     cfg,
		agent:   &fakeAgent{},
		wt:      &fakeWorktrees{base: t.TempDir()},
		exec:    &fakeExec{},
		git:     &fakeGit{},
		project: project,
	}
	h.rt = &Runtime{
		Store:     store,
		Git:       h.git,
		Exec:      h.exec,
		Agent:     h.agent,
		Worktrees: h.wt,
		Selector:  selector.New(cfg, store, store, nil),
		Expertise: expertise.NewStore(project.ID, store, nil),
		Config:    cfg,
	}
	return h
}

func (h *harness) seedEpic(t *testing.T, id, name string) {
	t.Helper()
	if err := h.store.CreateEpic(&models.Epic{ID: id, ProjectID: h.project.ID, Name: name}); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) seedTask(t *testing.T, id, epicID, description string) {
	t.Helper()
	if err := h.store.CreateTask(&models.Task{
		ID: id, ProjectID: h.project.ID, EpicID: epicID,
		Description: description, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) seedPlan(t *testing.T, batches ...models.Batch) {
	t.Helper()
	plan := &models.ExecutionPlan{
		ProjectID: h.project.ID,
		CreatedAt: time.Now(),
		Batches:   batches,
	}
	if err := h.store.SaveExecutionPlan(h.project.ID, plan); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) sessionStatuses(t *testing.T, status models.SessionStatus) []*models.Session {
	t.Helper()
	out, err := h.store.ListSessions(h.project.ID, &status)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestExecutePlanNoPlan(t *testing.T) {
	h := newHarness(t)
	if _, err := h.rt.ExecutePlan(context.Background(), h.project.ID); err == nil {
		t.Fatal("expected error for missing plan")
	}
}

func TestExecutePlanSequential(t *testing.T) {
	h := newHarness(t)
	h.seedEpic(t, "e1", "Auth")
	h.seedTask(t, "t1", "e1", "build login")
	h.seedTask(t, "t2", "e1", "build logout")
	h.seedPlan(t,
		models.Batch{BatchID: 0, TaskIDs: []string{"t1"}},
		models.Batch{BatchID: 1, TaskIDs: []string{"t2"}, DependsOn: []int{0}},
	)

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.BatchesCompleted != 2 {
		t.Fatalf("result = %+v", res)
	}

	mode, err := h.store.ExecutionMode(h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if mode != models.ModeSequential {
		t.Errorf("mode = %s", mode)
	}

	for _, id := range []string{"t1", "t2"} {
		task, err := h.store.GetTask(id)
		if err != nil {
			t.Fatal(err)
		}
		if !task.Done {
			t.Errorf("task %s not done", id)
		}
	}
	if n := len(h.sessionStatuses(t, models.SessionCompleted)); n != 2 {
		t.Errorf("completed sessions = %d, want 2", n)
	}

	// Sequential batches merge inline without the test gate.
	for _, br := range res.Batches {
		if br.Merge == nil || br.Merge.Status != MergeSkipped {
			t.Errorf("batch %d merge = %+v", br.BatchID, br.Merge)
		}
	}
	if len(h.wt.merged) != 2 || len(h.wt.cleaned) != 2 {
		t.Errorf("merged = %v, cleaned = %v", h.wt.merged, h.wt.cleaned)
	}

	total, err := h.store.TotalCostCents(h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != res.TotalCostCents || total != 6 {
		t.Errorf("ledger = %d, result = %d", total, res.TotalCostCents)
	}
}

func TestExecutePlanEpiclessTaskRunsInProjectRoot(t *testing.T) {
	h := newHarness(t)
	h.seedTask(t, "t1", "", "tidy the readme")
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: []string{"t1"}})

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(h.wt.created) != 0 || len(h.wt.merged) != 0 {
		t.Errorf("epicless task touched worktrees: created=%v merged=%v", h.wt.created, h.wt.merged)
	}
}

func TestExecutePlanParallelBoundsConcurrency(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxConcurrency = 2
	h.agent.delay = 30 * time.Millisecond

	ids := []string{"t1", "t2", "t3", "t4"}
	for i, id := range ids {
		epic := "e" + string(rune('1'+i))
		h.seedEpic(t, epic, "Epic "+epic)
		h.seedTask(t, id, epic, "work on "+id)
	}
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: ids, CanParallel: true})

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if h.agent.maxInFlight > 2 {
		t.Errorf("max in-flight agents = %d, bound is 2", h.agent.maxInFlight)
	}
	if h.agent.calls != 4 {
		t.Errorf("agent calls = %d", h.agent.calls)
	}

	mode, _ := h.store.ExecutionMode(h.project.ID)
	if mode != models.ModeParallel {
		t.Errorf("mode = %s", mode)
	}

	// All four worktrees merged through validation and were cleaned up.
	br := res.Batches[0]
	if br.Merge == nil || br.Merge.Status != MergePassed {
		t.Fatalf("merge = %+v", br.Merge)
	}
	if len(br.Merge.MergeCommits) != 4 {
		t.Errorf("merge commits = %v", br.Merge.MergeCommits)
	}
	if len(h.wt.cleaned) != 4 {
		t.Errorf("cleaned = %v", h.wt.cleaned)
	}
}

func TestExecutePlanHaltsOnTaskFailure(t *testing.T) {
	h := newHarness(t)
	h.seedEpic(t, "e1", "Auth")
	h.seedTask(t, "t1", "e1", "this will FAIL")
	h.seedTask(t, "t2", "e1", "never reached")
	h.seedPlan(t,
		models.Batch{BatchID: 0, TaskIDs: []string{"t1"}},
		models.Batch{BatchID: 1, TaskIDs: []string{"t2"}, DependsOn: []int{0}},
	)

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.BatchesCompleted != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Batches[0].Status != models.BatchFailed {
		t.Errorf("batch 0 = %s", res.Batches[0].Status)
	}
	if res.Batches[1].Status != models.BatchCancelled {
		t.Errorf("batch 1 = %s", res.Batches[1].Status)
	}
	if h.agent.calls != 1 {
		t.Errorf("agent calls = %d; the failed batch must halt the run", h.agent.calls)
	}
	if n := len(h.sessionStatuses(t, models.SessionError)); n != 1 {
		t.Errorf("error sessions = %d", n)
	}
	if len(h.wt.merged) != 0 {
		t.Errorf("failed batch must not merge, merged = %v", h.wt.merged)
	}

	rec, err := h.store.GetBatch(h.project.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.BatchCancelled {
		t.Errorf("persisted batch 1 = %s", rec.Status)
	}
}

func TestExecutePlanMergeConflictRollsBack(t *testing.T) {
	h := newHarness(t)
	h.wt.conflicts = map[string][]string{"e2": {"src/shared/util.go"}}

	h.seedEpic(t, "e1", "Auth")
	h.seedEpic(t, "e2", "Billing")
	h.seedTask(t, "t1", "e1", "auth work")
	h.seedTask(t, "t2", "e2", "billing work")
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: []string{"t1", "t2"}, CanParallel: true})

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatalf("result = %+v", res)
	}

	br := res.Batches[0]
	if br.Status != models.BatchFailed {
		t.Errorf("batch = %s", br.Status)
	}
	if br.Merge == nil || br.Merge.Status != MergeConflicted {
		t.Fatalf("merge = %+v", br.Merge)
	}
	if got := br.Merge.Conflicts["e2"]; len(got) != 1 || got[0] != "src/shared/util.go" {
		t.Errorf("conflicts = %v", br.Merge.Conflicts)
	}

	// e1 merged first (sorted order), so the conflict on e2 must undo
	// exactly one trunk commit.
	if len(h.git.resets) != 1 || h.git.resets[0] != 1 {
		t.Errorf("resets = %v, want [1]", h.git.resets)
	}
	// Worktrees stay on disk for inspection.
	if len(h.wt.cleaned) != 0 {
		t.Errorf("cleaned = %v", h.wt.cleaned)
	}
}

func TestExecutePlanTestFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.cfg.TestCommand = "go test ./..."
	h.exec.out = "--- FAIL: TestThing\nexit status 1\n"
	h.exec.err = errors.New("exit status 1")

	h.seedEpic(t, "e1", "Auth")
	h.seedEpic(t, "e2", "Billing")
	h.seedTask(t, "t1", "e1", "auth work")
	h.seedTask(t, "t2", "e2", "billing work")
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: []string{"t1", "t2"}, CanParallel: true})

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatalf("result = %+v", res)
	}

	br := res.Batches[0]
	if br.Merge == nil || br.Merge.Status != MergeTestFailed {
		t.Fatalf("merge = %+v", br.Merge)
	}
	if !strings.Contains(br.Merge.TestOutput, "FAIL: TestThing") {
		t.Errorf("test output = %q", br.Merge.TestOutput)
	}
	// Both merges landed before the gate, so both roll back together.
	if len(h.git.resets) != 1 || h.git.resets[0] != 2 {
		t.Errorf("resets = %v, want [2]", h.git.resets)
	}
	if len(h.wt.cleaned) != 0 {
		t.Errorf("cleaned = %v", h.wt.cleaned)
	}
	if len(h.exec.calls) != 1 || h.exec.calls[0] != "go test ./..." {
		t.Errorf("test command calls = %v", h.exec.calls)
	}
}

func TestExecutePlanSequentialSkipsTestGate(t *testing.T) {
	h := newHarness(t)
	h.cfg.TestCommand = "go test ./..."

	h.seedEpic(t, "e1", "Auth")
	h.seedTask(t, "t1", "e1", "auth work")
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: []string{"t1"}})

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(h.exec.calls) != 0 {
		t.Errorf("inline merges must not run the test gate, calls = %v", h.exec.calls)
	}
	if res.Batches[0].Merge.Status != MergeSkipped {
		t.Errorf("merge = %+v", res.Batches[0].Merge)
	}
}

func TestExecutePlanStopBetweenBatches(t *testing.T) {
	h := newHarness(t)
	h.seedEpic(t, "e1", "Auth")
	h.seedTask(t, "t1", "e1", "first")
	h.seedTask(t, "t2", "e1", "second")
	h.seedPlan(t,
		models.Batch{BatchID: 0, TaskIDs: []string{"t1"}},
		models.Batch{BatchID: 1, TaskIDs: []string{"t2"}, DependsOn: []int{0}},
	)

	// The stop request lands while the first task runs.
	h.agent.onRun = func() { _ = h.rt.RequestStop(h.project.ID) }

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !res.StoppedEarly {
		t.Fatalf("result = %+v", res)
	}
	if res.Batches[0].Status != models.BatchCompleted {
		t.Errorf("running batch must finish, got %s", res.Batches[0].Status)
	}
	if res.Batches[1].Status != models.BatchCancelled {
		t.Errorf("batch after stop = %s", res.Batches[1].Status)
	}
	if h.agent.calls != 1 {
		t.Errorf("agent calls = %d", h.agent.calls)
	}
}

func TestExecutePlanStopMidBatchEndsDispatch(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxConcurrency = 1

	ids := []string{"t1", "t2", "t3", "t4"}
	for i, id := range ids {
		epic := "e" + string(rune('1'+i))
		h.seedEpic(t, epic, "Epic "+epic)
		h.seedTask(t, id, epic, "work on "+id)
	}
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: ids, CanParallel: true})

	// The stop lands while the first task is still running.
	h.agent.onRun = func() { _ = h.rt.RequestStop(h.project.ID) }

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !res.StoppedEarly {
		t.Fatalf("result = %+v", res)
	}
	if res.Batches[0].Status != models.BatchCancelled {
		t.Errorf("batch = %s", res.Batches[0].Status)
	}
	if h.agent.calls != 1 {
		t.Errorf("agent calls = %d; a stop must end dispatch inside the running batch", h.agent.calls)
	}
	if len(h.wt.merged) != 0 {
		t.Errorf("stopped batch must not merge, merged = %v", h.wt.merged)
	}
}

func TestExecutePlanCancellationMidBatch(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxConcurrency = 2
	h.agent.block = true
	h.agent.started = make(chan string, 4)

	ids := []string{"t1", "t2", "t3", "t4"}
	for i, id := range ids {
		epic := "e" + string(rune('1'+i))
		h.seedEpic(t, epic, "Epic "+epic)
		h.seedTask(t, id, epic, "work on "+id)
	}
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: ids, CanParallel: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Cancel once the first two tasks are in flight.
		<-h.agent.started
		<-h.agent.started
		cancel()
	}()

	res, err := h.rt.ExecutePlan(ctx, h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.BatchesCompleted != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Batches[0].Status != models.BatchCancelled {
		t.Errorf("batch = %s", res.Batches[0].Status)
	}
	if h.agent.calls > 2 {
		t.Errorf("agent calls = %d; no new task may start after cancellation", h.agent.calls)
	}

	interrupted := h.sessionStatuses(t, models.SessionInterrupted)
	if len(interrupted) != 2 {
		t.Errorf("interrupted sessions = %d, want 2", len(interrupted))
	}
	for _, sess := range interrupted {
		if sess.InterruptionReason == "" {
			t.Errorf("session %s has no interruption reason", sess.ID)
		}
	}
	if len(h.wt.merged) != 0 {
		t.Errorf("cancelled batch must not merge, merged = %v", h.wt.merged)
	}
}

func TestExecutePlanAlreadyDoneTasksSkipBatch(t *testing.T) {
	h := newHarness(t)
	h.seedEpic(t, "e1", "Auth")
	h.seedTask(t, "t1", "e1", "already finished")
	if err := h.store.MarkTaskDone("t1", time.Now()); err != nil {
		t.Fatal(err)
	}
	h.seedPlan(t, models.Batch{BatchID: 0, TaskIDs: []string{"t1"}})

	res, err := h.rt.ExecutePlan(context.Background(), h.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if h.agent.calls != 0 {
		t.Errorf("done task dispatched to agent %d times", h.agent.calls)
	}
}
