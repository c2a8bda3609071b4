package worktree

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/git"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// fakeGit implements git.Runner with programmable behavior and a call log.
type fakeGit struct {
	dir string

	mainBranch   string
	current      string
	branches     map[string]bool
	dirty        bool
	probeResult  bool
	checkoutErr  error
	noCommitErr  error
	noFFErr      error
	rebaseErr    error
	conflicted   []string
	head         string
	porcelain    string
	removeErr    error
	calls        []string
}

var _ git.Runner = (*fakeGit)(nil)

func newFakeGit() *fakeGit {
	return &fakeGit{
		mainBranch: "main",
		branches:   map[string]bool{"main": true},
		head:       "abc123",
	}
}

func (f *fakeGit) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeGit) called(name string) bool {
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakeGit) Dir() string { return f.dir }

func (f *fakeGit) CurrentBranch(ctx context.Context) (string, error) {
	if f.current != "" {
		return f.current, nil
	}
	return f.mainBranch, nil
}
func (f *fakeGit) DetectMainBranch(ctx context.Context) (string, error) {
	return f.mainBranch, nil
}
func (f *fakeGit) BranchExists(ctx context.Context, name string) (bool, error) {
	return f.branches[name], nil
}
func (f *fakeGit) CreateBranchFrom(ctx context.Context, name, base string) error {
	f.branches[name] = true
	return nil
}
func (f *fakeGit) CheckoutBranch(ctx context.Context, name string) error {
	f.record("checkout")
	return f.checkoutErr
}
func (f *fakeGit) DeleteBranchIfMerged(ctx context.Context, name string) error {
	f.record("delete-branch")
	delete(f.branches, name)
	return nil
}

func (f *fakeGit) WorktreeAddNewBranch(ctx context.Context, path, branch, base string) error {
	f.record("worktree-add-new")
	f.branches[branch] = true
	return nil
}
func (f *fakeGit) WorktreeAdd(ctx context.Context, path, branch string) error {
	f.record("worktree-add")
	return nil
}
func (f *fakeGit) WorktreeRemove(ctx context.Context, path string, force bool) error {
	f.record("worktree-remove")
	return f.removeErr
}
func (f *fakeGit) WorktreeListPorcelain(ctx context.Context) (string, error) {
	return f.porcelain, nil
}
func (f *fakeGit) WorktreePrune(ctx context.Context) error {
	f.record("prune")
	return nil
}

func (f *fakeGit) StatusShort(ctx context.Context) (string, error) { return "", nil }
func (f *fakeGit) HasChanges(ctx context.Context) (bool, error)    { return f.dirty, nil }
func (f *fakeGit) AddAll(ctx context.Context) error {
	f.record("add-all")
	return nil
}
func (f *fakeGit) Commit(ctx context.Context, message string) error {
	f.record("commit")
	return nil
}
func (f *fakeGit) RevParseHead(ctx context.Context) (string, error) { return f.head, nil }
func (f *fakeGit) ResetHardBack(ctx context.Context, n int) error {
	f.record("reset-hard")
	return nil
}

func (f *fakeGit) MergeNoCommit(ctx context.Context, branch string) error {
	f.record("merge-no-commit")
	return f.noCommitErr
}
func (f *fakeGit) MergeNoFFMessage(ctx context.Context, branch, message string) error {
	f.record("merge-no-ff")
	return f.noFFErr
}
func (f *fakeGit) MergeSquash(ctx context.Context, branch string) error {
	f.record("merge-squash")
	return nil
}
func (f *fakeGit) MergeAbort(ctx context.Context) error {
	f.record("merge-abort")
	return nil
}
func (f *fakeGit) MergeBase(ctx context.Context, a, b string) (string, error) { return "", nil }
func (f *fakeGit) MergeProbe(ctx context.Context, base, branch string) (bool, error) {
	return f.probeResult, nil
}
func (f *fakeGit) ConflictedFiles(ctx context.Context) ([]string, error) {
	return f.conflicted, nil
}
func (f *fakeGit) Rebase(ctx context.Context, base string) error {
	f.record("rebase")
	return f.rebaseErr
}
func (f *fakeGit) RebaseAbort(ctx context.Context) error {
	f.record("rebase-abort")
	return nil
}

// fakeStore keeps worktree rows in memory keyed by epic id.
type fakeStore struct {
	rows map[string]*models.Worktree
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*models.Worktree{}}
}

func (s *fakeStore) UpsertWorktree(w *models.Worktree) error {
	cp := *w
	s.rows[w.EpicID] = &cp
	return nil
}

func (s *fakeStore) GetWorktreeByEpic(projectID, epicID string) (*models.Worktree, error) {
	w, ok := s.rows[epicID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (s *fakeStore) UpdateWorktreeStatus(projectID, epicID string, status models.WorktreeStatus) error {
	w, ok := s.rows[epicID]
	if !ok {
		return errors.New("no such worktree")
	}
	w.Status = status
	return nil
}

func (s *fakeStore) RecordMerge(projectID, epicID, mergeCommit string, at time.Time) error {
	w, ok := s.rows[epicID]
	if !ok {
		return errors.New("no such worktree")
	}
	w.Status = models.WorktreeMerged
	w.MergeCommit = mergeCommit
	w.MergedAt = &at
	return nil
}

func (s *fakeStore) ListWorktrees(projectID string, status *models.WorktreeStatus) ([]*models.Worktree, error) {
	var out []*models.Worktree
	for _, w := range s.rows {
		if status != nil && w.Status != *status {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func newTestManager(t *testing.T, fg *fakeGit, fs *fakeStore) *Manager {
	t.Helper()
	root := t.TempDir()
	fg.dir = root
	factory := func(dir string) git.Runner { return fg }
	return NewManager(root, ".worktrees", fg, factory, fs, zap.NewNop())
}

func TestCreateNewWorktree(t *testing.T) {
	fg := newFakeGit()
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	epic := &models.Epic{ID: "e1", Name: "User Auth"}
	w, err := m.Create(context.Background(), "p1", epic)
	if err != nil {
		t.Fatal(err)
	}
	if w.Branch != "epic-e1-user-auth" {
		t.Errorf("branch = %s", w.Branch)
	}
	if w.Name != "worktree-user-auth" {
		t.Errorf("name = %s", w.Name)
	}
	if w.Status != models.WorktreeActive {
		t.Errorf("status = %s", w.Status)
	}
	if !fg.called("worktree-add-new") {
		t.Error("expected a new branch worktree add")
	}
	if fs.rows["e1"] == nil {
		t.Error("worktree not persisted")
	}
}

func TestCreateIdempotent(t *testing.T) {
	fg := newFakeGit()
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	path := t.TempDir() // stands in for an intact worktree directory
	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Name: "worktree-auth",
		Path: path, Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	w, err := m.Create(context.Background(), "p1", &models.Epic{ID: "e1", Name: "Auth"})
	if err != nil {
		t.Fatal(err)
	}
	if w.Path != path {
		t.Errorf("path = %s, want existing %s", w.Path, path)
	}
	if fg.called("worktree-add-new") || fg.called("worktree-add") {
		t.Error("idempotent create must not touch the VCS")
	}
}

func TestCreateReusesExistingBranch(t *testing.T) {
	fg := newFakeGit()
	fg.branches["epic-e1-auth"] = true
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	if _, err := m.Create(context.Background(), "p1", &models.Epic{ID: "e1", Name: "Auth"}); err != nil {
		t.Fatal(err)
	}
	if !fg.called("worktree-add") {
		t.Error("existing branch should be attached, not recreated")
	}
	if fg.called("worktree-add-new") {
		t.Error("must not cut a new branch when one exists")
	}
}

func TestMergeClean(t *testing.T) {
	fg := newFakeGit()
	fg.head = "deadbeef"
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: filepath.Join(t.TempDir(), "wt"),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	res, err := m.Merge(context.Background(), "p1", "e1")
	if err != nil {
		t.Fatal(err)
	}
	if res.MergeCommit != "deadbeef" {
		t.Errorf("merge commit = %s", res.MergeCommit)
	}
	if len(res.ConflictedFiles) != 0 {
		t.Errorf("unexpected conflicts: %v", res.ConflictedFiles)
	}
	if fs.rows["e1"].Status != models.WorktreeMerged {
		t.Errorf("status = %s, want merged", fs.rows["e1"].Status)
	}
	if !fg.called("merge-squash") || !fg.called("commit") {
		t.Errorf("calls = %v", fg.calls)
	}
}

func TestMergeDirtyWorktreeCheckpointsFirst(t *testing.T) {
	fg := newFakeGit()
	fg.dirty = true
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	if _, err := m.Merge(context.Background(), "p1", "e1"); err != nil {
		t.Fatal(err)
	}
	if !fg.called("add-all") {
		t.Error("dirty worktree must be staged before merging")
	}
}

func TestMergeConflict(t *testing.T) {
	fg := newFakeGit()
	fg.probeResult = true
	fg.noCommitErr = errors.New("exit status 1")
	fg.conflicted = []string{"src/shared/util.go"}
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	res, err := m.Merge(context.Background(), "p1", "e1")
	if err != nil {
		t.Fatal(err)
	}
	if res.MergeCommit != "" {
		t.Errorf("conflicted merge produced commit %s", res.MergeCommit)
	}
	if len(res.ConflictedFiles) != 1 || res.ConflictedFiles[0] != "src/shared/util.go" {
		t.Errorf("conflicted files = %v", res.ConflictedFiles)
	}
	if fs.rows["e1"].Status != models.WorktreeConflict {
		t.Errorf("status = %s, want conflict", fs.rows["e1"].Status)
	}
	if !fg.called("merge-abort") {
		t.Error("conflict probe must be aborted")
	}
	if fg.called("merge-squash") {
		t.Error("conflicted branch must not be squash merged")
	}
}

func TestMergeFallsBackWhenMainHeldByWorktree(t *testing.T) {
	fg := newFakeGit()
	fg.head = "cafe1234"
	fg.current = "epic-e9-host"
	fg.checkoutErr = &git.CommandError{
		Args:     []string{"checkout", "main"},
		ExitCode: 128,
		Output:   "fatal: 'main' is already checked out at '/repo/.worktrees/epic-e9'",
	}
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	res, err := m.Merge(context.Background(), "p1", "e1")
	if err != nil {
		t.Fatalf("merge must proceed against the current head: %v", err)
	}
	if res.MergeCommit != "cafe1234" {
		t.Errorf("merge commit = %s", res.MergeCommit)
	}
	if !fg.called("merge-squash") {
		t.Errorf("calls = %v", fg.calls)
	}
	if fs.rows["e1"].Status != models.WorktreeMerged {
		t.Errorf("status = %s, want merged", fs.rows["e1"].Status)
	}
}

func TestMergeCheckoutFailurePropagates(t *testing.T) {
	fg := newFakeGit()
	fg.current = "feature"
	fg.checkoutErr = &git.CommandError{
		Args:     []string{"checkout", "main"},
		ExitCode: 1,
		Output:   "error: your local changes would be overwritten by checkout",
	}
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	if _, err := m.Merge(context.Background(), "p1", "e1"); err == nil {
		t.Fatal("non-worktree checkout failures must propagate")
	}
	if fg.called("merge-squash") {
		t.Error("merge must not run after a failed checkout")
	}
}

func TestMergeUnknownEpic(t *testing.T) {
	m := newTestManager(t, newFakeGit(), newFakeStore())
	if _, err := m.Merge(context.Background(), "p1", "ghost"); err == nil {
		t.Fatal("expected error for unknown epic")
	}
}

func TestCleanup(t *testing.T) {
	fg := newFakeGit()
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeMerged,
	}

	if err := m.Cleanup(context.Background(), "p1", "e1", false); err != nil {
		t.Fatal(err)
	}
	if fs.rows["e1"].Status != models.WorktreeCleanup {
		t.Errorf("status = %s", fs.rows["e1"].Status)
	}
	if !fg.called("worktree-remove") || !fg.called("delete-branch") {
		t.Errorf("calls = %v", fg.calls)
	}
}

func TestCleanupFallsBackToFilesystemRemoval(t *testing.T) {
	fg := newFakeGit()
	fg.removeErr = errors.New("not a working tree")
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	dir := filepath.Join(t.TempDir(), "leftover")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: dir,
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	if err := m.Cleanup(context.Background(), "p1", "e1", true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory should have been removed directly")
	}
	if !fg.called("prune") {
		t.Error("expected a prune after filesystem removal")
	}
}

func TestSyncFromMainMerge(t *testing.T) {
	fg := newFakeGit()
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	if err := m.SyncFromMain(context.Background(), "p1", "e1", SyncMerge); err != nil {
		t.Fatal(err)
	}
	if !fg.called("merge-no-ff") {
		t.Errorf("calls = %v", fg.calls)
	}
	if fg.called("rebase") || fg.called("merge-abort") {
		t.Errorf("calls = %v", fg.calls)
	}
}

func TestSyncFromMainRebase(t *testing.T) {
	fg := newFakeGit()
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	if err := m.SyncFromMain(context.Background(), "p1", "e1", SyncRebase); err != nil {
		t.Fatal(err)
	}
	if !fg.called("rebase") {
		t.Errorf("calls = %v", fg.calls)
	}
	if fg.called("merge-no-ff") {
		t.Errorf("calls = %v", fg.calls)
	}
}

func TestSyncFromMainMergeConflictAborts(t *testing.T) {
	fg := newFakeGit()
	fg.noFFErr = errors.New("exit status 1")
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	if err := m.SyncFromMain(context.Background(), "p1", "e1", SyncMerge); err == nil {
		t.Fatal("conflicting sync must fail")
	}
	if !fg.called("merge-abort") {
		t.Errorf("calls = %v", fg.calls)
	}
}

func TestSyncFromMainRebaseConflictAborts(t *testing.T) {
	fg := newFakeGit()
	fg.rebaseErr = errors.New("exit status 1")
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: t.TempDir(),
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}

	if err := m.SyncFromMain(context.Background(), "p1", "e1", SyncRebase); err == nil {
		t.Fatal("conflicting rebase must fail")
	}
	if !fg.called("rebase-abort") {
		t.Errorf("calls = %v", fg.calls)
	}
}

func TestSyncFromMainUnknownEpic(t *testing.T) {
	m := newTestManager(t, newFakeGit(), newFakeStore())
	if err := m.SyncFromMain(context.Background(), "p1", "ghost", SyncMerge); err == nil {
		t.Fatal("expected error for unknown epic")
	}
}

func TestRecoverStateMarksAbandoned(t *testing.T) {
	fg := newFakeGit()
	fs := newFakeStore()
	m := newTestManager(t, fg, fs)

	intact := t.TempDir()
	fg.branches["epic-e1-auth"] = true
	fg.branches["epic-e2-billing"] = true
	fg.porcelain = "worktree " + intact + "\nbranch refs/heads/epic-e1-auth\n"

	fs.rows["e1"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e1", Path: intact,
		Branch: "epic-e1-auth", Status: models.WorktreeActive,
	}
	fs.rows["e2"] = &models.Worktree{
		ProjectID: "p1", EpicID: "e2", Path: filepath.Join(intact, "missing"),
		Branch: "epic-e2-billing", Status: models.WorktreeActive,
	}

	if err := m.RecoverState(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if fs.rows["e1"].Status != models.WorktreeActive {
		t.Errorf("intact worktree status = %s, want active", fs.rows["e1"].Status)
	}
	if fs.rows["e2"].Status != models.WorktreeAbandoned {
		t.Errorf("missing worktree status = %s, want abandoned", fs.rows["e2"].Status)
	}
}

func TestParsePorcelainPaths(t *testing.T) {
	out := "worktree /repo\nHEAD abc\nbranch refs/heads/main\n\nworktree /repo/.worktrees/epic-1\nHEAD def\n"
	paths := parsePorcelainPaths(out)
	if !paths["/repo"] || !paths[filepath.Clean("/repo/.worktrees/epic-1")] {
		t.Fatalf("paths = %v", paths)
	}
}
