// Package worktree manages isolated working copies, one per epic. Each
// worktree lives on its own branch cut from the integration branch; the
// manager owns creation, merge-back, cleanup, and crash recovery.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/git"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// Store is the persistence surface the manager needs.
type Store interface {
	UpsertWorktree(w *models.Worktree) error
	GetWorktreeByEpic(projectID, epicID string) (*models.Worktree, error)
	UpdateWorktreeStatus(projectID, epicID string, status models.WorktreeStatus) error
	RecordMerge(projectID, epicID, mergeCommit string, at time.Time) error
	ListWorktrees(projectID string, status *models.WorktreeStatus) ([]*models.Worktree, error)
}

// SyncStrategy selects how a worktree picks up new trunk commits.
type SyncStrategy string

const (
	SyncMerge  SyncStrategy = "merge"
	SyncRebase SyncStrategy = "rebase"
)

// Manager creates, merges, and removes per-epic worktrees. All methods
// are safe for concurrent use; operations on the same epic serialize.
type Manager struct {
	repoRoot string
	dir      string
	root     git.Runner
	factory  git.RunnerFactory
	store    Store
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager builds a Manager. dir is the worktree container directory
// relative to the repository root.
func NewManager(repoRoot, dir string, root git.Runner, factory git.RunnerFactory, store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repoRoot: repoRoot,
		dir:      dir,
		root:     root,
		factory:  factory,
		store:    store,
		logger:   logger,
		locks:    map[string]*sync.Mutex{},
	}
}

func (m *Manager) epicLock(epicID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[epicID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[epicID] = l
	}
	return l
}

func (m *Manager) pathForEpic(epicID string) string {
	return filepath.Join(m.repoRoot, m.dir, "epic-"+epicID)
}

// Create ensures a worktree exists for the epic and returns its record.
// Idempotent: an existing active worktree with an intact directory is
// returned as-is.
func (m *Manager) Create(ctx context.Context, projectID string, epic *models.Epic) (*models.Worktree, error) {
	lock := m.epicLock(epic.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.GetWorktreeByEpic(projectID, epic.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == models.WorktreeActive {
		if _, statErr := os.Stat(existing.Path); statErr == nil {
			return existing, nil
		}
		// Directory vanished under an active record; rebuild it below.
		m.logger.Warn("active worktree directory missing, recreating",
			zap.String("epic_id", epic.ID),
			zap.String("path", existing.Path))
	}

	path := m.pathForEpic(epic.ID)
	branch := BranchForEpic(epic.ID, epic.Name)

	main, err := m.root.DetectMainBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect main branch: %w", err)
	}

	exists, err := m.root.BranchExists(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("check branch %s: %w", branch, err)
	}
	if exists {
		err = m.root.WorktreeAdd(ctx, path, branch)
	} else {
		err = m.root.WorktreeAddNewBranch(ctx, path, branch, main)
	}
	if err != nil {
		return nil, fmt.Errorf("add worktree for epic %s: %w", epic.ID, err)
	}

	w := &models.Worktree{
		ProjectID: projectID,
		EpicID:    epic.ID,
		Name:      "worktree-" + SanitizeBranchName(epic.Name),
		Path:      path,
		Branch:    branch,
		Status:    models.WorktreeActive,
		CreatedAt: time.Now(),
	}
	if err := m.store.UpsertWorktree(w); err != nil {
		return nil, err
	}
	m.logger.Info("worktree created",
		zap.String("epic_id", epic.ID),
		zap.String("branch", branch),
		zap.String("path", path))
	return w, nil
}

// MergeResult reports the outcome of merging one worktree into trunk.
type MergeResult struct {
	MergeCommit     string
	ConflictedFiles []string
}

// Merge folds a worktree's branch back into the integration branch as a
// single squash commit. Uncommitted work in the worktree is committed
// first. On conflict the merge is aborted, the worktree transitions to
// conflict status, and the conflicted paths are returned with a nil
// error; the worktree stays on disk for inspection.
func (m *Manager) Merge(ctx context.Context, projectID, epicID string) (*MergeResult, error) {
	lock := m.epicLock(epicID)
	lock.Lock()
	defer lock.Unlock()

	w, err := m.store.GetWorktreeByEpic(projectID, epicID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("merge: no worktree for epic %s", epicID)
	}

	// Commit any leftover work inside the worktree so the branch tip
	// carries everything the agent produced.
	wt := m.factory(w.Path)
	dirty, err := wt.HasChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("check worktree changes: %w", err)
	}
	if dirty {
		if err := wt.AddAll(ctx); err != nil {
			return nil, fmt.Errorf("stage worktree changes: %w", err)
		}
		if err := wt.Commit(ctx, fmt.Sprintf("checkpoint: epic %s", epicID)); err != nil {
			return nil, fmt.Errorf("commit worktree changes: %w", err)
		}
	}

	main, err := m.root.DetectMainBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect main branch: %w", err)
	}
	current, err := m.root.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("current branch: %w", err)
	}
	target := main
	if current != main {
		if err := m.root.CheckoutBranch(ctx, main); err != nil {
			// Another worktree can hold the integration branch, typical
			// when the caller itself runs from a worktree. Merge onto the
			// current head instead.
			if !isBranchHeld(err) {
				return nil, fmt.Errorf("checkout %s: %w", main, err)
			}
			m.logger.Warn("main branch held by another worktree, merging onto current head",
				zap.String("main", main),
				zap.String("head", current))
			target = current
		}
	}

	conflicts, err := m.root.MergeProbe(ctx, target, w.Branch)
	if err != nil {
		return nil, fmt.Errorf("probe merge of %s: %w", w.Branch, err)
	}
	if conflicts {
		files, ferr := m.conflictedFiles(ctx, w.Branch)
		if ferr != nil {
			m.logger.Warn("failed to enumerate conflicted files", zap.Error(ferr))
		}
		if err := m.store.UpdateWorktreeStatus(projectID, epicID, models.WorktreeConflict); err != nil {
			return nil, err
		}
		m.logger.Warn("merge conflict detected",
			zap.String("epic_id", epicID),
			zap.String("branch", w.Branch),
			zap.Strings("files", files))
		return &MergeResult{ConflictedFiles: files}, nil
	}

	if err := m.root.MergeSquash(ctx, w.Branch); err != nil {
		m.root.MergeAbort(ctx)
		return nil, fmt.Errorf("squash merge %s: %w", w.Branch, err)
	}
	if err := m.root.Commit(ctx, fmt.Sprintf("merge epic %s (%s)", epicID, w.Branch)); err != nil {
		return nil, fmt.Errorf("commit squash merge: %w", err)
	}
	head, err := m.root.RevParseHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve merge commit: %w", err)
	}
	if err := m.store.RecordMerge(projectID, epicID, head, time.Now()); err != nil {
		return nil, err
	}
	m.logger.Info("worktree merged",
		zap.String("epic_id", epicID),
		zap.String("branch", w.Branch),
		zap.String("commit", head))
	return &MergeResult{MergeCommit: head}, nil
}

// isBranchHeld reports whether a checkout failed because the branch is
// already attached to another worktree.
func isBranchHeld(err error) bool {
	var cmdErr *git.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	out := strings.ToLower(cmdErr.Output)
	return strings.Contains(out, "already checked out") ||
		strings.Contains(out, "already used by worktree")
}

// conflictedFiles stages the conflicting merge just long enough to read
// the unmerged paths, then aborts it.
func (m *Manager) conflictedFiles(ctx context.Context, branch string) ([]string, error) {
	if err := m.root.MergeNoCommit(ctx, branch); err == nil {
		// The probe said conflict but the real merge went clean; undo it.
		m.root.MergeAbort(ctx)
		return nil, nil
	}
	files, err := m.root.ConflictedFiles(ctx)
	aborted := m.root.MergeAbort(ctx)
	if err != nil {
		return nil, err
	}
	if aborted != nil {
		return files, fmt.Errorf("abort conflict probe: %w", aborted)
	}
	return files, nil
}

// Cleanup removes a worktree's directory and, when fully merged, its
// branch. VCS removal is tried first; a direct filesystem removal plus
// prune covers directories the VCS no longer knows about.
func (m *Manager) Cleanup(ctx context.Context, projectID, epicID string, force bool) error {
	lock := m.epicLock(epicID)
	lock.Lock()
	defer lock.Unlock()

	w, err := m.store.GetWorktreeByEpic(projectID, epicID)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}

	if err := m.root.WorktreeRemove(ctx, w.Path, force); err != nil {
		m.logger.Debug("worktree remove failed, falling back to rm",
			zap.String("path", w.Path), zap.Error(err))
		if rmErr := os.RemoveAll(w.Path); rmErr != nil {
			return fmt.Errorf("remove worktree directory: %w", rmErr)
		}
		if pruneErr := m.root.WorktreePrune(ctx); pruneErr != nil {
			m.logger.Warn("worktree prune failed", zap.Error(pruneErr))
		}
	}

	if err := m.root.DeleteBranchIfMerged(ctx, w.Branch); err != nil {
		// Unmerged branches survive cleanup so nothing is lost.
		m.logger.Debug("branch kept after cleanup",
			zap.String("branch", w.Branch), zap.Error(err))
	}

	if err := m.store.UpdateWorktreeStatus(projectID, epicID, models.WorktreeCleanup); err != nil {
		return err
	}
	m.logger.Info("worktree cleaned up",
		zap.String("epic_id", epicID),
		zap.String("path", w.Path))
	return nil
}

// SyncFromMain brings new trunk commits into a worktree's branch, by
// merge or rebase.
func (m *Manager) SyncFromMain(ctx context.Context, projectID, epicID string, strategy SyncStrategy) error {
	lock := m.epicLock(epicID)
	lock.Lock()
	defer lock.Unlock()

	w, err := m.store.GetWorktreeByEpic(projectID, epicID)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("sync: no worktree for epic %s", epicID)
	}

	main, err := m.root.DetectMainBranch(ctx)
	if err != nil {
		return fmt.Errorf("detect main branch: %w", err)
	}

	wt := m.factory(w.Path)
	switch strategy {
	case SyncRebase:
		if err := wt.Rebase(ctx, main); err != nil {
			wt.RebaseAbort(ctx)
			return fmt.Errorf("rebase worktree %s onto %s: %w", w.Branch, main, err)
		}
	default:
		if err := wt.MergeNoFFMessage(ctx, main, fmt.Sprintf("sync %s from %s", w.Branch, main)); err != nil {
			wt.MergeAbort(ctx)
			return fmt.Errorf("merge %s into worktree %s: %w", main, w.Branch, err)
		}
	}
	return nil
}

// RecoverState reconciles the database against the filesystem and the
// VCS after a crash. Active records whose directory or branch is gone
// become abandoned; stale VCS bookkeeping is pruned.
func (m *Manager) RecoverState(ctx context.Context, projectID string) error {
	if err := m.root.WorktreePrune(ctx); err != nil {
		m.logger.Warn("worktree prune failed during recovery", zap.Error(err))
	}

	porcelain, err := m.root.WorktreeListPorcelain(ctx)
	if err != nil {
		return fmt.Errorf("list worktrees: %w", err)
	}
	known := parsePorcelainPaths(porcelain)

	active := models.WorktreeActive
	worktrees, err := m.store.ListWorktrees(projectID, &active)
	if err != nil {
		return err
	}
	for _, w := range worktrees {
		_, statErr := os.Stat(w.Path)
		dirGone := statErr != nil
		branchExists, berr := m.root.BranchExists(ctx, w.Branch)
		if berr != nil {
			return fmt.Errorf("check branch %s: %w", w.Branch, berr)
		}
		if dirGone || !branchExists || !known[filepath.Clean(w.Path)] {
			if err := m.store.UpdateWorktreeStatus(projectID, w.EpicID, models.WorktreeAbandoned); err != nil {
				return err
			}
			m.logger.Warn("abandoned worktree detected during recovery",
				zap.String("epic_id", w.EpicID),
				zap.String("path", w.Path),
				zap.Bool("dir_missing", dirGone),
				zap.Bool("branch_missing", !branchExists))
		}
	}
	return nil
}

// parsePorcelainPaths extracts worktree paths from `worktree list
// --porcelain` output.
func parsePorcelainPaths(out string) map[string]bool {
	paths := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "worktree "); ok {
			paths[filepath.Clean(strings.TrimSpace(rest))] = true
		}
	}
	return paths
}
