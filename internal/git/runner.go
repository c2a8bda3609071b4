package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	osexec "os/exec"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/exec"
)

// Timeouts bounds git invocations by kind.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Merge time.Duration
}

// DefaultTimeouts match the engine's resource model: reads 10s, writes
// and merges 60s.
var DefaultTimeouts = Timeouts{
	Read:  10 * time.Second,
	Write: 60 * time.Second,
	Merge: 60 * time.Second,
}

// ExecRunner implements Runner by shelling out to git in one directory.
type ExecRunner struct {
	dir      string
	exec     exec.CommandRunner
	timeouts Timeouts
}

// NewRunner creates a git runner for the given working directory.
func NewRunner(dir string) *ExecRunner {
	return NewRunnerWith(dir, exec.NewRunner(), DefaultTimeouts)
}

// NewRunnerWith creates a git runner with a custom command runner and
// timeouts, for tests and for configured timeout overrides.
func NewRunnerWith(dir string, cr exec.CommandRunner, t Timeouts) *ExecRunner {
	if t.Read <= 0 {
		t.Read = DefaultTimeouts.Read
	}
	if t.Write <= 0 {
		t.Write = DefaultTimeouts.Write
	}
	if t.Merge <= 0 {
		t.Merge = DefaultTimeouts.Merge
	}
	return &ExecRunner{dir: dir, exec: cr, timeouts: t}
}

// Factory returns a RunnerFactory that shares this runner's command
// runner and timeouts across directories.
func (r *ExecRunner) Factory() RunnerFactory {
	return func(dir string) Runner {
		return NewRunnerWith(dir, r.exec, r.timeouts)
	}
}

// Dir returns the working directory this runner operates in.
func (r *ExecRunner) Dir() string {
	return r.dir
}

func (r *ExecRunner) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	out, err := r.exec.Run(ctx, r.dir, timeout, "git", args...)
	if err != nil {
		if IsTimeout(err) {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
		}
		code := -1
		if exitErr, ok := err.(*osexec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return "", &CommandError{Args: args, ExitCode: code, Output: string(out), Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *ExecRunner) read(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, r.timeouts.Read, args...)
}

func (r *ExecRunner) write(ctx context.Context, args ...string) error {
	_, err := r.run(ctx, r.timeouts.Write, args...)
	return err
}

// CurrentBranch returns the name of the checked-out branch.
func (r *ExecRunner) CurrentBranch(ctx context.Context) (string, error) {
	return r.read(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// DetectMainBranch discovers the integration branch. The remote HEAD
// wins when configured; otherwise local main, then master.
func (r *ExecRunner) DetectMainBranch(ctx context.Context) (string, error) {
	out, err := r.read(ctx, "symbolic-ref", "refs/remotes/origin/HEAD", "--short")
	if err == nil && out != "" {
		// origin/main -> main
		if idx := strings.LastIndex(out, "/"); idx >= 0 {
			return out[idx+1:], nil
		}
		return out, nil
	}
	for _, name := range []string{"main", "master"} {
		exists, err := r.BranchExists(ctx, name)
		if err != nil {
			return "", err
		}
		if exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("no main or master branch found in %s", r.dir)
}

// BranchExists reports whether a local branch exists.
func (r *ExecRunner) BranchExists(ctx context.Context, name string) (bool, error) {
	_, err := r.read(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		var cmdErr *CommandError
		if asCommandError(err, &cmdErr) && cmdErr.ExitCode == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func asCommandError(err error, target **CommandError) bool {
	ce, ok := err.(*CommandError)
	if ok {
		*target = ce
	}
	return ok
}

// CreateBranchFrom creates a branch at base without checking it out.
func (r *ExecRunner) CreateBranchFrom(ctx context.Context, name, base string) error {
	return r.write(ctx, "branch", name, base)
}

// CheckoutBranch switches to the specified branch.
func (r *ExecRunner) CheckoutBranch(ctx context.Context, name string) error {
	return r.write(ctx, "checkout", name)
}

// DeleteBranchIfMerged deletes a branch only if fully merged.
func (r *ExecRunner) DeleteBranchIfMerged(ctx context.Context, name string) error {
	return r.write(ctx, "branch", "-d", name)
}

// WorktreeAddNewBranch creates a worktree at path on a new branch from base.
func (r *ExecRunner) WorktreeAddNewBranch(ctx context.Context, path, branch, base string) error {
	return r.write(ctx, "worktree", "add", "-b", branch, path, base)
}

// WorktreeAdd attaches an existing branch at path.
func (r *ExecRunner) WorktreeAdd(ctx context.Context, path, branch string) error {
	return r.write(ctx, "worktree", "add", path, branch)
}

// WorktreeRemove removes the worktree at path.
func (r *ExecRunner) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return r.write(ctx, args...)
}

// WorktreeListPorcelain returns the raw porcelain listing.
func (r *ExecRunner) WorktreeListPorcelain(ctx context.Context) (string, error) {
	return r.read(ctx, "worktree", "list", "--porcelain")
}

// WorktreePrune drops stale administrative entries.
func (r *ExecRunner) WorktreePrune(ctx context.Context) error {
	return r.write(ctx, "worktree", "prune", "--expire", "now")
}

// StatusShort returns git status --short output.
func (r *ExecRunner) StatusShort(ctx context.Context) (string, error) {
	return r.read(ctx, "status", "--short")
}

// HasChanges reports whether the working tree has uncommitted changes.
func (r *ExecRunner) HasChanges(ctx context.Context) (bool, error) {
	out, err := r.StatusShort(ctx)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// AddAll stages everything.
func (r *ExecRunner) AddAll(ctx context.Context) error {
	return r.write(ctx, "add", "-A")
}

// Commit records a commit with the given message.
func (r *ExecRunner) Commit(ctx context.Context, message string) error {
	return r.write(ctx, "commit", "-m", message)
}

// RevParseHead returns the current HEAD commit id.
func (r *ExecRunner) RevParseHead(ctx context.Context) (string, error) {
	return r.read(ctx, "rev-parse", "HEAD")
}

// ResetHardBack discards the last n commits.
func (r *ExecRunner) ResetHardBack(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	return r.write(ctx, "reset", "--hard", fmt.Sprintf("HEAD~%d", n))
}

// MergeNoCommit attempts a non-fast-forward merge without committing.
func (r *ExecRunner) MergeNoCommit(ctx context.Context, branch string) error {
	_, err := r.run(ctx, r.timeouts.Merge, "merge", "--no-commit", "--no-ff", branch)
	return err
}

// MergeNoFFMessage merges with --no-ff and a custom message.
func (r *ExecRunner) MergeNoFFMessage(ctx context.Context, branch, message string) error {
	_, err := r.run(ctx, r.timeouts.Merge, "merge", "--no-ff", "-m", message, branch)
	return err
}

// MergeSquash stages a squash merge; the caller commits it.
func (r *ExecRunner) MergeSquash(ctx context.Context, branch string) error {
	_, err := r.run(ctx, r.timeouts.Merge, "merge", "--squash", branch)
	return err
}

// MergeAbort aborts an in-progress merge.
func (r *ExecRunner) MergeAbort(ctx context.Context) error {
	return r.write(ctx, "merge", "--abort")
}

// MergeBase returns the common ancestor of two refs.
func (r *ExecRunner) MergeBase(ctx context.Context, a, b string) (string, error) {
	return r.read(ctx, "merge-base", a, b)
}

// MergeProbe dry-runs a merge of branch into base via merge-tree.
// It never touches the index; conflict markers in the output mean the
// real merge would conflict.
func (r *ExecRunner) MergeProbe(ctx context.Context, base, branch string) (bool, error) {
	ancestor, err := r.MergeBase(ctx, base, branch)
	if err != nil {
		return false, err
	}
	out, err := r.run(ctx, r.timeouts.Merge, "merge-tree", ancestor, base, branch)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "<<<<<<<"), nil
}

// ConflictedFiles lists unmerged paths.
func (r *ExecRunner) ConflictedFiles(ctx context.Context) ([]string, error) {
	out, err := r.read(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Rebase rebases the current branch onto base.
func (r *ExecRunner) Rebase(ctx context.Context, base string) error {
	_, err := r.run(ctx, r.timeouts.Merge, "rebase", base)
	return err
}

// RebaseAbort aborts an in-progress rebase.
func (r *ExecRunner) RebaseAbort(ctx context.Context) error {
	return r.write(ctx, "rebase", "--abort")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
