// Package git shells out to the external VCS behind focused interfaces so
// every consumer can be tested against fakes. All invocations carry
// bounded timeouts: short for reads, longer for writes and merges.
package git

import "context"

// BranchOperations covers branch inspection and manipulation.
type BranchOperations interface {
	// CurrentBranch returns the name of the checked-out branch.
	CurrentBranch(ctx context.Context) (string, error)
	// DetectMainBranch discovers the integration branch: the remote HEAD
	// if one is configured, otherwise local "main" then "master".
	DetectMainBranch(ctx context.Context) (string, error)
	// BranchExists reports whether a local branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)
	// CreateBranchFrom creates a branch at the given base without
	// checking it out.
	CreateBranchFrom(ctx context.Context, name, base string) error
	// CheckoutBranch switches to the specified branch.
	CheckoutBranch(ctx context.Context, name string) error
	// DeleteBranchIfMerged deletes a branch only if it is fully merged
	// (git branch -d, never -D).
	DeleteBranchIfMerged(ctx context.Context, name string) error
}

// WorktreeOperations covers git worktree lifecycle.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a worktree at path on a new branch
	// started from base.
	WorktreeAddNewBranch(ctx context.Context, path, branch, base string) error
	// WorktreeAdd attaches an existing branch at path.
	WorktreeAdd(ctx context.Context, path, branch string) error
	// WorktreeRemove removes the worktree at path.
	WorktreeRemove(ctx context.Context, path string, force bool) error
	// WorktreeListPorcelain returns the raw porcelain listing.
	WorktreeListPorcelain(ctx context.Context) (string, error)
	// WorktreePrune drops stale administrative entries.
	WorktreePrune(ctx context.Context) error
}

// CommitOperations covers the staging area and commits.
type CommitOperations interface {
	// StatusShort returns git status --short output.
	StatusShort(ctx context.Context) (string, error)
	// HasChanges reports whether the working tree has uncommitted changes.
	HasChanges(ctx context.Context) (bool, error)
	// AddAll stages everything.
	AddAll(ctx context.Context) error
	// Commit records a commit with the given message.
	Commit(ctx context.Context, message string) error
	// RevParseHead returns the current HEAD commit id.
	RevParseHead(ctx context.Context) (string, error)
	// ResetHardBack discards the last n commits (reset --hard HEAD~n).
	ResetHardBack(ctx context.Context, n int) error
}

// MergeOperations covers merges, probes, and rebases.
type MergeOperations interface {
	// MergeNoCommit attempts a non-fast-forward merge without committing.
	MergeNoCommit(ctx context.Context, branch string) error
	// MergeNoFFMessage merges with --no-ff and a custom message.
	MergeNoFFMessage(ctx context.Context, branch, message string) error
	// MergeSquash stages a squash merge; the caller commits it.
	MergeSquash(ctx context.Context, branch string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort(ctx context.Context) error
	// MergeBase returns the common ancestor of two refs.
	MergeBase(ctx context.Context, a, b string) (string, error)
	// MergeProbe dry-runs a merge of branch into base via merge-tree and
	// reports whether it would conflict, without touching the index.
	MergeProbe(ctx context.Context, base, branch string) (bool, error)
	// ConflictedFiles lists unmerged paths (diff --diff-filter=U).
	ConflictedFiles(ctx context.Context) ([]string, error)
	// Rebase rebases the current branch onto base.
	Rebase(ctx context.Context, base string) error
	// RebaseAbort aborts an in-progress rebase.
	RebaseAbort(ctx context.Context) error
}

// Runner is the complete git surface the engine needs for one working
// directory. Consumers should prefer the focused interfaces.
type Runner interface {
	BranchOperations
	WorktreeOperations
	CommitOperations
	MergeOperations
	// Dir returns the working directory this runner operates in.
	Dir() string
}

// RunnerFactory builds a Runner bound to a working directory. The
// worktree manager uses it to run commands inside individual worktrees.
type RunnerFactory func(dir string) Runner
