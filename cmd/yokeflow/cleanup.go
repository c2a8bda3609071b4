package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/exec"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/git"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/worktree"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

var cleanupForce bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reap stale sessions and remove leftover worktrees",
	Long: `Recover after a crash or interrupted run.

Reaps running sessions whose heartbeat went stale, reconciles worktree
records against the filesystem and the VCS, and removes worktrees whose
work already merged. Conflicted worktrees are kept unless --force is
given.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "also remove conflicted and abandoned worktrees")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	dir, err := workDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	project, err := requireProject(store, dir)
	if err != nil {
		return err
	}

	reaped, err := store.ReapStale(project.ID, time.Now(), logger)
	if err != nil {
		return err
	}
	if len(reaped) > 0 {
		color.Yellow("Reaped %d stale sessions", len(reaped))
	}

	gitRunner := git.NewRunnerWith(dir, exec.NewRunner(), git.Timeouts{
		Read: cfg.Git.Read, Write: cfg.Git.Write, Merge: cfg.Git.Merge,
	})
	manager := worktree.NewManager(dir, cfg.WorktreeDir, gitRunner, gitRunner.Factory(), store, logger)

	ctx := cmd.Context()
	if err := manager.RecoverState(ctx, project.ID); err != nil {
		return err
	}

	worktrees, err := store.ListWorktrees(project.ID, nil)
	if err != nil {
		return err
	}
	removed := 0
	for _, w := range worktrees {
		switch w.Status {
		case models.WorktreeMerged:
			// Merged work is safe to remove.
		case models.WorktreeConflict, models.WorktreeAbandoned:
			if !cleanupForce {
				color.Yellow("keeping %s worktree for epic %s (%s); use --force to remove",
					w.Status, w.EpicID, w.Path)
				continue
			}
		default:
			continue
		}
		if err := manager.Cleanup(ctx, project.ID, w.EpicID, cleanupForce); err != nil {
			color.Red("cleanup of epic %s failed: %v", w.EpicID, err)
			continue
		}
		removed++
	}
	fmt.Printf("Removed %d worktrees\n", removed)
	return nil
}
