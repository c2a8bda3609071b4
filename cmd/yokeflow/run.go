package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/agent"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/engine"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/exec"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/expertise"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/git"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/selector"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/worktree"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the persisted plan",
	Long: `Execute the project's saved execution plan batch by batch.

Stale sessions are reaped and worktree state reconciled before the run
starts. Interrupt with 'yokeflow stop' from another terminal; running
tasks finish and the remaining batches are cancelled.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
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

	gitRunner := git.NewRunnerWith(dir, exec.NewRunner(), git.Timeouts{
		Read: cfg.Git.Read, Write: cfg.Git.Write, Merge: cfg.Git.Merge,
	})
	manager := worktree.NewManager(dir, cfg.WorktreeDir, gitRunner, gitRunner.Factory(), store, logger)

	agentRunner, err := agent.NewAnthropicRunner("", logger)
	if err != nil {
		return err
	}

	rt := &engine.Runtime{
		Store:     store,
		Git:       gitRunner,
		Exec:      exec.NewRunner(),
		Agent:     agentRunner,
		Worktrees: manager,
		Selector:  selector.New(cfg, store, store, logger),
		Expertise: expertise.NewStore(project.ID, store, logger),
		Config:    cfg,
		Logger:    logger,
		Sink:      engine.LogSink{Logger: logger},
	}

	ctx := cmd.Context()
	if reaped, err := store.ReapStale(project.ID, time.Now(), logger); err != nil {
		return err
	} else if len(reaped) > 0 {
		color.Yellow("Reaped %d stale sessions", len(reaped))
	}
	if err := manager.RecoverState(ctx, project.ID); err != nil {
		return err
	}

	result, err := rt.ExecutePlan(ctx, project.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Batches: %d/%d completed in %s\n",
		result.BatchesCompleted, result.BatchesTotal, result.TotalDuration.Round(time.Second))
	fmt.Printf("Cost: %d.%02d\n", result.TotalCostCents/100, result.TotalCostCents%100)
	switch {
	case result.Success:
		color.Green("Run completed successfully")
	case result.StoppedEarly:
		color.Yellow("Run stopped early")
	default:
		color.Red("Run halted on failure")
		for _, br := range result.Batches {
			if br.Status != "failed" {
				continue
			}
			if br.Merge != nil && br.Merge.Status == engine.MergeConflicted {
				for epicID, files := range br.Merge.Conflicts {
					color.Red("  batch %d: merge conflict in epic %s (%v)", br.BatchID, epicID, files)
				}
			}
			if br.Merge != nil && br.Merge.Status == engine.MergeTestFailed {
				color.Red("  batch %d: tests failed after merge; trunk rolled back", br.BatchID)
				fmt.Println(br.Merge.TestOutput)
			}
		}
		return fmt.Errorf("run failed")
	}
	return nil
}
