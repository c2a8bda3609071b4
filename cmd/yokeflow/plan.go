package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/planner"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build and persist an execution plan from pending tasks",
	Long: `Resolve the project's pending tasks into dependency-ordered batches,
predict file conflicts, assign epics to worktrees, and persist the plan.

The execution mode (sequential or parallel) is derived from the plan:
parallel only when some batch can actually run two or more tasks at once.`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	dir, err := workDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	store, err := openStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	project, err := ensureProject(store, dir)
	if err != nil {
		return err
	}
	tasks, err := store.ListPendingTasks(project.ID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No pending tasks; nothing to plan.")
		return nil
	}
	epics, err := store.ListEpics(project.ID)
	if err != nil {
		return err
	}

	plan, err := planner.BuildPlan(project.ID, tasks, epics, cfg.MaxWorktrees)
	if err != nil {
		return err
	}
	for _, warning := range planner.ValidatePlan(plan) {
		color.Yellow("warning: %s", warning)
	}

	// Predicted-files annotations feed later selector and conflict runs.
	for _, t := range tasks {
		if err := store.UpdateTaskMetadata(t.ID, t.Metadata); err != nil {
			return err
		}
	}

	if err := store.SaveExecutionPlan(project.ID, plan); err != nil {
		return err
	}
	mode := models.SelectMode(plan)
	if err := store.SetExecutionMode(project.ID, mode); err != nil {
		return err
	}

	color.Green("Plan saved: %d tasks in %d batches (%s mode)",
		plan.TaskCount(), len(plan.Batches), mode)
	for _, b := range plan.Batches {
		marker := "sequential"
		if b.CanParallel && len(b.TaskIDs) >= 2 {
			marker = "parallel"
		}
		fmt.Printf("  batch %d: %d tasks (%s)\n", b.BatchID, len(b.TaskIDs), marker)
	}
	if n := len(plan.PredictedConflicts); n > 0 {
		color.Yellow("%d predicted conflicts downgraded parallelism", n)
	}
	return nil
}
