package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plan progress, sessions, and costs",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	project, err := requireProject(store, dir)
	if err != nil {
		return err
	}

	tasks, err := store.ListTasks(project.ID)
	if err != nil {
		return err
	}
	done := 0
	for _, t := range tasks {
		if t.Done {
			done++
		}
	}
	mode, err := store.ExecutionMode(project.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Project %s: %d/%d tasks done (%s mode)\n", project.Name, done, len(tasks), mode)

	batches, err := store.ListBatches(project.ID)
	if err != nil {
		return err
	}
	for _, b := range batches {
		line := fmt.Sprintf("  batch %d: %s (%d tasks)", b.BatchID, b.Status, len(b.TaskIDs))
		switch b.Status {
		case models.BatchCompleted:
			color.Green(line)
		case models.BatchFailed:
			color.Red(line)
		case models.BatchRunning:
			color.Cyan(line)
		default:
			fmt.Println(line)
		}
	}

	running := models.SessionRunning
	sessions, err := store.ListSessions(project.ID, &running)
	if err != nil {
		return err
	}
	if len(sessions) > 0 {
		fmt.Println("Running sessions:")
		for _, s := range sessions {
			age := "never"
			if s.LastHeartbeat != nil {
				age = time.Since(*s.LastHeartbeat).Round(time.Second).String()
			}
			fmt.Printf("  #%d %s (%s, %s) last heartbeat %s ago\n",
				s.Seq, s.ID, s.Type, s.Model, age)
		}
	}

	total, err := store.TotalCostCents(project.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Total cost: %d.%02d\n", total/100, total%100)
	if byModel, err := store.CostByModel(project.ID); err == nil {
		for _, mc := range byModel {
			fmt.Printf("  %s: %d.%02d (%d calls, %d in / %d out tokens)\n",
				mc.Model, mc.CostCents/100, mc.CostCents%100, mc.Entries, mc.InputTokens, mc.OutputTokens)
		}
	}
	if cfg.Budget.LimitCents > 0 {
		remaining := cfg.Budget.LimitCents - total
		pct := float64(total) / float64(cfg.Budget.LimitCents) * 100
		line := fmt.Sprintf("Budget: %d.%02d of %d.%02d used (%.0f%%)",
			total/100, total%100, cfg.Budget.LimitCents/100, cfg.Budget.LimitCents%100, pct)
		switch {
		case pct >= 95:
			color.Red(line)
		case pct >= 80:
			color.Yellow(line)
		default:
			fmt.Println(line)
		}
		if remaining < 0 {
			color.Red("Budget exceeded by %d.%02d", -remaining/100, (-remaining)%100)
		}
	}
	return nil
}
