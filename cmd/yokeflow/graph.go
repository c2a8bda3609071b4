package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/resolver"
)

var (
	graphMermaid bool
	graphEpic    string
	graphBatch   int
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the task dependency graph",
	Long: `Render the pending-task dependency graph as ASCII batches or a
Mermaid flowchart. Hard dependencies are solid edges, soft dependencies
dashed; detected cycles are listed.`,
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().BoolVar(&graphMermaid, "mermaid", false, "emit a Mermaid flowchart")
	graphCmd.Flags().StringVar(&graphEpic, "epic", "", "restrict to one epic id")
	graphCmd.Flags().IntVar(&graphBatch, "batch", -1, "restrict to one batch index")
}

func runGraph(cmd *cobra.Command, args []string) error {
	dir, err := workDir()
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
	tasks, err := store.ListPendingTasks(project.ID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No pending tasks.")
		return nil
	}

	g := resolver.Resolve(tasks)
	opts := resolver.RenderOptions{Epic: graphEpic, Batch: graphBatch}
	if graphMermaid {
		fmt.Print(g.Mermaid(opts))
	} else {
		fmt.Print(g.ASCII(opts))
	}
	if path := g.CriticalPath(); len(path) > 1 {
		fmt.Printf("\ncritical path (%d tasks): %v\n", len(path), path)
	}
	return nil
}
