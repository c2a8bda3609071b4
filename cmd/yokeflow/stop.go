package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Request a graceful stop of the running plan",
	Long: `Persist a stop request for the project. The running engine checks it
between batches: running tasks finish, their sessions close, and the
remaining batches are cancelled. Idempotent.`,
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
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
	if err := store.RequestStop(project.ID); err != nil {
		return err
	}
	color.Yellow("Stop requested; the engine halts after the current batch.")
	return nil
}
