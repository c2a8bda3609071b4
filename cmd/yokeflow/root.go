// Command yokeflow drives the parallel execution engine: build a plan
// from a project's pending tasks, run it batch by batch across isolated
// worktrees, and inspect progress, costs, and the dependency graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/config"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/state"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

var (
	flagDir     string
	flagProject string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "yokeflow",
	Short: "Parallel execution engine for agent-driven development",
	Long: `Yokeflow plans and executes agent task batches against a repository.

It resolves task dependencies into batches, predicts file conflicts,
assigns epics to isolated git worktrees, dispatches agents under a
concurrency bound, and validates merges with the project's test suite
before they land on trunk.`,
	SilenceUsage: true,
}

// Execute runs the root command. Interrupt and termination signals
// cancel the command context so in-flight work unwinds as interrupted
// sessions instead of dying mid-write.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "d", "", "project working directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "project name (default: directory name)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

func workDir() (string, error) {
	if flagDir != "" {
		return filepath.Abs(flagDir)
	}
	return os.Getwd()
}

func newLogger() (*zap.Logger, error) {
	if flagVerbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// openStore opens and migrates the project-local database.
func openStore(dir string) (*state.Store, error) {
	store, err := state.OpenProject(dir)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func projectName(dir string) string {
	if flagProject != "" {
		return flagProject
	}
	return filepath.Base(dir)
}

// loadProject returns the named project, or nil when it doesn't exist.
func loadProject(store *state.Store, dir string) (*models.Project, error) {
	return store.GetProjectByName(projectName(dir))
}

// ensureProject returns the named project, creating it on first use.
func ensureProject(store *state.Store, dir string) (*models.Project, error) {
	p, err := loadProject(store, dir)
	if err != nil || p != nil {
		return p, err
	}
	p = &models.Project{
		ID:         uuid.NewString(),
		Name:       projectName(dir),
		WorkingDir: dir,
		CreatedAt:  time.Now(),
		Metadata:   map[string]any{},
	}
	if err := store.CreateProject(p); err != nil {
		return nil, err
	}
	return p, nil
}

func requireProject(store *state.Store, dir string) (*models.Project, error) {
	p, err := loadProject(store, dir)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %q not found; run 'yokeflow plan' first", projectName(dir))
	}
	return p, nil
}

func loadConfig(dir string) (*config.Config, error) {
	return config.Load(dir)
}
