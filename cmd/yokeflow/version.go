package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("yokeflow version %s\n", version.Get())
	},
}
