// Package commands implements the CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/astro-dev-lab/tablekit/internal/debug"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:     "tablekit",
	Short:   "Schema and statement toolkit for SQLite",
	Long:    "tablekit builds table schemas from declarative YAML, renders DDL, diffs schema versions into migration scripts, and applies them to a database.",
	Version: "0.1.0",

	SilenceUsage: true,

	PersistentPreRun: func(*cobra.Command, []string) {
		debug.Init(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute is the main entry point for the CLI.
func Execute() error {
	return rootCmd.Execute()
}
