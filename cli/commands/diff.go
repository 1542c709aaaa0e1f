package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/astro-dev-lab/tablekit/cli/internal/schemafile"
	"github.com/astro-dev-lab/tablekit/cli/internal/ui"
	"github.com/astro-dev-lab/tablekit/migrate/diff"
	"github.com/astro-dev-lab/tablekit/runtime/types"
)

var diffCmd = &cobra.Command{
	Use:   "diff <previous-schema> <current-schema>",
	Short: "Render the migration script between two schema files",
	Long: `Compare two YAML schema files and render the SQL script migrating
the first to the second. The script is printed to stdout; an empty
output means the schemas are identical.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	previous, err := schemafile.Load(args[0])
	if err != nil {
		return fmt.Errorf("previous schema: %w", err)
	}
	current, err := schemafile.Load(args[1])
	if err != nil {
		return fmt.Errorf("current schema: %w", err)
	}

	script := diff.NewDiffer(types.NewRegistry()).Diff(previous, current)
	if script == "" {
		ui.PrintInfo("No changes.")
		return nil
	}
	fmt.Print(script)
	return nil
}
