package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/astro-dev-lab/tablekit/cli/internal/schemafile"
	"github.com/astro-dev-lab/tablekit/cli/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate [schema-path]",
	Short: "Validate a schema file",
	Long: `Validate a YAML schema file.

This command will:
- Parse the schema file
- Build every table descriptor
- Resolve foreign keys across tables
- Display validation results`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var validateSchemaPath string

func init() {
	validateCmd.Flags().StringVarP(&validateSchemaPath, "schema", "s", "", "Path to schema file")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	schemaPath, err := resolveSchemaPath(validateSchemaPath, args)
	if err != nil {
		return err
	}

	ui.PrintHeader("tablekit", "Validate Schema")

	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", schemaPath)
	}

	tables, err := schemafile.Load(schemaPath)
	if err != nil {
		ui.PrintError("Schema validation failed: %v", err)
		return err
	}

	columns := 0
	indexes := 0
	for _, ts := range tables {
		columns += len(ts.Columns)
		indexes += len(ts.Indexes)
	}

	ui.PrintSuccess("Schema %s is valid", schemaPath)
	ui.PrintInfo("  %d tables, %d columns, %d indexes", len(tables), columns, indexes)
	return nil
}
