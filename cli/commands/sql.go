package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/astro-dev-lab/tablekit/cli/internal/schemafile"
	"github.com/astro-dev-lab/tablekit/runtime/types"
	"github.com/astro-dev-lab/tablekit/schema"
)

var sqlCmd = &cobra.Command{
	Use:   "sql [schema-path]",
	Short: "Render the CREATE statements for a schema file",
	Long:  "Render the CREATE TABLE, CREATE INDEX, and trigger statements for every table in a YAML schema file.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSQL,
}

var sqlSchemaPath string

func init() {
	sqlCmd.Flags().StringVarP(&sqlSchemaPath, "schema", "s", "", "Path to schema file")

	rootCmd.AddCommand(sqlCmd)
}

func runSQL(cmd *cobra.Command, args []string) error {
	schemaPath, err := resolveSchemaPath(sqlSchemaPath, args)
	if err != nil {
		return err
	}

	tables, err := schemafile.Load(schemaPath)
	if err != nil {
		return err
	}

	reg := types.NewRegistry()
	for _, ts := range tables {
		for _, stmt := range schema.ToSQL(ts, reg) {
			fmt.Println(stmt)
		}
	}
	return nil
}
