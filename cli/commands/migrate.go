package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/astro-dev-lab/tablekit/cli/internal/schemafile"
	"github.com/astro-dev-lab/tablekit/cli/internal/ui"
	"github.com/astro-dev-lab/tablekit/driver/sqlite"
	"github.com/astro-dev-lab/tablekit/runtime/client"
	"github.com/astro-dev-lab/tablekit/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [schema-path]",
	Short: "Apply a schema to a database",
	Long: `Apply a YAML schema to a SQLite database.

With --from, the migration script is computed against that previous
schema version; without it the schema is created from scratch.
Use --dry-run to print the script instead of executing it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

var (
	migrateSchemaPath string
	migrateFromPath   string
	migrateDatabase   string
	migrateDryRun     bool
)

func init() {
	migrateCmd.Flags().StringVarP(&migrateSchemaPath, "schema", "s", "", "Path to schema file")
	migrateCmd.Flags().StringVar(&migrateFromPath, "from", "", "Path to the previous schema version")
	migrateCmd.Flags().StringVarP(&migrateDatabase, "database", "d", "", "Path to the SQLite database")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Print the migration script without executing it")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	schemaPath, err := resolveSchemaPath(migrateSchemaPath, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database := migrateDatabase
	if database == "" {
		database = cfg.DatabasePath
	}

	current, err := schemafile.Load(schemaPath)
	if err != nil {
		return err
	}
	var previous []*schema.TableSchema
	if migrateFromPath != "" {
		previous, err = schemafile.Load(migrateFromPath)
		if err != nil {
			return fmt.Errorf("previous schema: %w", err)
		}
	}

	drv, err := sqlite.Open(database)
	if err != nil {
		return err
	}
	defer drv.Close()

	c, err := client.New(drv, current,
		client.WithCache(cfg.CacheSize, time.Duration(cfg.CacheTTLSecs)*time.Second))
	if err != nil {
		return err
	}
	c.Use(client.LoggingMiddleware())

	script := c.MigrationScript(previous)
	if script == "" {
		ui.PrintInfo("No changes.")
		return nil
	}
	if migrateDryRun {
		fmt.Print(script)
		return nil
	}

	if err := c.Migrate(cmd.Context(), previous); err != nil {
		ui.PrintError("Migration failed: %v", err)
		return err
	}
	ui.PrintSuccess("Migration applied to %s", database)
	return nil
}
