package commands

import (
	"github.com/astro-dev-lab/tablekit/cli/internal/config"
)

// resolveSchemaPath picks the schema path from, in order: positional
// argument, --schema flag, configuration.
func resolveSchemaPath(flagValue string, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.SchemaPath, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}
