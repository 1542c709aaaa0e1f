// Package config loads CLI configuration from config files, environment
// variables, and .env files.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the CLI configuration.
type Config struct {
	SchemaPath   string
	DatabasePath string
	CacheSize    int
	CacheTTLSecs int
}

// Load reads configuration from .tablekit.yaml (working directory, home, or
// ~/.config/tablekit), TABLEKIT_* environment variables, and .env files.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName(".tablekit")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "tablekit"))

	viper.SetEnvPrefix("TABLEKIT")
	viper.AutomaticEnv()

	viper.SetDefault("schema_path", "schema.yaml")
	viper.SetDefault("database_path", "data.db")
	viper.SetDefault("cache_size", 512)
	viper.SetDefault("cache_ttl_secs", 60)

	// Missing config file is fine; defaults and environment cover it.
	_ = viper.ReadInConfig()

	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := os.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	return &Config{
		SchemaPath:   viper.GetString("schema_path"),
		DatabasePath: viper.GetString("database_path"),
		CacheSize:    viper.GetInt("cache_size"),
		CacheTTLSecs: viper.GetInt("cache_ttl_secs"),
	}, nil
}

// Save writes the configuration to ~/.config/tablekit/.tablekit.yaml.
func Save(cfg *Config) error {
	viper.Set("schema_path", cfg.SchemaPath)
	viper.Set("database_path", cfg.DatabasePath)
	viper.Set("cache_size", cfg.CacheSize)
	viper.Set("cache_ttl_secs", cfg.CacheTTLSecs)

	home, err := homedir.Dir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(home, ".config", "tablekit")
	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(configPath, ".tablekit.yaml"))
}
