/*
Package config loads server configuration.

PURPOSE:
  One Config struct for the whole binary, resolved from (highest wins):
  1. Environment variables with the TASKLEDGER_ prefix
  2. An optional YAML config file
  3. Built-in defaults

EXAMPLES:
  TASKLEDGER_PORT=3000 ./server
  ./server --config ./taskledger.yaml

SEE ALSO:
  - cmd/server/main.go: Where this is consumed
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Port   int    `mapstructure:"port"`
	DBPath string `mapstructure:"db_path"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	SweepEnabled  bool          `mapstructure:"sweep_enabled"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// DailyCapMinutes overrides the per-owner daily reporting cap.
	// Zero keeps the engine default (24 hours).
	DailyCapMinutes int `mapstructure:"daily_cap_minutes"`

	CacheSize int `mapstructure:"cache_size"`

	LogLevel string `mapstructure:"log_level"`
}

// Load resolves the configuration. Path may be empty; a missing explicit
// file is an error, a missing default file is not.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "taskledger.db")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("sweep_enabled", true)
	v.SetDefault("sweep_interval", time.Hour)
	v.SetDefault("daily_cap_minutes", 0)
	v.SetDefault("cache_size", 4096)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("TASKLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taskledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return &cfg, nil
}
