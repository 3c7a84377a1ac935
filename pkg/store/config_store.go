package store

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"github.com/borgmon/alarm-clock/pkg/models"
)

// ConfigPrefix namespaces the daemon's environment variables (ALARMD_DB_PATH, ...).
const ConfigPrefix = "ALARMD"

// LoadConfig reads configuration from the environment, fills path defaults and validates.
func LoadConfig() (*models.Config, error) {
	var cfg models.Config
	if err := envconfig.Process(ConfigPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
