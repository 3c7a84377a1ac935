package models

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds daemon configuration, read from ALARMD_* environment variables.
type Config struct {
	DBPath        string        `envconfig:"DB_PATH"`                       // defaults under the user config dir
	SocketPath    string        `envconfig:"SOCKET_PATH"`                   // control socket
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`      // debug|info|warn|error
	LogFile       string        `envconfig:"LOG_FILE"`                      // rotating file; empty logs to stderr only
	SnoozeMinutes int           `envconfig:"SNOOZE_MINUTES" default:"5"`    // snooze window
	SyncInterval  time.Duration `envconfig:"SYNC_INTERVAL" default:"1m"`    // store reconcile period
	CheckInterval time.Duration `envconfig:"CHECK_INTERVAL" default:"15s"`  // wake timer due-check period
	AutoStart     bool          `envconfig:"AUTO_START" default:"false"`    // register the daemon to start at login
}

// DataDir is where the database and socket live unless overridden.
func DataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "alarm-clock")
}

// ApplyDefaults fills in paths that depend on the user's environment.
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(DataDir(), "alarms.db")
	}
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(DataDir(), "alarmd.sock")
	}
}

// SnoozeDuration returns the snooze window as a duration.
func (c *Config) SnoozeDuration() time.Duration {
	return time.Duration(c.SnoozeMinutes) * time.Minute
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.SnoozeMinutes < 1 || c.SnoozeMinutes > 60 {
		return fmt.Errorf("snooze minutes must be between 1 and 60, got %d", c.SnoozeMinutes)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.SyncInterval)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", c.CheckInterval)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	return nil
}
