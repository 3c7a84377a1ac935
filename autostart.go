package main

import (
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
	"github.com/rs/zerolog"
)

func autostartApp() (*autostart.App, error) {
	// Get the executable path
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}

	// Resolve symlinks if any
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	return &autostart.App{
		Name:        "alarmd",
		DisplayName: "Alarm Clock",
		Exec:        []string{execPath, "run"},
	}, nil
}

// setupAutostart registers or removes the daemon as a login item, so that
// boot recovery runs after every restart.
func setupAutostart(enable bool, log zerolog.Logger) error {
	app, err := autostartApp()
	if err != nil {
		return err
	}

	if enable {
		if !app.IsEnabled() {
			if err := app.Enable(); err != nil {
				log.Error().Err(err).Msg("Failed to enable autostart")
				return err
			}
			log.Info().Msg("Autostart enabled")
		}
	} else {
		if app.IsEnabled() {
			if err := app.Disable(); err != nil {
				log.Error().Err(err).Msg("Failed to disable autostart")
				return err
			}
			log.Info().Msg("Autostart disabled")
		}
	}

	return nil
}
