package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/borgmon/alarm-clock/pkg/control"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/store"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	jsonOutput bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alarmd",
		Short: "Alarm clock daemon",
		Long: `alarmd keeps alarms armed and rings them. Alarms are stored in a local
SQLite database; the daemon picks up edits made by the other commands.

Daemon:
  alarmd run                    Run in the foreground
  alarmd status [--json]        Show alarms with their scheduling state
  alarmd off <id>               Turn off a ringing alarm
  alarmd snooze <id>            Snooze a ringing alarm

Alarms:
  alarmd add <time> [flags]     Create an alarm, e.g. "alarmd add 6:45 --days weekdays"
  alarmd edit <id> [flags]      Change an alarm
  alarmd enable|disable <id>    Toggle an alarm
  alarmd list | watch           Show alarms with time left and bedtime

Configuration is read from ALARMD_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newAddCmd(),
		newEditCmd(),
		newToggleCmd("enable", true),
		newToggleCmd("disable", false),
		newListCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newActionCmd(control.CmdOff, "Turn off a ringing alarm"),
		newActionCmd(control.CmdSnooze, "Snooze a ringing alarm"),
		newExportCmd(),
		newImportCmd(),
		newAutostartCmd(),
	)
	return rootCmd
}

func loadConfig() (*models.Config, error) {
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return cfg, nil
}

// cliLogger logs warnings and errors only; the daemon owns the log file.
func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

// withStore opens the alarm database for a one-off command.
func withStore(ctx context.Context, fn func(*models.Config, *store.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// notifyDaemon asks a running daemon to reconcile ids right away. Without a
// daemon the change is picked up on its next start.
func notifyDaemon(cfg *models.Config, ids ...int64) {
	if _, err := control.Send(cfg.SocketPath, control.Command{Cmd: control.CmdSync, IDs: ids}); err != nil {
		fmt.Fprintln(os.Stderr, "note: daemon not reachable, changes apply when it starts")
	}
}
