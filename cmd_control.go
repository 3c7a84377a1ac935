package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/borgmon/alarm-clock/pkg/control"
	"github.com/borgmon/alarm-clock/pkg/engine"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show alarms with their scheduling state",
		Long: `Show every alarm as the running daemon sees it: its scheduling state
(unarmed, armed, fired, snooze-armed), the next registered fire time and
whether it is ringing right now.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			resp, err := control.Send(cfg.SocketPath, control.Command{Cmd: control.CmdStatus})
			if err != nil {
				return fmt.Errorf("daemon not running: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp.Alarms)
			}
			printStatus(os.Stdout, resp.Alarms)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func printStatus(w io.Writer, alarms []engine.AlarmStatus) {
	if len(alarms) == 0 {
		fmt.Fprintln(w, "No alarms.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tNAME\tSTATE\tNEXT FIRE\tRINGING")
	for _, a := range alarms {
		next := "-"
		if a.NextFire != nil {
			next = fmt.Sprintf("%s (%s)", a.NextFire.Local().Format("Mon Jan 2 15:04"), humanize.Time(*a.NextFire))
		}
		ringing := ""
		if a.Ringing {
			ringing = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.Alarm.ID, a.Alarm.TimeOfDay.Format12(), a.Alarm.Title(), a.State, next, ringing)
	}
	tw.Flush()
}

// newActionCmd creates a command that forwards a notification action for one
// alarm to the daemon.
func newActionCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if _, err := control.Send(cfg.SocketPath, control.Command{Cmd: name, ID: id}); err != nil {
				return err
			}
			switch name {
			case control.CmdSnooze:
				fmt.Printf("Alarm %d snoozed for %d min\n", id, cfg.SnoozeMinutes)
			default:
				fmt.Printf("Alarm %d turned off\n", id)
			}
			return nil
		},
	}
}
