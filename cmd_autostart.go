package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAutostartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage starting the daemon at login",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "on",
			Short: "Start the daemon at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return setupAutostart(true, cliLogger())
			},
		},
		&cobra.Command{
			Use:   "off",
			Short: "Stop starting the daemon at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return setupAutostart(false, cliLogger())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the daemon starts at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := autostartApp()
				if err != nil {
					return err
				}
				if app.IsEnabled() {
					fmt.Println("Autostart: enabled")
				} else {
					fmt.Println("Autostart: disabled")
				}
				return nil
			},
		},
	)
	return cmd
}
