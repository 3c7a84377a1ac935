package main

import (
	"github.com/spf13/cobra"
)

// newRunCmd creates the run subcommand for foreground execution
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			ac, err := newAlarmClock(ctx, cfg)
			if err != nil {
				return err
			}
			defer ac.quit()

			return ac.run(ctx)
		},
	}
}
