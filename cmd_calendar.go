package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/borgmon/alarm-clock/pkg/calendar"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/store"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write alarms as an iCalendar file (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(_ *models.Config, st *store.SQLiteStore) error {
				records, err := st.ListAll(cmd.Context())
				if err != nil {
					return err
				}

				var out io.Writer = os.Stdout
				if len(args) == 1 {
					f, err := os.Create(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}

				if err := calendar.Export(out, records, time.Now()); err != nil {
					return err
				}
				if len(args) == 1 {
					fmt.Fprintf(os.Stderr, "Exported %d alarms to %s\n", len(records), args[0])
				}
				return nil
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|url>",
		Short: "Create alarms from the timed events of an iCalendar file or URL",
		Long: `Create one alarm per timed event. Daily and weekly rules become repeat
days; all-day events and rules the alarm model cannot express are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := calendar.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			records, err := calendar.Import(src, cliLogger())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No importable events found.")
				return nil
			}

			return withStore(cmd.Context(), func(cfg *models.Config, st *store.SQLiteStore) error {
				ids := make([]int64, 0, len(records))
				for _, rec := range records {
					id, err := st.Put(cmd.Context(), rec)
					if err != nil {
						return err
					}
					ids = append(ids, id)
					fmt.Printf("Alarm %d: %s %s (%s)\n", id, rec.TimeOfDay.Format12(), rec.Title(), rec.RepeatDays)
				}
				notifyDaemon(cfg, ids...)
				return nil
			})
		},
	}
}
