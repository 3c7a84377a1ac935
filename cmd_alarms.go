package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/timemath"
)

// alarmFlags are the editable fields shared by add and edit.
type alarmFlags struct {
	name      string
	days      string
	ringtone  string
	volume    float64
	noVibrate bool
	disabled  bool
}

func (f *alarmFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Label shown when the alarm rings")
	cmd.Flags().StringVar(&f.days, "days", "", `Repeat days: "mon,wed,fri", "weekdays", "weekends", "daily" or "none"`)
	cmd.Flags().StringVar(&f.ringtone, "ringtone", "default", `"default", "silent" or a path to a WAV file`)
	cmd.Flags().Float64Var(&f.volume, "volume", 0.5, "Volume between 0 and 1")
	cmd.Flags().BoolVar(&f.noVibrate, "no-vibrate", false, "Do not vibrate")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "Save the alarm without arming it")
}

// apply copies the flags the user set onto rec.
func (f *alarmFlags) apply(cmd *cobra.Command, rec *models.AlarmRecord) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		rec.Name = f.name
	}
	if changed("days") {
		days, err := timemath.ParseWeekdaySet(f.days)
		if err != nil {
			return err
		}
		rec.RepeatDays = days
	}
	if changed("ringtone") {
		rt, err := parseRingtone(f.ringtone)
		if err != nil {
			return err
		}
		rec.Ringtone = rt
	}
	if changed("volume") {
		if f.volume < 0 || f.volume > 1 {
			return fmt.Errorf("volume must be between 0 and 1, got %v", f.volume)
		}
		rec.Volume = f.volume
	}
	if changed("no-vibrate") {
		rec.Vibrate = !f.noVibrate
	}
	if changed("disabled") {
		rec.IsActive = !f.disabled
	}
	return nil
}

// parseRingtone maps a --ringtone value to a ringtone. Files are stored by
// absolute path so the daemon can find them from any working directory.
func parseRingtone(s string) (models.Ringtone, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return models.DefaultRingtone, nil
	case "silent", "none":
		return models.SilentRingtone, nil
	}

	path, err := filepath.Abs(s)
	if err != nil {
		return models.Ringtone{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return models.Ringtone{}, fmt.Errorf("ringtone: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return models.Ringtone{Name: name, URI: path}, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid alarm id %q", arg)
	}
	return id, nil
}

func newAddCmd() *cobra.Command {
	var flags alarmFlags

	cmd := &cobra.Command{
		Use:   "add <time>",
		Short: "Create an alarm",
		Example: `  alarmd add 6:45 --days weekdays --name Work
  alarmd add "7:30 AM" --ringtone ~/sounds/birds.wav`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tod, err := timemath.ParseTimeOfDay(args[0])
			if err != nil {
				return err
			}
			rec := models.NewAlarmRecord(tod)
			if err := flags.apply(cmd, &rec); err != nil {
				return err
			}

			return withStore(cmd.Context(), func(cfg *models.Config, st *store.SQLiteStore) error {
				id, err := st.Put(cmd.Context(), rec)
				if err != nil {
					return err
				}
				rec.ID = id
				fmt.Printf("Alarm %d set for %s (%s)\n", id, tod.Format12(), describeNext(rec, time.Now()))
				notifyDaemon(cfg, id)
				return nil
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newEditCmd() *cobra.Command {
	var (
		flags  alarmFlags
		atTime string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), func(cfg *models.Config, st *store.SQLiteStore) error {
				rec, err := st.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("time") {
					tod, err := timemath.ParseTimeOfDay(atTime)
					if err != nil {
						return err
					}
					rec.TimeOfDay = tod
				}
				if err := flags.apply(cmd, &rec); err != nil {
					return err
				}
				// An edited alarm starts from its configured time again.
				rec.SnoozedTimeOfDay = ""

				if _, err := st.Put(cmd.Context(), rec); err != nil {
					return err
				}
				fmt.Printf("Alarm %d updated (%s)\n", id, describeNext(rec, time.Now()))
				notifyDaemon(cfg, id)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&atTime, "time", "", "New time of day")
	return cmd
}

// newToggleCmd creates enable or disable.
func newToggleCmd(name string, active bool) *cobra.Command {
	short := "Arm an alarm"
	if !active {
		short = "Disarm an alarm without deleting it"
	}

	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), func(cfg *models.Config, st *store.SQLiteStore) error {
				rec, err := st.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rec.IsActive == active {
					fmt.Printf("Alarm %d is already %sd\n", id, name)
					return nil
				}
				rec.IsActive = active
				rec.SnoozedTimeOfDay = ""
				if _, err := st.Put(cmd.Context(), rec); err != nil {
					return err
				}
				fmt.Printf("Alarm %d %sd\n", id, name)
				notifyDaemon(cfg, id)
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List alarms with the time left and a suggested bedtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(_ *models.Config, st *store.SQLiteStore) error {
				records, err := st.ListAll(cmd.Context())
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println(`No alarms. Create one with "alarmd add <time>".`)
					return nil
				}
				printAlarms(os.Stdout, records, time.Now())
				return nil
			})
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the alarm list again whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return withStore(ctx, func(_ *models.Config, st *store.SQLiteStore) error {
				return watchAlarms(ctx, st, os.Stdout)
			})
		},
	}
}

func watchAlarms(ctx context.Context, st store.AlarmStore, w io.Writer) error {
	updates, err := st.Observe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case records, ok := <-updates:
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "\n%s\n", time.Now().Format("15:04:05"))
			printAlarms(w, records, time.Now())
		}
	}
}

// printAlarms renders the alarm list table.
func printAlarms(w io.Writer, records []models.AlarmRecord, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tNAME\tDAYS\tACTIVE\tNEXT\tBEDTIME")
	for _, rec := range records {
		active := "no"
		if rec.IsActive {
			active = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.TimeOfDay.Format12(),
			rec.Title(),
			rec.RepeatDays,
			active,
			describeNext(rec, now),
			timemath.Bedtime(rec.TimeOfDay).Format12(),
		)
	}
	tw.Flush()
}

// describeNext is the "time left" column: when the alarm would ring if it
// were armed now.
func describeNext(rec models.AlarmRecord, now time.Time) string {
	if !rec.IsActive {
		return "off"
	}
	if rec.Snoozed() {
		return "snoozed until " + rec.SnoozedTimeOfDay
	}
	next := timemath.NextOccurrenceOnDays(now, rec.TimeOfDay, rec.RepeatDays)
	return "in " + timemath.FormatDuration(timemath.DurationUntil(now, next))
}
