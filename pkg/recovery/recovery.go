// Package recovery re-arms every active alarm after a restart.
package recovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/borgmon/alarm-clock/pkg/store"
)

// Arming is the part of the scheduler recovery needs.
type Arming interface {
	ArmID(ctx context.Context, id int64) error
}

// Failure is one record that could not be re-armed.
type Failure struct {
	ID  int64
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("alarm %d: %v", f.ID, f.Err)
}

// Report lists the outcome of a recovery pass.
type Report struct {
	Armed    []int64
	Failures []Failure
}

// OK reports whether every active alarm was re-armed.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// Recovery runs the bulk re-arm.
type Recovery struct {
	store store.AlarmStore
	arm   Arming
	log   zerolog.Logger
}

// New creates a Recovery.
func New(st store.AlarmStore, arm Arming, log zerolog.Logger) *Recovery {
	return &Recovery{
		store: st,
		arm:   arm,
		log:   log.With().Str("component", "recovery").Logger(),
	}
}

// RecoverAll arms every active alarm. Running it twice leaves the same
// registrations. A record that fails to load or register is recorded in the
// report and the rest are still processed; only a failure to list the
// records is returned as an error.
func (r *Recovery) RecoverAll(ctx context.Context) (Report, error) {
	var report Report

	records, err := r.store.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("list alarms: %w", err)
	}

	for _, rec := range records {
		if !rec.IsActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.arm.ArmID(ctx, rec.ID); err != nil {
			r.log.Warn().Err(err).Int64("alarm_id", rec.ID).Msg("[RECOVERY] failed to re-arm alarm")
			report.Failures = append(report.Failures, Failure{ID: rec.ID, Err: err})
			continue
		}
		report.Armed = append(report.Armed, rec.ID)
	}

	r.log.Info().
		Int("armed", len(report.Armed)).
		Int("failed", len(report.Failures)).
		Msg("[RECOVERY] boot recovery complete")
	return report, nil
}
