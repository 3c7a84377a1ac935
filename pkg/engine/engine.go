// Package engine is the event surface platform code drives: boot, timer
// fires and user actions. It also keeps registrations in step with edits made
// to the store by other processes.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/recovery"
	"github.com/borgmon/alarm-clock/pkg/scheduler"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/trigger"
)

// SchedulerEvents are the inbound events the engine reacts to.
type SchedulerEvents interface {
	OnBoot(ctx context.Context) (recovery.Report, error)
	OnTimerFired(ctx context.Context, id int64) error
	OnUserAction(ctx context.Context, id int64, action trigger.Action) error
}

// AlarmStatus is one alarm as the daemon currently sees it.
type AlarmStatus struct {
	Alarm    models.AlarmRecord `json:"alarm"`
	State    string             `json:"state"`
	NextFire *time.Time         `json:"next_fire,omitempty"`
	Ringing  bool               `json:"ringing"`
}

// Engine wires the scheduler, the trigger coordinator and boot recovery.
type Engine struct {
	store    store.AlarmStore
	sched    *scheduler.Scheduler
	coord    *trigger.Coordinator
	recovery *recovery.Recovery
	log      zerolog.Logger

	syncInterval time.Duration
}

var _ SchedulerEvents = (*Engine)(nil)

// New creates an Engine. Accepted fires ring through the coordinator, and
// disarming a fired alarm silences it.
func New(st store.AlarmStore, sched *scheduler.Scheduler, coord *trigger.Coordinator, syncInterval time.Duration, log zerolog.Logger) *Engine {
	e := &Engine{
		store:        st,
		sched:        sched,
		coord:        coord,
		recovery:     recovery.New(st, sched, log),
		log:          log.With().Str("component", "engine").Logger(),
		syncInterval: syncInterval,
	}
	sched.SetFireHandler(e.ring)
	sched.SetStopHandler(coord.Silence)
	return e
}

func (e *Engine) ring(ctx context.Context, id int64) {
	if err := e.coord.OnFire(ctx, id); err != nil {
		e.log.Error().Err(err).Int64("alarm_id", id).Msg("[ENGINE] failed to ring alarm")
	}
}

// OnBoot re-arms every active alarm.
func (e *Engine) OnBoot(ctx context.Context) (recovery.Report, error) {
	return e.recovery.RecoverAll(ctx)
}

// OnTimerFired handles a fire event delivered by the platform. Fires for an id
// that is not armed, including one disarmed a moment ago, are ignored.
func (e *Engine) OnTimerFired(ctx context.Context, id int64) error {
	if !e.sched.Fire(id) {
		return nil
	}
	return e.coord.OnFire(ctx, id)
}

// OnUserAction applies the user's answer to a ringing alarm.
func (e *Engine) OnUserAction(ctx context.Context, id int64, action trigger.Action) error {
	e.log.Info().Int64("alarm_id", id).Str("action", string(action)).Msg("[ENGINE] user action")
	return e.coord.Handle(ctx, id, action)
}

// Sync reconciles the given ids, or every stored alarm when none are given.
// Failures are logged and skipped; the next pass retries them.
func (e *Engine) Sync(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		records, err := e.store.ListAll(ctx)
		if err != nil {
			return err
		}
		e.reconcile(ctx, records)
		return nil
	}
	for _, id := range ids {
		if err := e.sched.Reconcile(ctx, id); err != nil {
			e.log.Warn().Err(err).Int64("alarm_id", id).Msg("[ENGINE] reconcile failed")
		}
	}
	return nil
}

// Status reports every stored alarm with its scheduling state.
func (e *Engine) Status(ctx context.Context) ([]AlarmStatus, error) {
	records, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	ringing := make(map[int64]bool)
	for _, id := range e.coord.Ringing() {
		ringing[id] = true
	}

	res := make([]AlarmStatus, 0, len(records))
	for _, rec := range records {
		st := AlarmStatus{
			Alarm:   rec,
			State:   e.sched.State(rec.ID).String(),
			Ringing: ringing[rec.ID],
		}
		if at, ok := e.sched.NextFire(rec.ID); ok {
			st.NextFire = &at
		}
		res = append(res, st)
	}
	return res, nil
}

// Run follows store changes and periodically re-checks every alarm until ctx
// is done. Call OnBoot first.
func (e *Engine) Run(ctx context.Context) error {
	snapshots, err := e.store.Observe(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.coord.Close()
			return nil
		case records, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			e.reconcile(ctx, records)
		case <-ticker.C:
			if err := e.Sync(ctx); err != nil {
				e.log.Warn().Err(err).Msg("[ENGINE] periodic sync failed")
			}
		}
	}
}

func (e *Engine) reconcile(ctx context.Context, records []models.AlarmRecord) {
	for _, rec := range records {
		if err := e.sched.Reconcile(ctx, rec.ID); err != nil {
			e.log.Warn().Err(err).Int64("alarm_id", rec.ID).Msg("[ENGINE] reconcile failed")
		}
	}
	e.log.Debug().Int("alarms", len(records)).Msg("[ENGINE] synced")
}
