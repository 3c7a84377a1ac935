// Package scheduler owns the mapping from alarm id to wake-timer registration.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/timemath"
	"github.com/borgmon/alarm-clock/pkg/waketimer"
)

// maxSnooze bounds how far ahead a stored snooze may lie when it is restored.
// It matches the longest snooze window the daemon accepts.
const maxSnooze = time.Hour

// FireHandler is called after the scheduler accepts a wake-timer callback.
type FireHandler func(ctx context.Context, id int64)

// StopHandler is called with the id's lock held when an alarm is disarmed
// while it is Fired, so whatever is ringing for it can be silenced.
type StopHandler func(id int64)

// Scheduler converts alarm records into wake-timer registrations. Operations
// on different ids run concurrently; operations on the same id are serialized.
type Scheduler struct {
	store store.AlarmStore
	timer waketimer.WakeTimer
	clock waketimer.Clock
	log   zerolog.Logger

	mu      sync.Mutex
	slots   map[int64]*slot
	handler FireHandler
	stop    StopHandler
}

// New creates a Scheduler.
func New(st store.AlarmStore, timer waketimer.WakeTimer, clock waketimer.Clock, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store: st,
		timer: timer,
		clock: clock,
		log:   log.With().Str("component", "scheduler").Logger(),
		slots: make(map[int64]*slot),
	}
}

// SetFireHandler installs the callback run for accepted fires.
func (s *Scheduler) SetFireHandler(h FireHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetStopHandler installs the callback run when a fired alarm is disarmed.
func (s *Scheduler) SetStopHandler(h StopHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = h
}

func (s *Scheduler) fireHandler() FireHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func (s *Scheduler) stopHandler() StopHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

// lock returns the slot for id with its mutex held, creating it if needed.
func (s *Scheduler) lock(id int64) *slot {
	for {
		s.mu.Lock()
		sl, ok := s.slots[id]
		if !ok {
			sl = &slot{}
			s.slots[id] = sl
		}
		s.mu.Unlock()

		sl.mu.Lock()
		if !sl.dropped {
			return sl
		}
		sl.mu.Unlock()
	}
}

// lockExisting is lock for read paths: it returns nil instead of creating a
// slot for an id the scheduler does not track.
func (s *Scheduler) lockExisting(id int64) *slot {
	for {
		s.mu.Lock()
		sl, ok := s.slots[id]
		s.mu.Unlock()
		if !ok {
			return nil
		}

		sl.mu.Lock()
		if !sl.dropped {
			return sl
		}
		sl.mu.Unlock()
	}
}

// dropLocked forgets an unarmed slot.
func (s *Scheduler) dropLocked(sl *slot, id int64) {
	s.mu.Lock()
	if s.slots[id] == sl {
		delete(s.slots, id)
	}
	s.mu.Unlock()
	sl.dropped = true
}

// State returns the lifecycle state for id.
func (s *Scheduler) State(id int64) State {
	sl := s.lockExisting(id)
	if sl == nil {
		return Unarmed
	}
	defer sl.mu.Unlock()
	return sl.state
}

// NextFire returns the armed instant for id, if any.
func (s *Scheduler) NextFire(id int64) (time.Time, bool) {
	sl := s.lockExisting(id)
	if sl == nil {
		return time.Time{}, false
	}
	defer sl.mu.Unlock()
	if sl.reg == nil {
		return time.Time{}, false
	}
	return sl.reg.at, true
}

// Arm registers the next regular occurrence of rec, replacing any existing
// registration for its id. Calling it twice at the same clock value yields the
// same instant.
func (s *Scheduler) Arm(ctx context.Context, rec models.AlarmRecord) error {
	if !rec.Saved() {
		return ErrUnsaved
	}
	if !rec.IsActive {
		return ErrNotActive
	}

	sl := s.lock(rec.ID)
	defer sl.mu.Unlock()
	return s.armLocked(sl, rec)
}

// ArmID reads the record and arms it in one step, so no other operation on the
// id can slip in between the read and the registration. Inactive records are
// disarmed. A snooze still pending in the record is registered again; one
// whose instant has passed is cleared.
func (s *Scheduler) ArmID(ctx context.Context, id int64) error {
	sl := s.lock(id)
	defer sl.mu.Unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return s.missingLocked(sl, id, err)
	}
	if !rec.IsActive {
		return s.disarmLocked(sl, id)
	}
	return s.restoreLocked(ctx, sl, rec)
}

// Disarm removes the registration for id. Once it returns, a late callback
// for the old registration is ignored and a fired alarm has been silenced.
func (s *Scheduler) Disarm(ctx context.Context, id int64) error {
	sl := s.lock(id)
	defer sl.mu.Unlock()
	return s.disarmLocked(sl, id)
}

// RearmAfterFire re-registers a recurring alarm for its next occurrence after
// now. A one-shot alarm is not re-armed: it is disarmed and retired
// (IsActive=false) so neither reconcile nor boot recovery brings it back.
func (s *Scheduler) RearmAfterFire(ctx context.Context, rec models.AlarmRecord) error {
	if !rec.Saved() {
		return ErrUnsaved
	}

	sl := s.lock(rec.ID)
	defer sl.mu.Unlock()

	_, err := s.afterFireLocked(ctx, sl, rec, false)
	return err
}

// Snooze records now+minutes as the snoozed time, persists the record and
// registers a one-shot fire at exactly that instant, ignoring repeat days.
func (s *Scheduler) Snooze(ctx context.Context, rec models.AlarmRecord, minutes int) (models.AlarmRecord, error) {
	if !rec.Saved() {
		return rec, ErrUnsaved
	}

	sl := s.lock(rec.ID)
	defer sl.mu.Unlock()
	return s.snoozeLocked(ctx, sl, rec, minutes)
}

// SnoozeID is Snooze on the stored record, read under the id's lock. An alarm
// deactivated in the meantime is disarmed instead and ErrNotActive returned.
func (s *Scheduler) SnoozeID(ctx context.Context, id int64, minutes int) (models.AlarmRecord, error) {
	sl := s.lock(id)
	defer sl.mu.Unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return rec, s.missingLocked(sl, id, err)
	}
	if !rec.IsActive {
		if err := s.disarmLocked(sl, id); err != nil {
			return rec, err
		}
		return rec, ErrNotActive
	}
	return s.snoozeLocked(ctx, sl, rec, minutes)
}

// CancelSnooze clears the snoozed time, persists it and falls through to the
// regular after-fire logic: recurring alarms re-arm, one-shot alarms retire.
func (s *Scheduler) CancelSnooze(ctx context.Context, rec models.AlarmRecord) (models.AlarmRecord, error) {
	if !rec.Saved() {
		return rec, ErrUnsaved
	}

	sl := s.lock(rec.ID)
	defer sl.mu.Unlock()

	dirty := rec.Snoozed()
	rec.SnoozedTimeOfDay = ""
	return s.afterFireLocked(ctx, sl, rec, dirty)
}

// CancelSnoozeID is CancelSnooze on the stored record, read under the id's lock.
func (s *Scheduler) CancelSnoozeID(ctx context.Context, id int64) (models.AlarmRecord, error) {
	sl := s.lock(id)
	defer sl.mu.Unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return rec, s.missingLocked(sl, id, err)
	}
	dirty := rec.Snoozed()
	rec.SnoozedTimeOfDay = ""
	return s.afterFireLocked(ctx, sl, rec, dirty)
}

// Reconcile converges the registration for id with the stored record: active
// records that are unarmed get armed, inactive or missing ones get disarmed,
// and an armed record whose next occurrence moved is re-armed. A pending
// snooze or an unanswered fire is left alone.
func (s *Scheduler) Reconcile(ctx context.Context, id int64) error {
	sl := s.lock(id)
	defer sl.mu.Unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return s.missingLocked(sl, id, err)
	}

	if !rec.IsActive {
		if sl.state != Unarmed {
			return s.disarmLocked(sl, id)
		}
		return nil
	}

	switch sl.state {
	case Unarmed:
		return s.restoreLocked(ctx, sl, rec)
	case Armed:
		now := s.clock.Now()
		expected := timemath.NextOccurrenceOnDays(now, rec.TimeOfDay, rec.RepeatDays)
		// A registration already due is about to fire; moving it would skip that fire.
		if sl.reg != nil && sl.reg.at.After(now) && !sl.reg.at.Equal(expected) {
			s.log.Info().
				Int64("alarm_id", id).
				Time("was", sl.reg.at).
				Time("now", expected).
				Msg("[SCHEDULER] configuration changed, re-arming")
			return s.armLocked(sl, rec)
		}
	}
	return nil
}

// Fire accepts a fire event delivered by the platform rather than through a
// registration callback. It reports false, and changes nothing, unless id is
// armed.
func (s *Scheduler) Fire(id int64) bool {
	sl := s.lockExisting(id)
	if sl == nil {
		s.log.Debug().Int64("alarm_id", id).Msg("[SCHEDULER] ignoring fire for untracked alarm")
		return false
	}
	defer sl.mu.Unlock()

	if sl.state != Armed && sl.state != SnoozeArmed {
		s.log.Debug().Int64("alarm_id", id).Str("state", sl.state.String()).Msg("[SCHEDULER] ignoring fire")
		return false
	}
	if err := s.timer.Unregister(id); err != nil {
		s.log.Warn().Err(err).Int64("alarm_id", id).Msg("[SCHEDULER] failed to drop consumed registration")
	}
	s.markFiredLocked(sl, id)
	return true
}

// WhileFired runs fn with id's lock held if id is Fired and reports whether
// it ran. No operation can move id out of Fired while fn runs.
func (s *Scheduler) WhileFired(id int64, fn func()) bool {
	sl := s.lockExisting(id)
	if sl == nil {
		return false
	}
	defer sl.mu.Unlock()

	if sl.state != Fired {
		return false
	}
	fn()
	return true
}

// deliver is the wake-timer callback. Callbacks from a replaced or
// cancelled registration carry an old token and are dropped silently.
func (s *Scheduler) deliver(id int64, token string) {
	sl := s.lockExisting(id)
	if sl == nil {
		s.log.Debug().Int64("alarm_id", id).Msg("[SCHEDULER] stale fire ignored")
		return
	}
	if sl.reg == nil || sl.reg.token != token {
		sl.mu.Unlock()
		s.log.Debug().Int64("alarm_id", id).Msg("[SCHEDULER] stale fire ignored")
		return
	}
	s.markFiredLocked(sl, id)
	sl.mu.Unlock()

	if h := s.fireHandler(); h != nil {
		h(context.Background(), id)
	}
}

func (s *Scheduler) markFiredLocked(sl *slot, id int64) {
	snooze := sl.reg != nil && sl.reg.snooze
	sl.reg = nil
	sl.state = Fired
	s.log.Info().Int64("alarm_id", id).Bool("snooze", snooze).Msg("[SCHEDULER] fired")
}

func (s *Scheduler) armLocked(sl *slot, rec models.AlarmRecord) error {
	next := timemath.NextOccurrenceOnDays(s.clock.Now(), rec.TimeOfDay, rec.RepeatDays)
	return s.registerLocked(sl, rec.ID, next, false)
}

// restoreLocked arms rec from nothing, as after a restart. A stored snooze
// that still lies ahead is registered again; otherwise the field is cleared
// and the regular occurrence armed.
func (s *Scheduler) restoreLocked(ctx context.Context, sl *slot, rec models.AlarmRecord) error {
	if rec.Snoozed() {
		now := s.clock.Now()
		if tod, err := timemath.ParseTimeOfDay(rec.SnoozedTimeOfDay); err == nil {
			at := timemath.NextOccurrence(now, tod)
			if at.Sub(now) <= maxSnooze {
				return s.registerLocked(sl, rec.ID, at, true)
			}
		}

		s.log.Info().
			Int64("alarm_id", rec.ID).
			Str("snoozed_until", rec.SnoozedTimeOfDay).
			Msg("[SCHEDULER] dropping expired snooze")
		rec.SnoozedTimeOfDay = ""
		if _, err := s.store.Put(ctx, rec); err != nil {
			return err
		}
	}
	return s.armLocked(sl, rec)
}

func (s *Scheduler) snoozeLocked(ctx context.Context, sl *slot, rec models.AlarmRecord, minutes int) (models.AlarmRecord, error) {
	at := s.clock.Now().Add(time.Duration(minutes) * time.Minute)
	rec.SnoozedTimeOfDay = timemath.OfInstant(at).String()
	if _, err := s.store.Put(ctx, rec); err != nil {
		return rec, err
	}
	if err := s.registerLocked(sl, rec.ID, at, true); err != nil {
		return rec, err
	}

	s.log.Info().
		Int64("alarm_id", rec.ID).
		Int("minutes", minutes).
		Time("until", at).
		Msg("[SCHEDULER] snoozed")
	return rec, nil
}

// afterFireLocked applies the repeat policy once a fire has been handled.
// dirty means rec differs from storage and must be written.
func (s *Scheduler) afterFireLocked(ctx context.Context, sl *slot, rec models.AlarmRecord, dirty bool) (models.AlarmRecord, error) {
	if rec.IsActive && rec.OneShot() {
		rec.IsActive = false
		dirty = true
	}
	if dirty {
		if _, err := s.store.Put(ctx, rec); err != nil {
			return rec, err
		}
	}

	if !rec.IsActive {
		return rec, s.disarmLocked(sl, rec.ID)
	}
	return rec, s.armLocked(sl, rec)
}

// missingLocked handles a failed store read. A record that no longer exists
// is disarmed and its slot forgotten; other errors pass through.
func (s *Scheduler) missingLocked(sl *slot, id int64, err error) error {
	if !isNotFound(err) {
		return err
	}
	if sl.state != Unarmed {
		if derr := s.disarmLocked(sl, id); derr != nil {
			return derr
		}
	}
	s.dropLocked(sl, id)
	return err
}

func (s *Scheduler) registerLocked(sl *slot, id int64, at time.Time, snooze bool) error {
	token := uuid.NewString()
	err := s.timer.Register(id, at, func(id int64) {
		s.deliver(id, token)
	})
	if err != nil {
		// Whatever the timer still holds carries an old token and will be ignored.
		sl.reg = nil
		sl.state = Unarmed
		s.log.Warn().Err(err).Int64("alarm_id", id).Time("at", at).Msg("[SCHEDULER] registration failed")
		return &SchedulingError{ID: id, Op: "register", Err: err}
	}

	sl.reg = &registration{token: token, at: at, snooze: snooze}
	if snooze {
		sl.state = SnoozeArmed
	} else {
		sl.state = Armed
	}

	s.log.Info().
		Int64("alarm_id", id).
		Time("at", at).
		Bool("snooze", snooze).
		Str("in", timemath.FormatDuration(timemath.DurationUntil(s.clock.Now(), at))).
		Msg("[SCHEDULER] armed")
	return nil
}

func (s *Scheduler) disarmLocked(sl *slot, id int64) error {
	wasArmed := sl.reg != nil
	wasFired := sl.state == Fired
	sl.reg = nil
	sl.state = Unarmed

	if wasFired {
		if h := s.stopHandler(); h != nil {
			h(id)
		}
	}
	if err := s.timer.Unregister(id); err != nil {
		return &SchedulingError{ID: id, Op: "unregister", Err: err}
	}
	if wasArmed || wasFired {
		s.log.Info().Int64("alarm_id", id).Msg("[SCHEDULER] disarmed")
	}
	return nil
}
