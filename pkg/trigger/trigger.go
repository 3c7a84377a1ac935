// Package trigger reacts to fired alarms and to the user's answer to them.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/scheduler"
	"github.com/borgmon/alarm-clock/pkg/store"
)

// DefaultSnoozeMinutes is the product default snooze window.
const DefaultSnoozeMinutes = 5

// VibratePattern is five one-second pulses.
var VibratePattern = []time.Duration{time.Second, time.Second, time.Second, time.Second, time.Second}

// Player plays one sound at a time.
type Player interface {
	Play(uri string, looping bool, volume float64) error
	Stop()
}

// Notifier surfaces and withdraws the alarm notification.
type Notifier interface {
	Notify(n Notification) error
	Cancel(id int64) error
}

// Scheduler is the part of the scheduler the coordinator drives. The *ID
// methods read the record under the alarm's lock.
type Scheduler interface {
	SnoozeID(ctx context.Context, id int64, minutes int) (models.AlarmRecord, error)
	CancelSnoozeID(ctx context.Context, id int64) (models.AlarmRecord, error)
	WhileFired(id int64, fn func()) bool
}

// Notification is a high-priority, full-screen alarm notification.
type Notification struct {
	ID         int64
	Title      string
	Body       string
	Actions    []Action
	Vibrate    []time.Duration
	FullScreen bool
}

// Action is the user's answer to a ringing alarm.
type Action string

const (
	ActionTurnOff Action = "off"
	ActionSnooze  Action = "snooze"
)

// ParseAction accepts the action names used on the control socket and CLI.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "turn-off", "turnoff", "dismiss":
		return ActionTurnOff, nil
	case "snooze":
		return ActionSnooze, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Label is the button text shown for the action.
func (a Action) Label(snoozeMinutes int) string {
	switch a {
	case ActionTurnOff:
		return "Turn Off"
	case ActionSnooze:
		return fmt.Sprintf("Snooze for %d min", snoozeMinutes)
	}
	return string(a)
}

// Coordinator starts and stops the ringing for a fire and hands the user's
// answer back to the scheduler. It owns the player: at most one alarm sound
// plays at a time and a newer fire takes it over.
type Coordinator struct {
	store         store.AlarmStore
	sched         Scheduler
	player        Player
	notifier      Notifier
	snoozeMinutes int
	log           zerolog.Logger

	mu      sync.Mutex
	ringing map[int64]time.Time
	playing int64
}

// New creates a Coordinator. snoozeMinutes <= 0 selects DefaultSnoozeMinutes.
func New(st store.AlarmStore, sched Scheduler, player Player, notifier Notifier, snoozeMinutes int, log zerolog.Logger) *Coordinator {
	if snoozeMinutes <= 0 {
		snoozeMinutes = DefaultSnoozeMinutes
	}
	return &Coordinator{
		store:         st,
		sched:         sched,
		player:        player,
		notifier:      notifier,
		snoozeMinutes: snoozeMinutes,
		log:           log.With().Str("component", "trigger").Logger(),
		ringing:       make(map[int64]time.Time),
	}
}

// Ringing returns the ids currently ringing, in ascending order.
func (c *Coordinator) Ringing() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int64, 0, len(c.ringing))
	for id := range c.ringing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OnFire starts playback and the notification for id. A second call for an
// alarm that is already ringing does nothing. Records deactivated since
// they were armed, and alarms the scheduler no longer holds as fired, are
// ignored.
func (c *Coordinator) OnFire(ctx context.Context, id int64) error {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		c.log.Error().Err(err).Int64("alarm_id", id).Msg("[TRIGGER] failed to load fired alarm")
		return err
	}
	if !rec.IsActive {
		c.log.Info().Int64("alarm_id", id).Msg("[TRIGGER] alarm no longer active, not ringing")
		return nil
	}

	var ringErr error
	if !c.sched.WhileFired(id, func() { ringErr = c.ring(id, rec) }) {
		c.log.Info().Int64("alarm_id", id).Msg("[TRIGGER] alarm disarmed before ringing")
		return nil
	}
	return ringErr
}

// ring runs with the alarm's scheduler lock held.
func (c *Coordinator) ring(id int64, rec models.AlarmRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ringing[id]; ok {
		c.log.Debug().Int64("alarm_id", id).Msg("[TRIGGER] already ringing")
		return nil
	}
	c.ringing[id] = time.Now()

	if rec.Ringtone.IsSilent() {
		c.log.Info().Int64("alarm_id", id).Msg("[TRIGGER] silent ringtone, skipping playback")
	} else {
		if c.playing != 0 {
			c.player.Stop()
			c.playing = 0
		}
		if err := c.player.Play(rec.Ringtone.URI, true, rec.Volume); err != nil {
			// The notification still goes out; a missing sound must not swallow the alarm.
			c.log.Warn().Err(err).Int64("alarm_id", id).Str("uri", rec.Ringtone.URI).Msg("[TRIGGER] playback failed")
		} else {
			c.playing = id
		}
	}

	n := Notification{
		ID:         id,
		Title:      rec.Title(),
		Body:       rec.TimeOfDay.Format12(),
		Actions:    []Action{ActionTurnOff, ActionSnooze},
		FullScreen: true,
	}
	if rec.Vibrate {
		n.Vibrate = VibratePattern
	}
	if err := c.notifier.Notify(n); err != nil {
		c.log.Warn().Err(err).Int64("alarm_id", id).Msg("[TRIGGER] notification failed")
		return fmt.Errorf("notify alarm %d: %w", id, err)
	}

	c.log.Info().
		Int64("alarm_id", id).
		Str("title", n.Title).
		Str("ringtone", rec.Ringtone.Name).
		Float64("volume", rec.Volume).
		Msg("[TRIGGER] ringing")
	return nil
}

// OnTurnOff silences id, clears any pending snooze and applies the repeat
// policy: recurring alarms re-arm for their next occurrence, one-shot alarms
// are retired.
func (c *Coordinator) OnTurnOff(ctx context.Context, id int64) error {
	c.Silence(id)

	rec, err := c.sched.CancelSnoozeID(ctx, id)
	if err != nil {
		return err
	}

	c.log.Info().Int64("alarm_id", id).Bool("one_shot", rec.OneShot()).Msg("[TRIGGER] turned off")
	return nil
}

// OnSnooze silences id and asks the scheduler to ring again after the
// snooze window. An alarm deactivated while it rang is disarmed instead.
func (c *Coordinator) OnSnooze(ctx context.Context, id int64) error {
	c.Silence(id)

	if _, err := c.sched.SnoozeID(ctx, id, c.snoozeMinutes); err != nil {
		if errors.Is(err, scheduler.ErrNotActive) {
			c.log.Info().Int64("alarm_id", id).Msg("[TRIGGER] alarm no longer active, not snoozing")
			return nil
		}
		return err
	}
	return nil
}

// Handle dispatches a user action.
func (c *Coordinator) Handle(ctx context.Context, id int64, action Action) error {
	switch action {
	case ActionTurnOff:
		return c.OnTurnOff(ctx, id)
	case ActionSnooze:
		return c.OnSnooze(ctx, id)
	}
	return fmt.Errorf("unknown action %q", action)
}

// Close stops any playback and withdraws every outstanding notification.
func (c *Coordinator) Close() {
	for _, id := range c.Ringing() {
		c.Silence(id)
	}
}

// Silence stops the sound and withdraws the notification for id.
func (c *Coordinator) Silence(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.ringing, id)
	if c.playing == id {
		c.player.Stop()
		c.playing = 0
	}
	if err := c.notifier.Cancel(id); err != nil {
		c.log.Warn().Err(err).Int64("alarm_id", id).Msg("[TRIGGER] failed to cancel notification")
	}
}
