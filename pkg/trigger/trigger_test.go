package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/scheduler"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/timemath"
	"github.com/borgmon/alarm-clock/pkg/waketimer"
)

type playCall struct {
	URI     string
	Looping bool
	Volume  float64
}

type fakePlayer struct {
	mu      sync.Mutex
	plays   []playCall
	stops   int
	playing bool
	err     error
}

func (p *fakePlayer) Play(uri string, looping bool, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.plays = append(p.plays, playCall{uri, looping, volume})
	p.playing = true
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.playing = false
}

type fakeNotifier struct {
	mu       sync.Mutex
	shown    map[int64]Notification
	notified int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{shown: make(map[int64]Notification)}
}

func (n *fakeNotifier) Notify(note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown[note.ID] = note
	n.notified++
	return nil
}

func (n *fakeNotifier) Cancel(id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.shown, id)
	return nil
}

// gatedStore blocks the next Get after hold until the returned release runs.
type gatedStore struct {
	*store.MemoryStore

	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedStore) hold() (entered <-chan struct{}, release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	g.entered = make(chan struct{})
	gate := g.gate
	return g.entered, func() { close(gate) }
}

func (g *gatedStore) Get(ctx context.Context, id int64) (models.AlarmRecord, error) {
	g.mu.Lock()
	gate, entered := g.gate, g.entered
	g.gate, g.entered = nil, nil
	g.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}
	return g.MemoryStore.Get(ctx, id)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

var monday0800 = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store    *gatedStore
	clock    *waketimer.ManualClock
	timer    *waketimer.LocalTimer
	sched    *scheduler.Scheduler
	player   *fakePlayer
	notifier *fakeNotifier
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &gatedStore{MemoryStore: store.NewMemoryStore()},
		clock:    waketimer.NewManualClock(monday0800),
		player:   &fakePlayer{},
		notifier: newFakeNotifier(),
	}
	f.timer = waketimer.NewLocalTimer(f.clock, zerolog.Nop())
	f.sched = scheduler.New(f.store, f.timer, f.clock, zerolog.Nop())
	f.coord = New(f.store, f.sched, f.player, f.notifier, 0, zerolog.Nop())
	f.sched.SetFireHandler(func(ctx context.Context, id int64) {
		_ = f.coord.OnFire(ctx, id)
	})
	f.sched.SetStopHandler(f.coord.Silence)
	return f
}

// fire arms rec, delivers its fire and rings it.
func (f *fixture) fire(t *testing.T, rec models.AlarmRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.sched.Arm(ctx, rec))
	require.True(t, f.sched.Fire(rec.ID))
	require.NoError(t, f.coord.OnFire(ctx, rec.ID))
}

func (f *fixture) save(t *testing.T, rec models.AlarmRecord) models.AlarmRecord {
	t.Helper()
	id, err := f.store.Put(context.Background(), rec)
	require.NoError(t, err)
	rec.ID = id
	return rec
}

func TestOnFire_PlaysAndNotifies(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0))
	rec.Name = "Work"
	rec.Volume = 0.8
	rec = f.save(t, rec)

	f.fire(t, rec)

	require.Len(t, f.player.plays, 1)
	assert.Equal(t, playCall{URI: models.DefaultRingtone.URI, Looping: true, Volume: 0.8}, f.player.plays[0])

	note, ok := f.notifier.shown[rec.ID]
	require.True(t, ok)
	assert.Equal(t, "Work", note.Title)
	assert.True(t, note.FullScreen)
	assert.Equal(t, VibratePattern, note.Vibrate)
	assert.Equal(t, []Action{ActionTurnOff, ActionSnooze}, note.Actions)
	assert.Equal(t, []int64{rec.ID}, f.coord.Ringing())
}

func TestOnFire_IsIdempotentPerFire(t *testing.T) {
	f := newFixture(t)
	rec := f.save(t, models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0)))
	f.fire(t, rec)
	require.NoError(t, f.coord.OnFire(context.Background(), rec.ID))

	assert.Len(t, f.player.plays, 1, "second fire must not stack players")
	assert.Equal(t, 1, f.notifier.notified)
}

func TestOnFire_SilentAndDefaults(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0))
	rec.Ringtone = models.SilentRingtone
	rec.Vibrate = false
	rec = f.save(t, rec)

	f.fire(t, rec)

	assert.Empty(t, f.player.plays)
	note := f.notifier.shown[rec.ID]
	assert.Equal(t, models.DefaultTitle, note.Title)
	assert.Nil(t, note.Vibrate)
}

func TestOnFire_SkipsInactiveAndMissing(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0))
	rec.IsActive = false
	rec = f.save(t, rec)
	ctx := context.Background()

	require.NoError(t, f.coord.OnFire(ctx, rec.ID))
	assert.Empty(t, f.player.plays)
	assert.Empty(t, f.notifier.shown)

	assert.ErrorIs(t, f.coord.OnFire(ctx, 999), store.ErrNotFound)
}

func TestOnFire_PlaybackFailureStillNotifies(t *testing.T) {
	f := newFixture(t)
	f.player.err = errors.New("no audio device")
	rec := f.save(t, models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0)))

	f.fire(t, rec)
	assert.Contains(t, f.notifier.shown, rec.ID)
}

func TestOnFire_NewerAlarmTakesOverPlayer(t *testing.T) {
	f := newFixture(t)
	a := f.save(t, models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0)))
	b := f.save(t, models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0)))
	ctx := context.Background()

	f.fire(t, a)
	f.fire(t, b)
	assert.Len(t, f.player.plays, 2)
	assert.Equal(t, 1, f.player.stops)

	// Turning off the alarm that lost the player leaves the sound alone.
	require.NoError(t, f.coord.OnTurnOff(ctx, a.ID))
	assert.True(t, f.player.playing)
	assert.Equal(t, []int64{b.ID}, f.coord.Ringing())
}

func TestOnTurnOff_OneShotEndsUnarmed(t *testing.T) {
	f := newFixture(t)
	rec := f.save(t, models.NewAlarmRecord(timemath.MustTimeOfDay(8, 30)))
	ctx := context.Background()

	require.NoError(t, f.sched.Arm(ctx, rec))
	at, ok := f.sched.NextFire(rec.ID)
	require.True(t, ok)
	f.clock.Set(at)
	require.Equal(t, scheduler.Fired, f.sched.State(rec.ID))
	require.True(t, f.player.playing)

	require.NoError(t, f.coord.OnTurnOff(ctx, rec.ID))

	assert.Equal(t, scheduler.Unarmed, f.sched.State(rec.ID))
	assert.False(t, f.player.playing)
	assert.Empty(t, f.notifier.shown)
	assert.Empty(t, f.timer.Entries())

	stored, err := f.store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	f.clock.Advance(7 * 24 * time.Hour)
	assert.Len(t, f.player.plays, 1, "retired alarm never rings again")
}

func TestOnTurnOff_RecurringRearms(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(8, 30))
	rec.RepeatDays = timemath.NewWeekdaySet(timemath.Monday, timemath.Tuesday)
	rec = f.save(t, rec)
	ctx := context.Background()

	require.NoError(t, f.sched.Arm(ctx, rec))
	f.clock.Advance(30 * time.Minute)

	require.NoError(t, f.coord.OnTurnOff(ctx, rec.ID))
	assert.Equal(t, scheduler.Armed, f.sched.State(rec.ID))
	at, _ := f.sched.NextFire(rec.ID)
	assert.Equal(t, time.Date(2025, time.March, 11, 8, 30, 0, 0, time.UTC), at)
}

func TestOnSnooze_RingsAgainAfterWindow(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(8, 30))
	rec.RepeatDays = timemath.NewWeekdaySet(timemath.Friday)
	rec = f.save(t, rec)
	ctx := context.Background()

	f.fire(t, rec)
	require.NoError(t, f.coord.OnSnooze(ctx, rec.ID))

	assert.False(t, f.player.playing)
	assert.Empty(t, f.coord.Ringing())
	assert.Equal(t, scheduler.SnoozeArmed, f.sched.State(rec.ID))
	at, _ := f.sched.NextFire(rec.ID)
	assert.Equal(t, monday0800.Add(5*time.Minute), at)

	stored, _ := f.store.Get(ctx, rec.ID)
	assert.Equal(t, "08:05", stored.SnoozedTimeOfDay)

	f.clock.Advance(5 * time.Minute)
	assert.Len(t, f.player.plays, 2)
	assert.Equal(t, []int64{rec.ID}, f.coord.Ringing())

	require.NoError(t, f.coord.OnTurnOff(ctx, rec.ID))
	stored, _ = f.store.Get(ctx, rec.ID)
	assert.Empty(t, stored.SnoozedTimeOfDay)
	assert.Equal(t, scheduler.Armed, f.sched.State(rec.ID))
}

func TestOnFire_UnarmedAlarmDoesNotRing(t *testing.T) {
	f := newFixture(t)
	rec := f.save(t, models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0)))

	require.NoError(t, f.coord.OnFire(context.Background(), rec.ID))
	assert.Empty(t, f.player.plays)
	assert.Empty(t, f.coord.Ringing())
}

func TestOnFire_DisarmDuringLoadWins(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0))
	rec.RepeatDays = timemath.NewWeekdaySet(timemath.Tuesday)
	rec = f.save(t, rec)
	ctx := context.Background()

	require.NoError(t, f.sched.Arm(ctx, rec))
	require.True(t, f.sched.Fire(rec.ID))

	entered, release := f.store.hold()
	done := make(chan error, 1)
	go func() { done <- f.coord.OnFire(ctx, rec.ID) }()
	waitFor(t, entered)

	require.NoError(t, f.sched.Disarm(ctx, rec.ID))
	release()
	require.NoError(t, <-done)

	assert.Equal(t, scheduler.Unarmed, f.sched.State(rec.ID))
	assert.Empty(t, f.player.plays)
	assert.Empty(t, f.coord.Ringing())
	assert.Empty(t, f.notifier.shown)
}

func TestDisarm_SilencesRingingAlarm(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0))
	rec.RepeatDays = timemath.NewWeekdaySet(timemath.Tuesday)
	rec = f.save(t, rec)

	f.fire(t, rec)
	require.True(t, f.player.playing)

	require.NoError(t, f.sched.Disarm(context.Background(), rec.ID))
	assert.False(t, f.player.playing)
	assert.Empty(t, f.coord.Ringing())
	assert.Empty(t, f.notifier.shown)
}

func TestOnSnooze_SeesDisableWrittenMeanwhile(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0))
	rec.RepeatDays = timemath.NewWeekdaySet(timemath.Tuesday)
	rec = f.save(t, rec)
	ctx := context.Background()
	f.fire(t, rec)

	entered, release := f.store.hold()
	done := make(chan error, 1)
	go func() { done <- f.coord.OnSnooze(ctx, rec.ID) }()
	waitFor(t, entered)

	disabled := rec
	disabled.IsActive = false
	_, err := f.store.Put(ctx, disabled)
	require.NoError(t, err)

	release()
	require.NoError(t, <-done)

	stored, err := f.store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Empty(t, stored.SnoozedTimeOfDay)
	assert.Equal(t, scheduler.Unarmed, f.sched.State(rec.ID))
	assert.Empty(t, f.timer.Entries())
}

func TestOnTurnOff_SeesDisableWrittenMeanwhile(t *testing.T) {
	f := newFixture(t)
	rec := models.NewAlarmRecord(timemath.MustTimeOfDay(7, 0))
	rec.RepeatDays = timemath.NewWeekdaySet(timemath.Tuesday)
	rec = f.save(t, rec)
	ctx := context.Background()
	f.fire(t, rec)

	entered, release := f.store.hold()
	done := make(chan error, 1)
	go func() { done <- f.coord.OnTurnOff(ctx, rec.ID) }()
	waitFor(t, entered)

	disabled := rec
	disabled.IsActive = false
	_, err := f.store.Put(ctx, disabled)
	require.NoError(t, err)

	release()
	require.NoError(t, <-done)

	stored, err := f.store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, scheduler.Unarmed, f.sched.State(rec.ID))
}

func TestHandleAndParseAction(t *testing.T) {
	for in, want := range map[string]Action{"off": ActionTurnOff, "Dismiss": ActionTurnOff, " snooze ": ActionSnooze} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseAction("later")
	assert.Error(t, err)

	assert.Equal(t, "Snooze for 5 min", ActionSnooze.Label(5))
	assert.Equal(t, "Turn Off", ActionTurnOff.Label(5))

	f := newFixture(t)
	assert.Error(t, f.coord.Handle(context.Background(), 1, Action("later")))
}
