package waketimer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("wake timer closed")

// WakeTimer arms at most one callback per alarm id.
type WakeTimer interface {
	// Register arms fire to run with id at or after at, replacing any earlier
	// registration for id.
	Register(id int64, at time.Time, fire func(id int64)) error
	// Unregister drops the registration for id. Unknown ids are not an error.
	Unregister(id int64) error
}

// Entry describes one armed registration.
type Entry struct {
	ID int64
	At time.Time
}

type localEntry struct {
	at      time.Time
	fire    func(id int64)
	stopper Stopper
}

// LocalTimer is an in-process WakeTimer. Each registration gets its own
// AfterFunc; Run adds a periodic wall-clock check so entries still fire
// promptly after the machine sleeps, when monotonic timers fall behind.
type LocalTimer struct {
	clock Clock
	log   zerolog.Logger

	mu      sync.Mutex
	entries map[int64]*localEntry
	closed  bool
}

// NewLocalTimer creates a LocalTimer driven by clock.
func NewLocalTimer(clock Clock, log zerolog.Logger) *LocalTimer {
	return &LocalTimer{
		clock:   clock,
		log:     log.With().Str("component", "waketimer").Logger(),
		entries: make(map[int64]*localEntry),
	}
}

// Register implements WakeTimer.
func (t *LocalTimer) Register(id int64, at time.Time, fire func(id int64)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if old, ok := t.entries[id]; ok {
		old.stopper.Stop()
	}

	delay := at.Sub(t.clock.Now())
	if delay < 0 {
		delay = 0
	}
	e := &localEntry{at: at, fire: fire}
	e.stopper = t.clock.AfterFunc(delay, t.FireDue)
	t.entries[id] = e

	t.log.Debug().Int64("alarm_id", id).Time("at", at).Msg("[TIMER] registered")
	return nil
}

// Unregister implements WakeTimer.
func (t *LocalTimer) Unregister(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[id]; ok {
		e.stopper.Stop()
		delete(t.entries, id)
		t.log.Debug().Int64("alarm_id", id).Msg("[TIMER] unregistered")
	}
	return nil
}

// FireDue runs every registration whose instant has passed on the wall clock.
// An entry is removed before its callback runs, so it fires at most once.
func (t *LocalTimer) FireDue() {
	now := t.clock.Now()

	type dueEntry struct {
		id int64
		e  *localEntry
	}
	var due []dueEntry

	t.mu.Lock()
	for id, e := range t.entries {
		if !e.at.After(now) {
			e.stopper.Stop()
			delete(t.entries, id)
			due = append(due, dueEntry{id: id, e: e})
		}
	}
	t.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].e.at.Before(due[j].e.at) })
	for _, d := range due {
		t.log.Info().Int64("alarm_id", d.id).Time("at", d.e.at).Msg("[TIMER] firing")
		d.e.fire(d.id)
	}
}

// Run checks for due entries every interval until ctx is done.
func (t *LocalTimer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.FireDue()
		}
	}
}

// Entries lists current registrations ordered by instant.
func (t *LocalTimer) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Entry, 0, len(t.entries))
	for id, e := range t.entries {
		result = append(result, Entry{ID: id, At: e.at})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].At.Before(result[j].At) })
	return result
}

// Close stops every pending callback; later registrations fail with ErrClosed.
func (t *LocalTimer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.entries {
		e.stopper.Stop()
		delete(t.entries, id)
	}
	t.closed = true
}
