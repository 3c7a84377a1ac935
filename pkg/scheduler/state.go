package scheduler

import (
	"sync"
	"time"
)

// State is where an alarm id sits in the scheduling lifecycle.
//
//	Unarmed     -> Armed        Arm
//	Armed       -> Fired        wake timer callback
//	Fired       -> Armed        RearmAfterFire, recurring
//	Fired       -> Unarmed      RearmAfterFire, one-shot
//	Armed       -> Unarmed      Disarm
//	Fired       -> Unarmed      Disarm, stop handler silences the alarm
//	Fired       -> SnoozeArmed  Snooze
//	SnoozeArmed -> Fired        wake timer callback
//	SnoozeArmed -> Armed        CancelSnooze, recurring
//	SnoozeArmed -> Unarmed      CancelSnooze one-shot, Disarm
type State int

const (
	Unarmed State = iota
	Armed
	Fired
	SnoozeArmed
)

func (s State) String() string {
	switch s {
	case Unarmed:
		return "unarmed"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case SnoozeArmed:
		return "snooze-armed"
	default:
		return "unknown"
	}
}

// registration mirrors what the wake timer holds for an id. The token ties a
// timer callback to the registration that created it.
type registration struct {
	token  string
	at     time.Time
	snooze bool
}

// slot serializes every operation on one alarm id. A dropped slot has been
// removed from the scheduler and must not be used.
type slot struct {
	mu      sync.Mutex
	state   State
	reg     *registration
	dropped bool
}
