package scheduler

import (
	"errors"
	"fmt"

	"github.com/borgmon/alarm-clock/pkg/store"
)

var (
	// ErrNotActive is returned by Arm for a record with IsActive unset.
	ErrNotActive = errors.New("alarm is not active")
	// ErrUnsaved is returned for a record the store has not assigned an id to.
	ErrUnsaved = errors.New("alarm has not been saved")
)

// SchedulingError reports a wake-timer registration or cancellation failure.
// The alarm stays active in storage but is unarmed until the next reconcile or boot pass.
type SchedulingError struct {
	ID  int64
	Op  string
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling %s alarm %d: %v", e.Op, e.ID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
