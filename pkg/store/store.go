// Package store persists alarm records.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/borgmon/alarm-clock/pkg/models"
)

// ErrNotFound is returned by Get for an id the store does not hold.
var ErrNotFound = errors.New("alarm not found")

// StorageError wraps a failed read or write.
type StorageError struct {
	Op  string
	ID  int64
	Err error
}

func (e *StorageError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("storage %s alarm %d: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AlarmStore is durable keyed storage for alarm configuration.
type AlarmStore interface {
	// Get returns the record for id, or an error wrapping ErrNotFound.
	Get(ctx context.Context, id int64) (models.AlarmRecord, error)
	// Put creates the record when it is unsaved and updates it otherwise. It returns the id.
	Put(ctx context.Context, rec models.AlarmRecord) (int64, error)
	// ListAll returns every record ordered by id.
	ListAll(ctx context.Context) ([]models.AlarmRecord, error)
	// Observe streams list snapshots: the current one first, then one per change,
	// until ctx is done.
	Observe(ctx context.Context) (<-chan []models.AlarmRecord, error)
}

func notFound(id int64) error {
	return fmt.Errorf("alarm %d: %w", id, ErrNotFound)
}
