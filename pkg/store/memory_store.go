package store

import (
	"context"
	"sort"
	"sync"

	"github.com/borgmon/alarm-clock/pkg/models"
)

// MemoryStore keeps records in a map. Tests use it in place of SQLiteStore.
type MemoryStore struct {
	mu sync.RWMutex

	// Map of alarm ID to record
	alarms map[int64]models.AlarmRecord
	nextID int64

	// Observers receive a snapshot after every Put
	observers map[chan []models.AlarmRecord]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alarms:    make(map[int64]models.AlarmRecord),
		nextID:    1,
		observers: make(map[chan []models.AlarmRecord]struct{}),
	}
}

// Get returns the record for id.
func (ms *MemoryStore) Get(_ context.Context, id int64) (models.AlarmRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	rec, ok := ms.alarms[id]
	if !ok {
		return models.AlarmRecord{}, notFound(id)
	}
	return rec, nil
}

// Put inserts or replaces a record.
func (ms *MemoryStore) Put(_ context.Context, rec models.AlarmRecord) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec = rec.Normalize()
	if !rec.Saved() {
		rec.ID = ms.nextID
		ms.nextID++
	} else if _, ok := ms.alarms[rec.ID]; !ok {
		return 0, &StorageError{Op: "update", ID: rec.ID, Err: ErrNotFound}
	}
	ms.alarms[rec.ID] = rec

	snapshot := ms.snapshotLocked()
	for ch := range ms.observers {
		// Drop the stale snapshot if the observer has not read it yet.
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
	return rec.ID, nil
}

// ListAll returns all records sorted by id.
func (ms *MemoryStore) ListAll(_ context.Context) ([]models.AlarmRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.snapshotLocked(), nil
}

// Observe streams snapshots until ctx is done.
func (ms *MemoryStore) Observe(ctx context.Context) (<-chan []models.AlarmRecord, error) {
	ch := make(chan []models.AlarmRecord, 1)

	ms.mu.Lock()
	ch <- ms.snapshotLocked()
	ms.observers[ch] = struct{}{}
	ms.mu.Unlock()

	go func() {
		<-ctx.Done()
		ms.mu.Lock()
		delete(ms.observers, ch)
		close(ch)
		ms.mu.Unlock()
	}()
	return ch, nil
}

func (ms *MemoryStore) snapshotLocked() []models.AlarmRecord {
	result := make([]models.AlarmRecord, 0, len(ms.alarms))
	for _, rec := range ms.alarms {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
