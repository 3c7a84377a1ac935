package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/timemath"
)

// DefaultPollInterval is how often Observe re-reads the table.
const DefaultPollInterval = time.Second

// SQLiteStore implements AlarmStore on an embedded SQLite database.
type SQLiteStore struct {
	db           *sql.DB
	pollInterval time.Duration
}

// OpenSQLite opens (or creates) the database at path, applies PRAGMAs and
// migrations, and returns the store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite is a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteStore{db: db, pollInterval: DefaultPollInterval}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// SetPollInterval changes how often Observe checks for changes.
func (s *SQLiteStore) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectAlarm = `
	SELECT id, time_of_day, snoozed_time_of_day, name, is_active, repeat_days,
	       ringtone_name, ringtone_uri, volume, vibrate
	FROM alarms`

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (models.AlarmRecord, error) {
	row := s.db.QueryRowContext(ctx, selectAlarm+` WHERE id = ?`, id)
	rec, err := scanAlarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AlarmRecord{}, notFound(id)
	}
	if err != nil {
		return models.AlarmRecord{}, &StorageError{Op: "get", ID: id, Err: err}
	}
	return rec, nil
}

// Put inserts an unsaved record or updates an existing one.
func (s *SQLiteStore) Put(ctx context.Context, rec models.AlarmRecord) (int64, error) {
	rec = rec.Normalize()
	now := time.Now().UTC().Unix()

	if !rec.Saved() {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO alarms (
				time_of_day, snoozed_time_of_day, name, is_active, repeat_days,
				ringtone_name, ringtone_uri, volume, vibrate, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.TimeOfDay.String(), rec.SnoozedTimeOfDay, rec.Name, boolToInt(rec.IsActive),
			int(rec.RepeatDays), rec.Ringtone.Name, rec.Ringtone.URI, rec.Volume,
			boolToInt(rec.Vibrate), now, now,
		)
		if err != nil {
			return 0, &StorageError{Op: "insert", Err: err}
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, &StorageError{Op: "insert", Err: err}
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE alarms SET
			time_of_day         = ?,
			snoozed_time_of_day = ?,
			name                = ?,
			is_active           = ?,
			repeat_days         = ?,
			ringtone_name       = ?,
			ringtone_uri        = ?,
			volume              = ?,
			vibrate             = ?,
			updated_at          = ?
		WHERE id = ?`,
		rec.TimeOfDay.String(), rec.SnoozedTimeOfDay, rec.Name, boolToInt(rec.IsActive),
		int(rec.RepeatDays), rec.Ringtone.Name, rec.Ringtone.URI, rec.Volume,
		boolToInt(rec.Vibrate), now, rec.ID,
	)
	if err != nil {
		return 0, &StorageError{Op: "update", ID: rec.ID, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "update", ID: rec.ID, Err: err}
	}
	if n == 0 {
		return 0, &StorageError{Op: "update", ID: rec.ID, Err: ErrNotFound}
	}
	return rec.ID, nil
}

// ListAll returns every record ordered by id.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]models.AlarmRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectAlarm+` ORDER BY id ASC`)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var res []models.AlarmRecord
	for rows.Next() {
		rec, err := scanAlarm(rows)
		if err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return res, nil
}

// Observe polls the table and emits a snapshot whenever it differs from the
// last one sent. Other processes writing the same file are picked up too.
func (s *SQLiteStore) Observe(ctx context.Context) (<-chan []models.AlarmRecord, error) {
	first, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan []models.AlarmRecord, 1)
	ch <- first

	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		last := first
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := s.ListAll(ctx)
				if err != nil || slices.Equal(current, last) {
					continue
				}
				last = current
				select {
				case ch <- current:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row rowScanner) (models.AlarmRecord, error) {
	var (
		rec       models.AlarmRecord
		tod       string
		activeInt int
		days      int
		vibInt    int
	)
	if err := row.Scan(
		&rec.ID, &tod, &rec.SnoozedTimeOfDay, &rec.Name, &activeInt, &days,
		&rec.Ringtone.Name, &rec.Ringtone.URI, &rec.Volume, &vibInt,
	); err != nil {
		return models.AlarmRecord{}, err
	}

	parsed, err := timemath.ParseTimeOfDay(tod)
	if err != nil {
		return models.AlarmRecord{}, err
	}
	rec.TimeOfDay = parsed
	rec.IsActive = activeInt != 0
	rec.RepeatDays = timemath.WeekdaySet(days)
	rec.Vibrate = vibInt != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
