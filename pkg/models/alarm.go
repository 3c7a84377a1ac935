package models

import (
	"strings"

	"github.com/borgmon/alarm-clock/pkg/timemath"
)

// UnsavedID marks a record the store has not assigned an id to yet.
const UnsavedID int64 = -1

// DefaultTitle is shown when an alarm has no name.
const DefaultTitle = "Your Alarm Triggered"

// Ringtone is a named sound or the silent sentinel.
type Ringtone struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SilentRingtone plays nothing.
var SilentRingtone = Ringtone{Name: "Silent"}

// DefaultRingtone is the built-in tone synthesized by the audio player.
var DefaultRingtone = Ringtone{Name: "Default", URI: "builtin:default"}

// IsSilent reports whether r is the silent sentinel. An empty URI is silent too,
// since there is nothing to play.
func (r Ringtone) IsSilent() bool {
	return r.URI == "" || strings.EqualFold(r.Name, SilentRingtone.Name)
}

// AlarmRecord is the persisted alarm configuration.
type AlarmRecord struct {
	ID               int64               `json:"id"`
	TimeOfDay        timemath.TimeOfDay  `json:"time_of_day"`
	SnoozedTimeOfDay string              `json:"snoozed_time_of_day,omitempty"` // "HH:MM" while a snooze is pending
	Name             string              `json:"name"`
	IsActive         bool                `json:"is_active"`
	RepeatDays       timemath.WeekdaySet `json:"repeat_days"`
	Ringtone         Ringtone            `json:"ringtone"`
	Volume           float64             `json:"volume"` // 0.0 - 1.0
	Vibrate          bool                `json:"vibrate"`
}

// NewAlarmRecord returns an unsaved, active alarm with the editor's defaults.
func NewAlarmRecord(tod timemath.TimeOfDay) AlarmRecord {
	return AlarmRecord{
		ID:        UnsavedID,
		TimeOfDay: tod,
		IsActive:  true,
		Ringtone:  DefaultRingtone,
		Volume:    0.5,
		Vibrate:   true,
	}
}

// Saved reports whether the store has assigned an id.
func (a AlarmRecord) Saved() bool {
	return a.ID > 0
}

// OneShot reports whether the alarm has no repeat days.
func (a AlarmRecord) OneShot() bool {
	return a.RepeatDays.Empty()
}

// Snoozed reports whether a snooze is pending.
func (a AlarmRecord) Snoozed() bool {
	return a.SnoozedTimeOfDay != ""
}

// Title is the notification heading.
func (a AlarmRecord) Title() string {
	if strings.TrimSpace(a.Name) == "" {
		return DefaultTitle
	}
	return a.Name
}

// Normalize clamps volume into [0, 1] and drops invalid weekday bits.
func (a AlarmRecord) Normalize() AlarmRecord {
	switch {
	case a.Volume < 0:
		a.Volume = 0
	case a.Volume > 1:
		a.Volume = 1
	}
	a.RepeatDays = timemath.NewWeekdaySet(a.RepeatDays.Days()...)
	return a
}
