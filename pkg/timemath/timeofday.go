// Package timemath holds the calendar arithmetic behind alarm scheduling.
// Every function is pure: callers pass "now" explicitly.
package timemath

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock hour and minute with no date or timezone attached.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseError reports a time-of-day string that matched none of the known formats.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse time of day %q", e.Input)
}

// Accepted layouts, tried in order. The 12-hour form goes first so "07:30 PM"
// is never half-matched by the 24-hour layout.
var timeOfDayLayouts = []string{
	"03:04 PM",
	"3:04 PM",
	"15:04",
}

// NewTimeOfDay validates hour and minute.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, &ParseError{Input: fmt.Sprintf("%02d:%02d", hour, minute)}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MustTimeOfDay is NewTimeOfDay for constants and tests.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	tod, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return tod
}

// ParseTimeOfDay accepts "HH:MM" or "hh:mm AM/PM".
func ParseTimeOfDay(text string) (TimeOfDay, error) {
	value := strings.ToUpper(strings.TrimSpace(text))
	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, &ParseError{Input: text}
}

// OfInstant returns the wall-clock time of t in t's own location.
func OfInstant(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// String formats as 24-hour "HH:MM", the storage form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Format12 formats as "hh:mm AM".
func (t TimeOfDay) Format12() string {
	return t.on(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)).Format("03:04 PM")
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// on combines the date of day with t in day's location.
func (t TimeOfDay) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// Bedtime is eight hours before the alarm, shown next to each alarm as a sleep hint.
func Bedtime(t TimeOfDay) TimeOfDay {
	m := (t.Minutes() - 8*60 + 24*60) % (24 * 60)
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// MarshalText stores the 24-hour form.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts any format ParseTimeOfDay does.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
