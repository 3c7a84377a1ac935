package timemath

import (
	"fmt"
	"time"
)

// NextOccurrence returns today's date at tod in now's location, or the same
// wall-clock time on the following calendar day when that instant is at or
// before now. Equal counts as past so an alarm is never armed for "now".
func NextOccurrence(now time.Time, tod TimeOfDay) time.Time {
	candidate := tod.on(now)
	if !candidate.After(now) {
		candidate = addDays(now, tod, 1)
	}
	return candidate
}

// NextOccurrenceOnDays returns the earliest instant strictly after now that
// falls on one of days at tod. Each weekday's candidate is the next date on or
// after today with that weekday; candidates at or before now move one week on.
//
// An empty set has nothing to anchor to, so the result is
// NextOccurrence(now, tod) plus one calendar week.
func NextOccurrenceOnDays(now time.Time, tod TimeOfDay, days WeekdaySet) time.Time {
	if days.Empty() {
		next := NextOccurrence(now, tod)
		return addDays(next, tod, 7)
	}

	today := FromStd(now.Weekday())
	var best time.Time
	for _, d := range days.Days() {
		offset := (int(d) - int(today) + 7) % 7
		candidate := addDays(now, tod, offset)
		if !candidate.After(now) {
			candidate = addDays(now, tod, offset+7)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}

// DurationUntil is target-now, never negative.
func DurationUntil(now, target time.Time) time.Duration {
	if !target.After(now) {
		return 0
	}
	return target.Sub(now)
}

// FormatDuration renders a countdown the way the alarm list shows it:
// "7h 12min 3s", "12min 3s", or "less than 1 minute".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	seconds := int(d % time.Minute / time.Second)
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dmin %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dmin %ds", minutes, seconds)
	default:
		return "less than 1 minute"
	}
}

// addDays moves the calendar date of base by n days and sets the wall clock to
// tod. time.Date normalizes the day overflow and resolves DST gaps, so this
// never drifts by an hour the way base.Add(n*24h) would.
func addDays(base time.Time, tod TimeOfDay, n int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day()+n, tod.Hour, tod.Minute, 0, 0, base.Location())
}
