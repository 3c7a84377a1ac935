package timemath

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}

func TestParseTimeOfDay_RoundTrips24Hour(t *testing.T) {
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			text := fmt.Sprintf("%02d:%02d", h, m)
			tod, err := ParseTimeOfDay(text)
			require.NoError(t, err, text)
			assert.Equal(t, TimeOfDay{Hour: h, Minute: m}, tod)
			assert.Equal(t, text, tod.String())
		}
	}
}

func TestParseTimeOfDay_Formats(t *testing.T) {
	tests := []struct {
		in   string
		want TimeOfDay
	}{
		{"07:30 AM", TimeOfDay{7, 30}},
		{"07:30 PM", TimeOfDay{19, 30}},
		{"12:00 AM", TimeOfDay{0, 0}},
		{"12:15 PM", TimeOfDay{12, 15}},
		{"7:05 pm", TimeOfDay{19, 5}},
		{" 23:59 ", TimeOfDay{23, 59}},
		{"6:45", TimeOfDay{6, 45}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeOfDay_Rejects(t *testing.T) {
	for _, in := range []string{"", "24:00", "12:60", "noon", "13:00 PM", "7"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTimeOfDay(in)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "want ParseError, got %v", err)
			assert.Equal(t, in, perr.Input)
		})
	}
}

func TestFormat12(t *testing.T) {
	assert.Equal(t, "07:05 PM", MustTimeOfDay(19, 5).Format12())
	assert.Equal(t, "12:00 AM", MustTimeOfDay(0, 0).Format12())
}

func TestNextOccurrence(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, loc)

	tests := []struct {
		name string
		tod  TimeOfDay
		want time.Time
	}{
		{"later today", TimeOfDay{9, 0}, time.Date(2025, time.March, 10, 9, 0, 0, 0, loc)},
		{"earlier today", TimeOfDay{7, 0}, time.Date(2025, time.March, 11, 7, 0, 0, 0, loc)},
		{"exactly now is past", TimeOfDay{8, 0}, time.Date(2025, time.March, 11, 8, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextOccurrence(now, tt.tod))
		})
	}
}

func TestNextOccurrence_SameDateOrNextDay(t *testing.T) {
	now := time.Date(2025, time.June, 30, 13, 27, 45, 0, time.UTC)
	for m := 0; m < 24*60; m += 7 {
		tod := TimeOfDay{Hour: m / 60, Minute: m % 60}
		got := NextOccurrence(now, tod)
		if tod.on(now).After(now) {
			assert.Equal(t, now.Day(), got.Day(), tod.String())
		} else {
			assert.Equal(t, time.July, got.Month(), tod.String())
			assert.Equal(t, 1, got.Day(), tod.String())
		}
		assert.Equal(t, tod, OfInstant(got))
	}
}

func TestNextOccurrenceOnDays(t *testing.T) {
	loc := time.UTC
	// 2025-03-10 is a Monday.
	monday := func(h, m int) time.Time { return time.Date(2025, time.March, 10, h, m, 0, 0, loc) }
	sunday := func(h, m int) time.Time { return time.Date(2025, time.March, 16, h, m, 0, 0, loc) }

	tests := []struct {
		name string
		now  time.Time
		tod  TimeOfDay
		days WeekdaySet
		want time.Time
	}{
		{
			name: "monday slot passed picks wednesday",
			now:  monday(8, 0),
			tod:  TimeOfDay{7, 0},
			days: NewWeekdaySet(Monday, Wednesday, Friday),
			want: time.Date(2025, time.March, 12, 7, 0, 0, 0, loc),
		},
		{
			name: "same day still ahead",
			now:  sunday(23, 0),
			tod:  TimeOfDay{23, 30},
			days: NewWeekdaySet(Sunday),
			want: sunday(23, 30),
		},
		{
			name: "same day passed wraps one week",
			now:  sunday(23, 45),
			tod:  TimeOfDay{23, 30},
			days: NewWeekdaySet(Sunday),
			want: time.Date(2025, time.March, 23, 23, 30, 0, 0, loc),
		},
		{
			name: "exactly now wraps one week",
			now:  monday(7, 0),
			tod:  TimeOfDay{7, 0},
			days: NewWeekdaySet(Monday),
			want: time.Date(2025, time.March, 17, 7, 0, 0, 0, loc),
		},
		{
			name: "week wraparound from sunday to monday",
			now:  sunday(12, 0),
			tod:  TimeOfDay{6, 0},
			days: NewWeekdaySet(Monday, Saturday),
			want: time.Date(2025, time.March, 17, 6, 0, 0, 0, loc),
		},
		{
			name: "empty set falls back one week after next occurrence",
			now:  monday(8, 0),
			tod:  TimeOfDay{9, 0},
			days: 0,
			want: time.Date(2025, time.March, 17, 9, 0, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextOccurrenceOnDays(tt.now, tt.tod, tt.days))
		})
	}
}

func TestNextOccurrenceOnDays_NeverAtOrBeforeNow(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, loc)
	sets := []WeekdaySet{
		0,
		NewWeekdaySet(Sunday),
		NewWeekdaySet(Monday, Wednesday, Friday),
		NewWeekdaySet(AllWeekdays...),
	}
	for step := 0; step < 24*21; step++ {
		now := start.Add(time.Duration(step)*time.Hour + 17*time.Minute)
		for _, days := range sets {
			for _, tod := range []TimeOfDay{{0, 0}, {2, 30}, {now.Hour(), now.Minute()}, {23, 59}} {
				next := NextOccurrenceOnDays(now, tod, days)
				require.True(t, next.After(now), "now=%s tod=%s days=%s next=%s", now, tod, days, next)
				if !days.Empty() {
					assert.True(t, days.Has(FromStd(next.Weekday())), "now=%s next=%s", now, next)
				}
			}
		}
	}
}

func TestNextOccurrenceOnDays_DSTKeepsWallClock(t *testing.T) {
	loc := mustLoad(t, "Europe/Berlin")
	// Clocks jump forward on Sunday 2025-03-30; the Monday alarm must still ring at 07:00 local.
	now := time.Date(2025, time.March, 29, 7, 0, 0, 0, loc)
	next := NextOccurrenceOnDays(now, TimeOfDay{7, 0}, NewWeekdaySet(Monday))
	assert.Equal(t, time.Date(2025, time.March, 31, 7, 0, 0, 0, loc), next)
	assert.Equal(t, 7, next.Hour())
	// 48 wall-clock hours, 47 elapsed.
	assert.Equal(t, 47*time.Hour, next.Sub(now))
}

func TestDurationUntil(t *testing.T) {
	now := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 90*time.Minute, DurationUntil(now, now.Add(90*time.Minute)))
	assert.Equal(t, time.Duration(0), DurationUntil(now, now))
	assert.Equal(t, time.Duration(0), DurationUntil(now, now.Add(-time.Hour)))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "7h 12min 3s", FormatDuration(7*time.Hour+12*time.Minute+3*time.Second))
	assert.Equal(t, "12min 0s", FormatDuration(12*time.Minute))
	assert.Equal(t, "less than 1 minute", FormatDuration(59*time.Second))
}

func TestBedtime(t *testing.T) {
	assert.Equal(t, TimeOfDay{23, 30}, Bedtime(TimeOfDay{7, 30}))
	assert.Equal(t, TimeOfDay{10, 0}, Bedtime(TimeOfDay{18, 0}))
}

func TestWeekdaySet(t *testing.T) {
	set, err := ParseWeekdaySet("mon, Wednesday,fri,mon")
	require.NoError(t, err)
	assert.Equal(t, []Weekday{Monday, Wednesday, Friday}, set.Days())
	assert.Equal(t, "mon,wed,fri", set.String())

	assert.True(t, set.Without(Monday).Has(Wednesday))
	assert.False(t, set.Without(Monday).Has(Monday))

	weekends, err := ParseWeekdaySet("weekends")
	require.NoError(t, err)
	assert.Equal(t, NewWeekdaySet(Saturday, Sunday), weekends)

	empty, err := ParseWeekdaySet("")
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Equal(t, "none", empty.String())

	_, err = ParseWeekdaySet("mon,funday")
	assert.Error(t, err)
}

func TestWeekdayStdConversion(t *testing.T) {
	for _, d := range AllWeekdays {
		assert.Equal(t, d, FromStd(d.Std()))
	}
	assert.Equal(t, time.Sunday, Sunday.Std())
	assert.Equal(t, Monday, FromStd(time.Monday))
}
