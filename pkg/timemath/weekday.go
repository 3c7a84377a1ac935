package timemath

import (
	"fmt"
	"strings"
	"time"
)

// Weekday identifies a repeat day. Monday is first, matching the alarm editor's row order.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// AllWeekdays lists the seven days Monday first.
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayShortNames = [...]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Valid reports whether d is one of the seven days.
func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

// String returns the three-letter lowercase name.
func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayShortNames[d]
}

// Std converts to time.Weekday.
func (d Weekday) Std() time.Weekday {
	return time.Weekday((int(d) + 1) % 7)
}

// FromStd converts from time.Weekday.
func FromStd(d time.Weekday) Weekday {
	return Weekday((int(d) + 6) % 7)
}

// ParseWeekday accepts short or full English names, case-insensitive.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for i, name := range weekdayShortNames {
			if strings.HasPrefix(s, name) {
				return Weekday(i), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// WeekdaySet is a bitset of repeat days. A bitset cannot hold a day twice.
type WeekdaySet uint8

// NewWeekdaySet builds a set from days; invalid values are dropped.
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// ParseWeekdaySet parses a comma separated list such as "mon,wed,fri".
// The words "daily" and "weekdays" and "weekends" are shorthands; "" and "none" give the empty set.
func ParseWeekdaySet(s string) (WeekdaySet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return 0, nil
	case "daily":
		return NewWeekdaySet(AllWeekdays...), nil
	case "weekdays":
		return NewWeekdaySet(Monday, Tuesday, Wednesday, Thursday, Friday), nil
	case "weekends":
		return NewWeekdaySet(Saturday, Sunday), nil
	}

	var set WeekdaySet
	for _, part := range strings.Split(s, ",") {
		d, err := ParseWeekday(part)
		if err != nil {
			return 0, err
		}
		set = set.With(d)
	}
	return set, nil
}

// With returns s plus d.
func (s WeekdaySet) With(d Weekday) WeekdaySet {
	if !d.Valid() {
		return s
	}
	return s | 1<<uint(d)
}

// Without returns s minus d.
func (s WeekdaySet) Without(d Weekday) WeekdaySet {
	if !d.Valid() {
		return s
	}
	return s &^ (1 << uint(d))
}

// Has reports membership.
func (s WeekdaySet) Has(d Weekday) bool {
	return d.Valid() && s&(1<<uint(d)) != 0
}

// Empty reports whether no day is set.
func (s WeekdaySet) Empty() bool {
	return s&0x7f == 0
}

// Days lists members Monday first.
func (s WeekdaySet) Days() []Weekday {
	days := make([]Weekday, 0, 7)
	for _, d := range AllWeekdays {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// String joins short names with commas; the empty set prints as "none".
func (s WeekdaySet) String() string {
	days := s.Days()
	if len(days) == 0 {
		return "none"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return strings.Join(names, ",")
}
