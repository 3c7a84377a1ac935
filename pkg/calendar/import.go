package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/timemath"
)

// Open returns the calendar at source, an http(s) URL or a file path.
func Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.Open(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request failed: %s", resp.Status)
	}
	return resp.Body, nil
}

// Import reads every VEVENT in r as an unsaved alarm. Events without a
// usable start time or recurrence are skipped and logged.
func Import(r io.Reader, log zerolog.Logger) ([]models.AlarmRecord, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}
	if err := validateICalFormat(string(body)); err != nil {
		return nil, err
	}

	decoder := ical.NewDecoder(strings.NewReader(string(body)))
	var alarms []models.AlarmRecord
	for {
		cal, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			normalizeComponentTimezones(comp)

			rec, err := parseAlarm(comp)
			if err != nil {
				summary, _ := comp.Props.Text(ical.PropSummary)
				log.Warn().Err(err).Str("summary", summary).Msg("[CALENDAR] skipping event")
				continue
			}
			alarms = append(alarms, rec)
		}
	}

	log.Info().Int("alarms", len(alarms)).Msg("[CALENDAR] imported")
	return alarms, nil
}

func parseAlarm(comp *ical.Component) (models.AlarmRecord, error) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return models.AlarmRecord{}, errors.New("missing DTSTART")
	}
	if startProp.ValueType() == ical.ValueDate {
		return models.AlarmRecord{}, errors.New("all-day event has no time of day")
	}
	start, err := parseDateTimeProperty(startProp)
	if err != nil {
		return models.AlarmRecord{}, err
	}

	rec := models.NewAlarmRecord(timemath.OfInstant(start))

	if summary, err := comp.Props.Text(ical.PropSummary); err == nil && summary != models.DefaultTitle {
		rec.Name = summary
	}

	if ruleProp := comp.Props.Get(ical.PropRecurrenceRule); ruleProp != nil {
		days, err := repeatDays(ruleProp.Value, start)
		if err != nil {
			return models.AlarmRecord{}, err
		}
		rec.RepeatDays = days
	}

	if status, _ := comp.Props.Text(ical.PropStatus); status == "CANCELLED" {
		rec.IsActive = false
	}
	if v, _ := comp.Props.Text(propVolume); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rec.Volume = f
		}
	}
	if v, _ := comp.Props.Text(propVibrate); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			rec.Vibrate = b
		}
	}

	rec.Ringtone = ringtone(comp)
	if name, _ := comp.Props.Text(propRingtoneName); name != "" && !rec.Ringtone.IsSilent() {
		rec.Ringtone.Name = name
	}
	return rec.Normalize(), nil
}

// ringtone reads the first VALARM. AUDIO with an attachment plays it, AUDIO
// without one plays the default sound, anything else is silent.
func ringtone(comp *ical.Component) models.Ringtone {
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		action, _ := child.Props.Text(ical.PropAction)
		if !strings.EqualFold(action, "AUDIO") {
			return models.SilentRingtone
		}
		if attach := child.Props.Get(ical.PropAttach); attach != nil && attach.Value != "" {
			return models.Ringtone{Name: "Custom", URI: attach.Value}
		}
		return models.DefaultRingtone
	}
	return models.DefaultRingtone
}

// repeatDays maps a DAILY or WEEKLY rule onto weekdays. A WEEKLY rule with no
// BYDAY repeats on the start date's weekday.
func repeatDays(value string, start time.Time) (timemath.WeekdaySet, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return 0, fmt.Errorf("bad RRULE %q: %w", value, err)
	}
	if opt.Interval > 1 || opt.Count > 0 || !opt.Until.IsZero() {
		return 0, fmt.Errorf("unsupported RRULE %q", value)
	}

	switch opt.Freq {
	case rrule.DAILY:
		return timemath.NewWeekdaySet(timemath.AllWeekdays...), nil
	case rrule.WEEKLY:
		if len(opt.Byweekday) == 0 {
			return timemath.NewWeekdaySet(timemath.FromStd(start.Weekday())), nil
		}
		var set timemath.WeekdaySet
		for _, wd := range opt.Byweekday {
			set = set.With(timemath.Weekday(wd.Day()))
		}
		return set, nil
	}
	return 0, fmt.Errorf("unsupported RRULE frequency in %q", value)
}

func parseDateTimeProperty(prop *ical.Prop) (time.Time, error) {
	if t, err := prop.DateTime(time.Local); err == nil {
		return t.In(time.Local), nil
	}

	// If that fails, try parsing the raw value directly
	formats := []string{
		floatingLayout,
		"20060102T150405Z",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, prop.Value, time.Local); err == nil {
			return t.In(time.Local), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime value: %s", prop.Value)
}

func validateICalFormat(body string) error {
	trimmed := strings.TrimSpace(body)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data - check if URL requires authentication")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		preview := trimmed
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return fmt.Errorf("invalid iCalendar format - expected BEGIN:VCALENDAR, got: %s", preview)
	}
	return nil
}
