// Package calendar converts alarms to and from iCalendar files: one VEVENT
// per alarm, a weekly RRULE for the repeat days and a VALARM for the sound.
package calendar

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/timemath"
)

const (
	productID = "-//borgmon//alarm-clock//EN"

	propVolume       = "X-ALARMD-VOLUME"
	propVibrate      = "X-ALARMD-VIBRATE"
	propRingtoneName = "X-ALARMD-RINGTONE"

	floatingLayout = "20060102T150405"
)

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/borgmon/alarm-clock"))

// Export writes alarms as an iCalendar stream. DTSTART is the instant the
// scheduler would arm each alarm for at now, in floating local time.
func Export(w io.Writer, alarms []models.AlarmRecord, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, rec := range alarms {
		cal.Children = append(cal.Children, alarmEvent(rec, now).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// UID is the stable iCalendar UID for a stored alarm.
func UID(id int64) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatInt(id, 10))).String()
}

func alarmEvent(rec models.AlarmRecord, now time.Time) *ical.Event {
	event := ical.NewEvent()

	uid := uuid.NewString()
	if rec.Saved() {
		uid = UID(rec.ID)
	}
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetText(ical.PropSummary, rec.Title())

	start := ical.NewProp(ical.PropDateTimeStart)
	start.Value = timemath.NextOccurrenceOnDays(now, rec.TimeOfDay, rec.RepeatDays).Format(floatingLayout)
	event.Props.Set(start)

	if !rec.OneShot() {
		rule := ical.NewProp(ical.PropRecurrenceRule)
		rule.Value = weeklyRule(rec.RepeatDays).RRuleString()
		event.Props.Set(rule)
	}

	status := "CONFIRMED"
	if !rec.IsActive {
		status = "CANCELLED"
	}
	event.Props.SetText(ical.PropStatus, status)
	event.Props.SetText(propVolume, strconv.FormatFloat(rec.Volume, 'f', -1, 64))
	event.Props.SetText(propVibrate, strconv.FormatBool(rec.Vibrate))
	event.Props.SetText(propRingtoneName, rec.Ringtone.Name)

	event.Children = append(event.Children, valarm(rec))
	return event
}

func valarm(rec models.AlarmRecord) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = "PT0S"
	alarm.Props.Set(trigger)

	if rec.Ringtone.IsSilent() {
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
		alarm.Props.SetText(ical.PropDescription, rec.Title())
		return alarm
	}

	alarm.Props.SetText(ical.PropAction, "AUDIO")
	attach := ical.NewProp(ical.PropAttach)
	attach.Value = rec.Ringtone.URI
	alarm.Props.Set(attach)
	return alarm
}

func weeklyRule(days timemath.WeekdaySet) *rrule.ROption {
	opt := &rrule.ROption{Freq: rrule.WEEKLY}
	for _, d := range days.Days() {
		opt.Byweekday = append(opt.Byweekday, rruleDays[d])
	}
	return opt
}

// rruleDays is indexed by timemath.Weekday.
var rruleDays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}
