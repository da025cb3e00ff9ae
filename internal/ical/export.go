// Package ical serializes computed blocking windows as an iCalendar feed
// so standard calendar clients can subscribe to the blocking schedule.
package ical

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"taskgate/internal/model"
)

// Calendar builds a VCALENDAR containing one VEVENT per blocking window.
// now is used for DTSTAMP/CREATED so output is reproducible in tests.
func Calendar(windows []model.Window, now time.Time) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//taskgate//blocking windows//EN")

	for i, w := range windows {
		uid := fmt.Sprintf("taskgate-%d-%s", i, w.Start.UTC().Format("20060102T150405Z"))
		ev := cal.AddEvent(uid)
		ev.SetCreatedTime(now)
		ev.SetDtStampTime(now)
		ev.SetStartAt(w.Start)
		ev.SetEndAt(w.End)
		ev.SetSummary(w.Reason)
		ev.SetDescription(fmt.Sprintf("severity=%s timezone=%s", w.Severity, w.Timezone))
		if w.RedirectURL != "" {
			ev.SetProperty(ics.ComponentPropertyUrl, w.RedirectURL)
		}
	}

	return cal
}

// Serialize renders the window list as ICS text.
func Serialize(windows []model.Window, now time.Time) string {
	return Calendar(windows, now).Serialize()
}
