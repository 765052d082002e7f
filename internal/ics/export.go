// Package ics renders holiday lists as iCalendar feeds so calendar clients
// can subscribe to them.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"holidaysjp/internal/model"
)

const (
	ProductID    = "-//holidaysjp//Japanese National Holidays//JA"
	CalendarName = "日本の祝日"
	uidDomain    = "holidaysjp"
)

// Export renders holidays as a PUBLISH calendar of all-day events. stamp is
// written as DTSTAMP on every event. Entries with unparseable dates are
// skipped.
func Export(holidays []model.Holiday, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName(CalendarName)

	stamp = stamp.UTC()
	for _, h := range holidays {
		day, err := time.Parse(model.DateKeyLayout, h.Date)
		if err != nil {
			continue
		}
		ev := cal.AddEvent(eventUID(day))
		ev.SetDtStampTime(stamp)
		ev.SetSummary(h.Name)
		ev.SetAllDayStartAt(day)
		// DTEND is exclusive for all-day events.
		ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
	}

	return cal.Serialize()
}

// eventUID is stable per date so clients update rather than duplicate
// entries across refreshes.
func eventUID(day time.Time) string {
	return fmt.Sprintf("%s@%s", strings.ReplaceAll(day.Format(model.DateKeyLayout), "-", ""), uidDomain)
}
