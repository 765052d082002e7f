package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"holidaysjp/internal/model"
)

func TestExportRoundTrip(t *testing.T) {
	t.Parallel()

	holidays := []model.Holiday{
		{Date: "2023-01-01", Name: "元日"},
		{Date: "2023-01-09", Name: "成人の日"},
		{Date: "garbage", Name: "skipped"},
	}
	out := Export(holidays, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	first := events[0]
	if p := first.GetProperty(ical.ComponentPropertySummary); p == nil || p.Value != "元日" {
		t.Errorf("summary = %v, want 元日", p)
	}
	if p := first.GetProperty(ical.ComponentPropertyUniqueId); p == nil || p.Value != "20230101@holidaysjp" {
		t.Errorf("uid = %v", p)
	}
	if p := first.GetProperty(ical.ComponentPropertyDtStart); p == nil || p.Value != "20230101" {
		t.Errorf("dtstart = %v, want 20230101", p)
	}
	if p := first.GetProperty(ical.ComponentPropertyDtEnd); p == nil || p.Value != "20230102" {
		t.Errorf("dtend = %v, want 20230102", p)
	}
}

func TestExportEmpty(t *testing.T) {
	t.Parallel()

	out := Export(nil, time.Now())
	if !strings.Contains(out, "BEGIN:VCALENDAR") || !strings.Contains(out, ProductID) {
		t.Errorf("empty export missing calendar header:\n%s", out)
	}
	if strings.Contains(out, "BEGIN:VEVENT") {
		t.Error("empty export should have no events")
	}
}
