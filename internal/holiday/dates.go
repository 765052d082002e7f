package holiday

import (
	"fmt"
	"strings"
	"time"

	"holidaysjp/internal/model"
)

// jst is the zone used to decide what "today" is.
var jst = time.FixedZone("Asia/Tokyo", 9*60*60)

// dateFormat is one accepted input form. Layouts with separators take the
// month and day with or without zero padding.
type dateFormat struct {
	name   string
	layout string
}

// acceptedFormats is tried in order; the first layout that parses wins, so
// "01/02/2023" is January 2nd (MM/DD/YYYY) rather than February 1st.
var acceptedFormats = []dateFormat{
	{"YYYYMMDD", "20060102"},
	{"YYYY-MM-DD", "2006-1-2"},
	{"YYYY/MM/DD", "2006/1/2"},
	{"YYYY年MM月DD日", "2006年1月2日"},
	{"MM/DD/YYYY", "1/2/2006"},
	{"DD/MM/YYYY", "2/1/2006"},
	{"YYYY.MM.DD", "2006.1.2"},
}

// AcceptedFormats returns the accepted input format names in priority order.
func AcceptedFormats() []string {
	names := make([]string, 0, len(acceptedFormats))
	for _, f := range acceptedFormats {
		names = append(names, f.name)
	}
	return names
}

// ParseDate parses s against the accepted formats. The result is midnight
// UTC of the calendar date.
func ParseDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v != "" {
		for _, f := range acceptedFormats {
			if t, err := time.Parse(f.layout, v); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported date %q; use one of %s",
		model.ErrParse, s, strings.Join(AcceptedFormats(), ", "))
}

// NormalizeDate parses s and returns its canonical YYYY-MM-DD key.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return model.DateKey(t), nil
}

// Today returns the current Japanese calendar date as YYYYMMDD.
func Today(now time.Time) string {
	return now.In(jst).Format("20060102")
}
