package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"holidaysjp/internal/model"
)

type outputFormat string

const (
	outputHuman outputFormat = "human"
	outputJSON  outputFormat = "json"
	outputQuiet outputFormat = "quiet"
)

var timeNow = time.Now

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case outputHuman, outputJSON, outputQuiet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q (want human, json or quiet)", errUsage, s)
	}
}

type holidayResult struct {
	Date        string  `json:"date"`
	IsHoliday   bool    `json:"is_holiday"`
	HolidayName *string `json:"holiday_name"`
}

type holidayListResult struct {
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Holidays  []holidayResult `json:"holidays"`
}

// writeHolidayResult prints a single lookup. Quiet prints the name only,
// and nothing for non-holidays.
func writeHolidayResult(w io.Writer, date string, ok bool, name string, format outputFormat) error {
	switch format {
	case outputJSON:
		res := holidayResult{Date: date, IsHoliday: ok}
		if ok {
			res.HolidayName = &name
		}
		return json.NewEncoder(w).Encode(res)
	case outputQuiet:
		if ok {
			_, err := fmt.Fprintln(w, name)
			return err
		}
		return nil
	default:
		var err error
		if ok {
			_, err = fmt.Fprintf(w, "%s is holiday(%s)\n", date, name)
		} else {
			_, err = fmt.Fprintf(w, "%s is not a holiday\n", date)
		}
		return err
	}
}

func writeHolidayList(w io.Writer, start, end string, list []model.Holiday, format outputFormat) error {
	switch format {
	case outputJSON:
		res := holidayListResult{StartDate: start, EndDate: end, Holidays: make([]holidayResult, 0, len(list))}
		for _, h := range list {
			name := h.Name
			res.Holidays = append(res.Holidays, holidayResult{Date: h.Date, IsHoliday: true, HolidayName: &name})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case outputQuiet:
		for _, h := range list {
			if _, err := fmt.Fprintf(w, "%s - %s\n", h.Date, h.Name); err != nil {
				return err
			}
		}
		return nil
	default:
		if len(list) == 0 {
			_, err := fmt.Fprintf(w, "No holidays found in the specified range (%s to %s)\n", start, end)
			return err
		}
		if _, err := fmt.Fprintf(w, "Holidays in range (%s to %s):\n", start, end); err != nil {
			return err
		}
		for _, h := range list {
			if _, err := fmt.Fprintf(w, "  %s - %s\n", h.Date, h.Name); err != nil {
				return err
			}
		}
		return nil
	}
}
