package models

import (
	"fmt"
	"time"
)

// DateLayout is the storage and wire format for date-only values.
const DateLayout = "2006-01-02"

// DateOnly drops the time of day, keeping the calendar date as seen in the
// value's own location. The result is midnight UTC so that equal calendar
// dates compare equal regardless of where they came from.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", value, err)
	}
	return parsed, nil
}

func FormatDate(t time.Time) string {
	return DateOnly(t).Format(DateLayout)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampedDate builds year-month-day, pulling day back to the month's last day
// when the month is shorter ("31" in February is the 28th or 29th).
func ClampedDate(year int, month time.Month, day int) time.Time {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
