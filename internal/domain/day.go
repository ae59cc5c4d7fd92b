package domain

import (
	"strings"
	"time"
)

// DayLayout is the wire format of a calendar day.
const DayLayout = "2006-01-02"

// ParseDay parses a calendar day and returns its canonical boundary: midnight UTC.
// A full RFC3339 timestamp is accepted too; its calendar date as written is kept so
// that the same local day always maps to the same canonical day.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, Errorf(CodeInvalidDate, "date is required")
	}
	if t, err := time.ParseInLocation(DayLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, Errorf(CodeInvalidDate, "date %q must be YYYY-MM-DD", s)
}

// StartOfDay drops the time-of-day of t, keeping its UTC calendar date.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDay returns the start of the day after t.
func NextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// FormatDay renders t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// SameDay reports whether a and b fall on the same canonical day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}
