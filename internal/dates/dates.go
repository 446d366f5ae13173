// Package dates centralizes document date parsing and day-granularity
// comparison. Project documents carry dates as strings in one of two layouts;
// everything downstream compares at whole-day resolution.
package dates

import (
	"fmt"
	"time"
)

const (
	LayoutDate     = "2006-01-02"
	LayoutDateTime = "2006-01-02 15:04:05"
)

// Parse accepts both document layouts.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(LayoutDate, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(LayoutDateTime, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Format renders a time in the canonical date-only layout.
func Format(t time.Time) string {
	return t.Format(LayoutDate)
}

// Day truncates a time to its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AfterDay reports whether a falls on a later calendar day than b.
func AfterDay(a, b time.Time) bool {
	return Day(a).After(Day(b))
}

// BeforeDay reports whether a falls on an earlier calendar day than b.
func BeforeDay(a, b time.Time) bool {
	return Day(a).Before(Day(b))
}

// Min returns the earlier of two times.
func Min(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
