package schema

import (
	"fmt"
	"time"
)

// Date is a calendar day with no time-of-day component. Dates and
// datetimes stay distinct all the way through resolution: a bare
// 2024-09-01 in YAML loads as a Date while 2024-09-01 08:00:00 loads as a
// time.Time, and a datetime never silently truncates into a date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day on which t falls.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses an ISO 8601 date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// AddDays returns the date n days after d. Negative n moves backwards.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Time returns midnight UTC on d. This is the coercion applied when a
// date is supplied where a datetime is expected.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d falls before other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalYAML encodes the date as its ISO 8601 string.
func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalJSON encodes the date as its ISO 8601 string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}
