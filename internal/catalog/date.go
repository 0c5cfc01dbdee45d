package catalog

import (
	"fmt"
	"time"
)

// DateFormat is the ISO-8601 day layout used wherever a calendar date is
// parsed or rendered.
const DateFormat = "2006-01-02"

// Date is a calendar day with no time-of-day component. Watermarks, filter
// comparisons and staging DATE columns all operate on this type so that
// timezone drift can never smuggle an extra day into a comparison.
//
// The zero value means "no date" and reports IsZero.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate returns a normalized Date for the given year, month and day.
// Out-of-range components are normalized the way time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	d := Date{year: year, month: month, day: day}
	d.year, d.month, d.day = d.Time().Date()

	return d
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.UTC().Date())
}

// ParseDate parses an ISO-8601 day such as "2024-06-03".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want %s): %w", s, DateFormat, err)
	}

	return NewDate(t.Date()), nil
}

// MustParseDate is ParseDate for literals known to be well formed.
// It panics on malformed input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err.Error())
	}

	return d
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// After reports whether d is strictly after x.
func (d Date) After(x Date) bool {
	return d.Time().After(x.Time())
}

// Before reports whether d is strictly before x.
func (d Date) Before(x Date) bool {
	return d.Time().Before(x.Time())
}

// Equal reports whether d and x are the same day.
func (d Date) Equal(x Date) bool {
	return d.year == x.year && d.month == x.month && d.day == x.day
}

// AddDays returns the date i days after d. Negative i moves backwards.
func (d Date) AddDays(i int) Date {
	return NewDate(d.year, d.month, d.day+i)
}

// String renders the date in DateFormat. The zero Date renders as the empty
// string so it never masquerades as a real day in logs.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}

	return d.Time().Format(DateFormat)
}

// DaysBetween returns the number of whole days from a to b.
// The result is negative when b is before a.
func DaysBetween(a, b Date) int {
	return int(b.Time().Sub(a.Time()) / (24 * time.Hour))
}
