package catalog

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-03")
	if err != nil {
		t.Fatalf("ParseDate() failed for valid input: %v", err)
	}

	if got := d.String(); got != "2024-06-03" {
		t.Errorf("String() = %q, want %q", got, "2024-06-03")
	}

	if d.IsZero() {
		t.Error("parsed date reports IsZero()")
	}
}

func TestParseDate_Invalid(t *testing.T) {
	cases := []string{"", "2024-6-3", "03/06/2024", "2024-13-01", "not a date"}

	for _, input := range cases {
		if _, err := ParseDate(input); err == nil {
			t.Errorf("ParseDate(%q) = nil error, want failure", input)
		}
	}
}

func TestDateOrdering(t *testing.T) {
	earlier := MustParseDate("2024-06-01")
	later := MustParseDate("2024-06-03")

	if !later.After(earlier) {
		t.Error("After() = false for a strictly later date")
	}

	if !earlier.Before(later) {
		t.Error("Before() = false for a strictly earlier date")
	}

	if later.After(later) {
		t.Error("After() = true for an equal date; comparison must be strict")
	}

	if !later.Equal(MustParseDate("2024-06-03")) {
		t.Error("Equal() = false for the same day")
	}
}

func TestDateAddDays(t *testing.T) {
	d := MustParseDate("2024-02-28")

	// 2024 is a leap year.
	if got := d.AddDays(1).String(); got != "2024-02-29" {
		t.Errorf("AddDays(1) = %s, want 2024-02-29", got)
	}

	if got := d.AddDays(2).String(); got != "2024-03-01" {
		t.Errorf("AddDays(2) = %s, want 2024-03-01", got)
	}

	if got := d.AddDays(-28).String(); got != "2024-01-31" {
		t.Errorf("AddDays(-28) = %s, want 2024-01-31", got)
	}
}

func TestDaysBetween(t *testing.T) {
	a := MustParseDate("2024-06-01")
	b := MustParseDate("2024-06-30")

	if got := DaysBetween(a, b); got != 29 {
		t.Errorf("DaysBetween() = %d, want 29", got)
	}

	if got := DaysBetween(b, a); got != -29 {
		t.Errorf("DaysBetween() reversed = %d, want -29", got)
	}
}

func TestDateOf_TruncatesToUTCDay(t *testing.T) {
	// 23:30 New York time on June 3rd is already June 4th in UTC.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	late := time.Date(2024, time.June, 3, 23, 30, 0, 0, loc)

	if got := DateOf(late).String(); got != "2024-06-04" {
		t.Errorf("DateOf() = %s, want 2024-06-04 (UTC day)", got)
	}
}

func TestZeroDate(t *testing.T) {
	var d Date

	if !d.IsZero() {
		t.Error("zero value does not report IsZero()")
	}

	if got := d.String(); got != "" {
		t.Errorf("zero date String() = %q, want empty string", got)
	}
}
