package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day (date-only granularity)
// =============================================================================

// Date is a calendar day. Time entries apply to whole days, never to
// timestamps, so all comparisons are done on the "YYYY-MM-DD" rendering
// in server time. Two Dates built from different wall-clock instants of
// the same day compare equal.
type Date struct {
	t time.Time
}

// NewDate builds a Date for a specific calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day in server time.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.t.Format("2006-01-02")
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// Comparison is by day string, not by instant.
func (d Date) Equal(other Date) bool  { return d.String() == other.String() }
func (d Date) Before(other Date) bool { return d.String() < other.String() }
func (d Date) After(other Date) bool  { return d.String() > other.String() }

func (d Date) AddDays(n int) Date { return DateOf(d.t.AddDate(0, 0, n)) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `""` || s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date JSON: %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
