package engine

import (
	"fmt"
	"time"
)

const isoDate = "2006-01-02"

// Date is a validated ISO calendar date (YYYY-MM-DD) with no time
// component. Construct via ParseDate so that a malformed date fails loudly
// at the boundary instead of silently defaulting inside the engine.
// Comparison by string is correct because the format is fixed-width.
type Date struct {
	s string
	t time.Time // midnight UTC, used for weekday/day-of-month math
}

// ParseDate parses a strict YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{s: s, t: t}, nil
}

// MustDate is ParseDate for literals; it panics on malformed input.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Today returns the current calendar date in the given location.
func Today(loc *time.Location) Date {
	now := time.Now().In(loc)
	return dateOf(now)
}

func dateOf(t time.Time) Date {
	s := t.Format(isoDate)
	return Date{s: s, t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.s }

// IsZero reports whether d was never parsed.
func (d Date) IsZero() bool { return d.s == "" }

// Weekday returns 0=Sunday..6=Saturday.
func (d Date) Weekday() int { return int(d.t.Weekday()) }

// Day returns the day of the month (1..31).
func (d Date) Day() int { return d.t.Day() }

// Time returns midnight UTC of the date, for arithmetic only.
func (d Date) Time() time.Time { return d.t }

func (d Date) AddDays(n int) Date {
	return dateOf(d.t.AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool { return d.s < o.s }
func (d Date) After(o Date) bool  { return d.s > o.s }
func (d Date) Equal(o Date) bool  { return d.s == o.s }
