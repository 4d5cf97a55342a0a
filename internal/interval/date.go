package interval

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the calendar date layout used by the rental API and storage.
const Layout = "2006-01-02"

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrEmptyRange  = errors.New("range end must be after start")
)

// Date is a calendar day in YYYY-MM-DD form. Because the layout is fixed width,
// comparing two Dates as strings compares them chronologically.
type Date string

// ParseDate validates s against Layout and returns it normalized.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(Layout))
}

func (d Date) String() string { return string(d) }

func (d Date) IsZero() bool { return d == "" }

func (d Date) Before(other Date) bool { return d < other }

func (d Date) After(other Date) bool { return d > other }

// Time returns midnight UTC of d, or the zero time if d is not a valid date.
func (d Date) Time() time.Time {
	t, err := time.Parse(Layout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the date n days after d (before, for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}
