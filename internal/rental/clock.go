package rental

import (
	"time"

	"rentalnexus/internal/interval"
)

// Clock provides the current calendar date as YYYY-MM-DD.
type Clock interface {
	Today() string
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	loc *time.Location
	now func() time.Time
}

func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{loc: loc, now: time.Now}
}

func (c SystemClock) Today() string {
	now := c.now
	if now == nil {
		now = time.Now
	}
	return now().In(c.Location()).Format(interval.Layout)
}

// Location is the zone calendar dates are computed in.
func (c SystemClock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// FixedClock always reports the same day.
type FixedClock string

func (c FixedClock) Today() string { return string(c) }

// clockLocation returns the zone of clocks that expose one, UTC otherwise.
func clockLocation(c Clock) *time.Location {
	if l, ok := c.(interface{ Location() *time.Location }); ok {
		return l.Location()
	}
	return time.UTC
}
