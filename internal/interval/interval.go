// Package interval holds the calendar arithmetic behind rental admission:
// the overlap rule, the schedule conflict scan and free-window reporting.
package interval

import (
	"fmt"
	"sort"
)

// Range is a rental window from Start up to End. Two ranges that only share a
// boundary day do not overlap, so one rental can end on the day the next begins.
type Range struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewRange builds a Range, rejecting windows whose end is not after their start.
func NewRange(start, end Date) (Range, error) {
	if !start.Before(end) {
		return Range{}, fmt.Errorf("%w: %s..%s", ErrEmptyRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}

// Overlaps reports whether r and other share at least one day of true overlap.
func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// Equal reports whether both bounds match exactly.
func (r Range) Equal(other Range) bool {
	return r.Start == other.Start && r.End == other.End
}

// Span lets a bare Range be scanned by FindConflict.
func (r Range) Span() Range { return r }

// Overlaps is the function form of Range.Overlaps.
func Overlaps(a, b Range) bool {
	return a.Overlaps(b)
}

// Spanner is anything occupying a Range on a schedule.
type Spanner interface {
	Span() Range
}

// FindConflict returns the first entry of schedule overlapping r. The boolean is
// false when the schedule is free for r.
func FindConflict[T Spanner](schedule []T, r Range) (T, bool) {
	for _, entry := range schedule {
		if entry.Span().Overlaps(r) {
			return entry, true
		}
	}
	var none T
	return none, false
}

// FreeWindows returns the maximal sub-ranges of window not covered by busy,
// in chronological order.
func FreeWindows(busy []Range, window Range) []Range {
	if !window.Start.Before(window.End) {
		return nil
	}

	sorted := make([]Range, 0, len(busy))
	for _, b := range busy {
		if b.Overlaps(window) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var free []Range
	cursor := window.Start
	for _, b := range sorted {
		if cursor.Before(b.Start) {
			end := b.Start
			if window.End.Before(end) {
				end = window.End
			}
			free = append(free, Range{Start: cursor, End: end})
		}
		if cursor.Before(b.End) {
			cursor = b.End
		}
		if !cursor.Before(window.End) {
			return free
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Range{Start: cursor, End: window.End})
	}
	return free
}
