package rental

import (
	"rentalnexus/internal/interval"
)

// Engine decides whether rent and return requests are admissible for one
// item record and applies the resulting transition. It keeps no state; the
// caller must hold the item exclusively for the whole evaluate and apply call.
type Engine struct {
	ids IDGenerator
}

// NewEngine creates an engine that names new reservations with ids.
func NewEngine(ids IDGenerator) *Engine {
	return &Engine{ids: ids}
}

// EvaluateRent decides a rent request without touching the item. The
// requested window must already be validated: end after start, start not
// before today.
//
// A request starting today activates immediately. Any other request is
// appended to the schedule. A same-day request whose window exactly matches a
// scheduled entry activates that entry instead of conflicting with it.
func (e *Engine) EvaluateRent(item *Item, requested interval.Range, today interval.Date) (Decision, error) {
	startsToday := requested.Start == today

	if startsToday && item.IsRented() {
		return Decision{}, ErrOccupiedToday
	}

	schedule := item.RentalSchedule
	if startsToday {
		schedule = exceptWindow(schedule, requested)
	}
	if hit, ok := interval.FindConflict(schedule, requested); ok {
		return Decision{}, scheduleConflict(hit.Span())
	}
	if active, ok := item.Active(); ok && item.IsRented() && active.Overlaps(requested) {
		return Decision{}, scheduleConflict(active)
	}

	if startsToday {
		return Decision{Kind: DecisionActivate, Window: requested}, nil
	}
	return Decision{
		Kind:     DecisionSchedule,
		Window:   requested,
		RentalID: e.ids.NewRentalID(),
	}, nil
}

// Rent evaluates a rent request and, when admitted, applies it to item.
func (e *Engine) Rent(item *Item, requested interval.Range, today interval.Date) (Decision, error) {
	d, err := e.EvaluateRent(item, requested, today)
	if err != nil {
		return Decision{}, err
	}
	if err := item.Apply(d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// EvaluateReturn decides a return request without touching the item. The
// schedule plays no part: a return only ends the active occupancy.
func (e *Engine) EvaluateReturn(item *Item) (Decision, error) {
	if !item.IsRented() {
		return Decision{}, ErrNotCurrentlyRented
	}
	active, ok := item.Active()
	if !ok {
		// Rented with no occupancy window is only reachable through a
		// corrupted record.
		return Decision{}, ErrAlreadyReturned
	}
	return Decision{Kind: DecisionReturn, Window: active}, nil
}

// Return evaluates a return request and, when admitted, applies it to item.
func (e *Engine) Return(item *Item) (Decision, error) {
	d, err := e.EvaluateReturn(item)
	if err != nil {
		return Decision{}, err
	}
	if err := item.Apply(d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

func exceptWindow(schedule []ReservationEntry, window interval.Range) []ReservationEntry {
	out := make([]ReservationEntry, 0, len(schedule))
	for _, e := range schedule {
		if !e.Span().Equal(window) {
			out = append(out, e)
		}
	}
	return out
}
