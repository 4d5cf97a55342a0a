package rental

import (
	"encoding/json"
	"fmt"
	"time"

	"rentalnexus/internal/interval"

	"github.com/google/uuid"
)

// State is the occupancy state of an item.
type State string

const (
	StateAvailable State = "available"
	StateRented    State = "rented"
)

// ReservationEntry is a committed future rental that has not been activated yet.
type ReservationEntry struct {
	RentalID    string        `json:"rentalId"`
	RentalStart interval.Date `json:"rentalStart"`
	RentalEnd   interval.Date `json:"rentalEnd"`
}

// Span returns the reserved window.
func (e ReservationEntry) Span() interval.Range {
	return interval.Range{Start: e.RentalStart, End: e.RentalEnd}
}

// Item represents a rentable item together with its active occupancy and its
// schedule of future reservations.
type Item struct {
	ID             uuid.UUID          `json:"id"`
	ItemName       string             `json:"itemName"`
	Description    string             `json:"description"`
	PricePerDay    float64            `json:"pricePerDay"`
	State          State              `json:"state"`
	RentalStart    *interval.Date     `json:"rentalStart"`
	RentalEnd      *interval.Date     `json:"rentalEnd"`
	RentalSchedule []ReservationEntry `json:"rentalSchedule"`
	Version        int                `json:"version"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// NewItem returns an available item with an empty schedule.
func NewItem(id uuid.UUID, name, description string, pricePerDay float64, now time.Time) *Item {
	return &Item{
		ID:             id,
		ItemName:       name,
		Description:    description,
		PricePerDay:    pricePerDay,
		State:          StateAvailable,
		RentalSchedule: []ReservationEntry{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsRented reports whether the item is in an active occupancy period.
func (it *Item) IsRented() bool {
	return it.State == StateRented
}

// Active returns the active occupancy window, if both bounds are recorded.
func (it *Item) Active() (interval.Range, bool) {
	if it.RentalStart == nil || it.RentalEnd == nil {
		return interval.Range{}, false
	}
	return interval.Range{Start: *it.RentalStart, End: *it.RentalEnd}, true
}

// Committed returns every window the item is committed to: the active
// occupancy followed by the scheduled reservations.
func (it *Item) Committed() []interval.Range {
	windows := make([]interval.Range, 0, len(it.RentalSchedule)+1)
	if active, ok := it.Active(); ok {
		windows = append(windows, active)
	}
	for _, e := range it.RentalSchedule {
		windows = append(windows, e.Span())
	}
	return windows
}

// Clone returns a deep copy safe to mutate independently.
func (it *Item) Clone() *Item {
	c := *it
	if it.RentalStart != nil {
		start := *it.RentalStart
		c.RentalStart = &start
	}
	if it.RentalEnd != nil {
		end := *it.RentalEnd
		c.RentalEnd = &end
	}
	c.RentalSchedule = make([]ReservationEntry, len(it.RentalSchedule))
	copy(c.RentalSchedule, it.RentalSchedule)
	return &c
}

// Apply performs the mutation a Decision describes. It is the only place an
// item's rental fields change, both when a decision is taken and when stored
// decisions are replayed.
func (it *Item) Apply(d Decision) error {
	switch d.Kind {
	case DecisionActivate:
		kept := make([]ReservationEntry, 0, len(it.RentalSchedule))
		for _, e := range it.RentalSchedule {
			if !e.Span().Equal(d.Window) {
				kept = append(kept, e)
			}
		}
		start, end := d.Window.Start, d.Window.End
		it.RentalSchedule = kept
		it.State = StateRented
		it.RentalStart = &start
		it.RentalEnd = &end
	case DecisionSchedule:
		it.RentalSchedule = append(it.RentalSchedule, ReservationEntry{
			RentalID:    d.RentalID,
			RentalStart: d.Window.Start,
			RentalEnd:   d.Window.End,
		})
	case DecisionReturn:
		it.State = StateAvailable
		it.RentalStart = nil
		it.RentalEnd = nil
	default:
		return fmt.Errorf("unknown decision kind %q", d.Kind)
	}
	return nil
}

// MarshalJSON adds the isRented / isReturned flags existing clients read.
// Both derive from State, so they can never disagree.
func (it Item) MarshalJSON() ([]byte, error) {
	type plain Item
	return json.Marshal(struct {
		plain
		IsRented   bool `json:"isRented"`
		IsReturned bool `json:"isReturned"`
	}{
		plain:      plain(it),
		IsRented:   it.IsRented(),
		IsReturned: !it.IsRented(),
	})
}

// DecisionKind names an admitted transition.
type DecisionKind string

const (
	DecisionActivate DecisionKind = "activate"
	DecisionSchedule DecisionKind = "schedule"
	DecisionReturn   DecisionKind = "return"
)

// Event types persisted per item.
const (
	EventItemCreated     = "ItemCreated"
	EventItemRented      = "ItemRented"
	EventRentalScheduled = "RentalScheduled"
	EventItemReturned    = "ItemReturned"
)

// EventType returns the persisted event type for a decision kind.
func (k DecisionKind) EventType() string {
	switch k {
	case DecisionActivate:
		return EventItemRented
	case DecisionSchedule:
		return EventRentalScheduled
	case DecisionReturn:
		return EventItemReturned
	default:
		return ""
	}
}

// DecisionKindForEvent is the inverse of DecisionKind.EventType.
func DecisionKindForEvent(eventType string) (DecisionKind, bool) {
	switch eventType {
	case EventItemRented:
		return DecisionActivate, true
	case EventRentalScheduled:
		return DecisionSchedule, true
	case EventItemReturned:
		return DecisionReturn, true
	default:
		return "", false
	}
}

// Decision is an admitted rent or return transition for one item.
type Decision struct {
	Kind     DecisionKind   `json:"kind"`
	Window   interval.Range `json:"window"`
	RentalID string         `json:"rentalId,omitempty"`
}

// ItemCreatedEvent is recorded when a new item is added.
type ItemCreatedEvent struct {
	ID          uuid.UUID `json:"id"`
	ItemName    string    `json:"itemName"`
	Description string    `json:"description"`
	PricePerDay float64   `json:"pricePerDay"`
	CreatedAt   time.Time `json:"createdAt"`
}
