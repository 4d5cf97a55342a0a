package rental

import (
	"errors"
	"fmt"

	"rentalnexus/internal/interval"
)

// Kind classifies a rejected rent or return request.
type Kind string

const (
	KindOccupiedToday      Kind = "OCCUPIED_TODAY"
	KindScheduleConflict   Kind = "SCHEDULE_CONFLICT"
	KindNotCurrentlyRented Kind = "NOT_CURRENTLY_RENTED"
	KindAlreadyReturned    Kind = "ALREADY_RETURNED"
)

// RejectionError is a definitive business answer to a request. It is never
// retried.
type RejectionError struct {
	Kind    Kind
	Message string
	// Window is the committed window the request collided with, when known.
	Window *interval.Range
}

func (e *RejectionError) Error() string {
	if e.Window != nil {
		return fmt.Sprintf("%s (%s)", e.Message, e.Window)
	}
	return e.Message
}

// Is matches any RejectionError of the same Kind, so callers can test
// errors.Is(err, ErrScheduleConflict).
func (e *RejectionError) Is(target error) bool {
	var t *RejectionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrOccupiedToday = &RejectionError{
		Kind:    KindOccupiedToday,
		Message: "Item is currently rented and not available",
	}
	ErrScheduleConflict = &RejectionError{
		Kind:    KindScheduleConflict,
		Message: "Item is already scheduled for rental during this period",
	}
	ErrNotCurrentlyRented = &RejectionError{
		Kind:    KindNotCurrentlyRented,
		Message: "Item is not currently rented",
	}
	ErrAlreadyReturned = &RejectionError{
		Kind:    KindAlreadyReturned,
		Message: "Item has already been returned",
	}
)

func scheduleConflict(window interval.Range) error {
	return &RejectionError{
		Kind:    KindScheduleConflict,
		Message: ErrScheduleConflict.Message,
		Window:  &window,
	}
}

var (
	ErrItemNotFound = errors.New("item not found")
	ErrBrokenClock  = errors.New("clock returned an invalid date")
	ErrContention   = errors.New("item is being modified concurrently, try again")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
