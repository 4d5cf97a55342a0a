package rental

import (
	"context"

	"rentalnexus/internal/interval"

	"github.com/google/uuid"
)

// Service defines the interface for the rental service.
type Service interface {
	CreateItem(ctx context.Context, req CreateItemRequest) (*Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	SearchItems(ctx context.Context, criteria SearchCriteria) ([]*Item, error)
	RentItem(ctx context.Context, req RentRequest) (*RentalDetails, error)
	ReturnItem(ctx context.Context, req ReturnRequest) (*ReturnDetails, error)
	Availability(ctx context.Context, id uuid.UUID, from, to DateInput) (*AvailabilityReport, error)
}

// UpdateFunc decides a transition for the item it is handed and applies it.
// A returned error leaves the stored item untouched.
type UpdateFunc func(item *Item) (Decision, error)

// Repository stores items. Update must run fn with exclusive access to the
// item for the whole read, decide and write sequence, and persist the result
// only when fn succeeds. Implementations may call fn more than once when a
// concurrent writer interferes; fn must be safe to re-run on a fresh copy.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*Item, error)
}

// RentalDetails describes an admitted rent request.
type RentalDetails struct {
	ItemID      uuid.UUID     `json:"itemId"`
	ItemName    string        `json:"itemName"`
	RentalStart interval.Date `json:"rentalStart"`
	RentalEnd   interval.Date `json:"rentalEnd"`
	// Immediate is true when the rental activated today rather than being
	// added to the schedule.
	Immediate bool   `json:"immediate"`
	RentalID  string `json:"rentalId,omitempty"`
}

// ReturnDetails describes an admitted return.
type ReturnDetails struct {
	ItemID     uuid.UUID     `json:"itemId"`
	ItemName   string        `json:"itemName"`
	ReturnDate interval.Date `json:"returnDate"`
}

// AvailabilityReport lists the committed and free windows of an item within
// a requested window.
type AvailabilityReport struct {
	ItemID        uuid.UUID        `json:"itemId"`
	Window        interval.Range   `json:"window"`
	Busy          []interval.Range `json:"busy"`
	Free          []interval.Range `json:"free"`
	AvailableFrom *interval.Date   `json:"availableFrom"`
}
