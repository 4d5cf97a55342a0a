package rental

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rentalnexus/internal/interval"

	"github.com/google/uuid"
)

// CreateItemRequest is the body of POST /items. pricePerDay may arrive as a
// JSON number or a numeric string.
type CreateItemRequest struct {
	ItemName    string      `json:"itemName"`
	Description string      `json:"description"`
	PricePerDay json.Number `json:"pricePerDay"`
}

// Validate checks required fields and returns the parsed price.
func (r CreateItemRequest) Validate() (float64, error) {
	if strings.TrimSpace(r.ItemName) == "" {
		return 0, invalid("itemName", "Invalid itemName")
	}
	if strings.TrimSpace(r.Description) == "" {
		return 0, invalid("description", "Invalid description")
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(r.PricePerDay.String()), 64)
	if err != nil || price <= 0 {
		return 0, invalid("pricePerDay", "Invalid pricePerDay")
	}
	return price, nil
}

// SearchCriteria filters items by name substring and price bounds. Empty
// fields do not filter.
type SearchCriteria struct {
	ItemName string
	MinPrice string
	MaxPrice string
}

// PriceFilter is a validated SearchCriteria.
type PriceFilter struct {
	Name string
	Min  *float64
	Max  *float64
}

func (c SearchCriteria) Validate() (PriceFilter, error) {
	f := PriceFilter{Name: strings.TrimSpace(c.ItemName)}
	if s := strings.TrimSpace(c.MinPrice); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return PriceFilter{}, invalid("minPrice", "Invalid minPrice - must be a number")
		}
		f.Min = &v
	}
	if s := strings.TrimSpace(c.MaxPrice); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return PriceFilter{}, invalid("maxPrice", "Invalid maxPrice - must be a number")
		}
		f.Max = &v
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return PriceFilter{}, invalid("minPrice", "minPrice cannot be greater than maxPrice")
	}
	return f, nil
}

// Match reports whether item passes the filter. Names match case-insensitively
// on substring; price bounds are inclusive.
func (f PriceFilter) Match(item *Item) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(item.ItemName), strings.ToLower(f.Name)) {
		return false
	}
	if f.Min != nil && item.PricePerDay < *f.Min {
		return false
	}
	if f.Max != nil && item.PricePerDay > *f.Max {
		return false
	}
	return true
}

// DateInput is a loosely typed date as clients send it: a YYYY-MM-DD,
// MM-DD-YYYY or RFC 3339 string, or epoch milliseconds.
type DateInput struct {
	text     string
	millis   int64
	isMillis bool
}

// DateText wraps a textual date.
func DateText(s string) DateInput { return DateInput{text: strings.TrimSpace(s)} }

// DateMillis wraps an epoch milliseconds timestamp.
func DateMillis(ms int64) DateInput { return DateInput{millis: ms, isMillis: true} }

// IsZero reports whether no date was supplied.
func (d DateInput) IsZero() bool { return d.text == "" && !d.isMillis }

func (d DateInput) String() string {
	if d.isMillis {
		return strconv.FormatInt(d.millis, 10)
	}
	return d.text
}

var textLayouts = []string{interval.Layout, "01-02-2006", time.RFC3339, time.RFC3339Nano}

// Resolve converts the input to a calendar date in loc.
func (d DateInput) Resolve(loc *time.Location) (interval.Date, error) {
	if loc == nil {
		loc = time.UTC
	}
	if d.isMillis {
		return interval.DateOf(time.UnixMilli(d.millis).In(loc)), nil
	}
	for _, layout := range textLayouts {
		t, err := time.ParseInLocation(layout, d.text, loc)
		if err == nil {
			return interval.DateOf(t.In(loc)), nil
		}
	}
	return "", fmt.Errorf("%w: %q", interval.ErrInvalidDate, d.text)
}

func (d *DateInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = DateInput{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = DateText(s)
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("date must be a string or epoch milliseconds: %s", b)
	}
	*d = DateMillis(ms)
	return nil
}

func (d DateInput) MarshalJSON() ([]byte, error) {
	switch {
	case d.isMillis:
		return []byte(strconv.FormatInt(d.millis, 10)), nil
	case d.text == "":
		return []byte("null"), nil
	default:
		return json.Marshal(d.text)
	}
}

// RentRequest is the body of PUT /items/rent. A missing rentalStart means
// today.
type RentRequest struct {
	ID          string    `json:"id"`
	RentalStart DateInput `json:"rentalStart"`
	RentalEnd   DateInput `json:"rentalEnd"`
}

// Validate resolves the requested window against today. The window it returns
// never ends on or before its start and never starts in the past.
func (r RentRequest) Validate(today interval.Date, loc *time.Location) (uuid.UUID, interval.Range, error) {
	id, err := requireItemID(r.ID)
	if err != nil {
		return uuid.Nil, interval.Range{}, err
	}

	start := today
	if !r.RentalStart.IsZero() {
		if start, err = r.RentalStart.Resolve(loc); err != nil {
			return uuid.Nil, interval.Range{}, invalid("rentalStart", "Invalid rentalStart - %s", r.RentalStart)
		}
	}
	if r.RentalEnd.IsZero() {
		return uuid.Nil, interval.Range{}, invalid("rentalEnd", "Must provide rental end date")
	}
	end, err := r.RentalEnd.Resolve(loc)
	if err != nil {
		return uuid.Nil, interval.Range{}, invalid("rentalEnd", "Invalid rentalEnd - %s", r.RentalEnd)
	}

	if start.Before(today) {
		return uuid.Nil, interval.Range{}, invalid("rentalStart", "Rental start date cannot be in the past")
	}
	window, err := interval.NewRange(start, end)
	if err != nil {
		return uuid.Nil, interval.Range{}, invalid("rentalEnd", "Rental end date must be after start date")
	}
	return id, window, nil
}

// ReturnRequest is the body of PUT /items/return.
type ReturnRequest struct {
	ID string `json:"id"`
}

func (r ReturnRequest) Validate() (uuid.UUID, error) {
	return requireItemID(r.ID)
}

// requireItemID rejects a blank id as invalid. An id that is present but not a
// UUID cannot name any item, so it reads as not found.
func requireItemID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, invalid("id", "Invalid id - must provide a valid item id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrItemNotFound, raw)
	}
	return id, nil
}
