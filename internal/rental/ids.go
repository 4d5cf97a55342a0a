package rental

import "github.com/oklog/ulid/v2"

// IDGenerator names new reservation entries.
type IDGenerator interface {
	NewRentalID() string
}

// ULIDGenerator issues time-ordered ULIDs, monotonic within a process.
type ULIDGenerator struct{}

func (ULIDGenerator) NewRentalID() string {
	return ulid.Make().String()
}
