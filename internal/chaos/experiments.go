package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rentalnexus/internal/interval"
	"rentalnexus/internal/rental"

	"github.com/google/uuid"
)

// RentalAPI is the part of the rental client the experiments drive.
type RentalAPI interface {
	CreateItem(ctx context.Context, name, description string, pricePerDay float64) (*rental.Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*rental.Item, error)
	RentItem(ctx context.Context, req rental.RentRequest) (*rental.RentalDetails, string, error)
	ReturnItem(ctx context.Context, id uuid.UUID) (*rental.ReturnDetails, error)
}

// RegisterRentalExperiments registers the standard rental game day.
func (e *Engine) RegisterRentalExperiments(api RentalAPI, concurrency int, observe time.Duration) {
	e.RegisterExperiment(ConcurrentRentRace(api, concurrency, observe))
	e.RegisterExperiment(ConcurrentReturnRace(api, concurrency, observe))
}

// targetItem lazily creates the single item an experiment works on.
type targetItem struct {
	api  RentalAPI
	name string
	once sync.Once
	id   uuid.UUID
	err  error
}

func (p *targetItem) get(ctx context.Context) (*rental.Item, error) {
	p.once.Do(func() {
		item, err := p.api.CreateItem(ctx, p.name, "chaos target item", 1)
		if err != nil {
			p.err = fmt.Errorf("create target item: %w", err)
			return
		}
		p.id = item.ID
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.api.GetItem(ctx, p.id)
}

// OverlappingPairs counts pairs of committed windows on item that overlap.
// A healthy item always has zero.
func OverlappingPairs(item *rental.Item) int {
	committed := item.Committed()
	n := 0
	for i := range committed {
		for j := i + 1; j < len(committed); j++ {
			if interval.Overlaps(committed[i], committed[j]) {
				n++
			}
		}
	}
	return n
}

func doubleBookings(target *targetItem) Metric {
	return Metric{
		Name: "double_bookings",
		Query: func(ctx context.Context) (float64, error) {
			item, err := target.get(ctx)
			if err != nil {
				return 0, err
			}
			return float64(OverlappingPairs(item)), nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// burst runs fn concurrently n times and returns how many calls succeeded,
// failed with an expected rejection, or failed otherwise.
func burst(ctx context.Context, n int, expected error, fn func(context.Context) error) (ok, rejected int64, unexpected error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(ctx)
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.Is(err, expected):
				atomic.AddInt64(&rejected, 1)
			default:
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	return ok, rejected, errors.Join(errs...)
}

// ConcurrentRentRace fires concurrent rent requests for one future window on
// the same item. Exactly one may be admitted.
func ConcurrentRentRace(api RentalAPI, concurrency int, observe time.Duration) Experiment {
	target := &targetItem{api: api, name: "chaos-rent-race"}
	var admitted atomic.Int64

	return Experiment{
		Name:       "concurrent-rent-race",
		Hypothesis: "Concurrent rent requests for the same window never double-book an item",
		SteadyState: []Metric{
			doubleBookings(target),
			{
				Name:      "admitted_rentals",
				Query:     func(context.Context) (float64, error) { return float64(admitted.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "rental-service",
				Parameters: map[string]any{
					"concurrency": concurrency,
				},
				Execute: func(ctx context.Context) error {
					item, err := target.get(ctx)
					if err != nil {
						return err
					}
					start := interval.DateOf(time.Now().AddDate(1, 0, 0))
					req := rental.RentRequest{
						ID:          item.ID.String(),
						RentalStart: rental.DateText(start.String()),
						RentalEnd:   rental.DateText(start.AddDays(5).String()),
					}
					ok, _, err := burst(ctx, concurrency, rental.ErrScheduleConflict, func(ctx context.Context) error {
						_, _, err := api.RentItem(ctx, req)
						return err
					})
					admitted.Add(ok)
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "double_bookings",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No committed windows may overlap",
			},
			{
				Metric:    "admitted_rentals",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one concurrent rent request should be admitted",
			},
		},
		Duration:    observe,
		BlastRadius: 0.1,
	}
}

// ConcurrentReturnRace rents an item for today and fires concurrent returns.
// Exactly one return may be admitted and the item must end up available.
func ConcurrentReturnRace(api RentalAPI, concurrency int, observe time.Duration) Experiment {
	target := &targetItem{api: api, name: "chaos-return-race"}
	var admitted atomic.Int64

	return Experiment{
		Name:       "concurrent-return-race",
		Hypothesis: "Concurrent returns of one rental are admitted exactly once",
		SteadyState: []Metric{
			doubleBookings(target),
			{
				Name:      "admitted_returns",
				Query:     func(context.Context) (float64, error) { return float64(admitted.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
			{
				Name: "item_rented",
				Query: func(ctx context.Context) (float64, error) {
					item, err := target.get(ctx)
					if err != nil {
						return 0, err
					}
					if item.IsRented() && admitted.Load() > 0 {
						return 1, nil
					}
					return 0, nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "rent",
				Target: "rental-service",
				Execute: func(ctx context.Context) error {
					item, err := target.get(ctx)
					if err != nil {
						return err
					}
					// rentalStart is omitted so the service uses its own today.
					_, _, err = api.RentItem(ctx, rental.RentRequest{
						ID:        item.ID.String(),
						RentalEnd: rental.DateText(interval.DateOf(time.Now().AddDate(0, 0, 7)).String()),
					})
					return err
				},
			},
			{
				Type:   "concurrent-requests",
				Target: "rental-service",
				Parameters: map[string]any{
					"concurrency": concurrency,
				},
				Execute: func(ctx context.Context) error {
					item, err := target.get(ctx)
					if err != nil {
						return err
					}
					ok, _, err := burst(ctx, concurrency, rental.ErrNotCurrentlyRented, func(ctx context.Context) error {
						_, err := api.ReturnItem(ctx, item.ID)
						return err
					})
					admitted.Add(ok)
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "admitted_returns",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one concurrent return should be admitted",
			},
			{
				Metric:    "item_rented",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Item must be available after the return",
			},
		},
		Duration:    observe,
		BlastRadius: 0.1,
	}
}
