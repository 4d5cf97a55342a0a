package rental_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"rentalnexus/internal/interval"
	"rentalnexus/internal/rental"
	"rentalnexus/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, today string) rental.Service {
	t.Helper()
	return rental.NewService(memory.NewStore(), rental.FixedClock(today), rental.ULIDGenerator{}, discardLogger())
}

func createItem(t *testing.T, svc rental.Service, name string, price string) *rental.Item {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), rental.CreateItemRequest{
		ItemName:    name,
		Description: name + " for rent",
		PricePerDay: jsonNumber(price),
	})
	require.NoError(t, err)
	return item
}

func TestService_RentScheduleAndReturn(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, "2024-06-01")
	item := createItem(t, svc, "Tent", "12.5")

	details, err := svc.RentItem(ctx, rental.RentRequest{ID: item.ID.String(), RentalEnd: rental.DateText("2024-06-05")})
	require.NoError(t, err)
	assert.True(t, details.Immediate)
	assert.Equal(t, interval.Date("2024-06-01"), details.RentalStart)

	details, err = svc.RentItem(ctx, rental.RentRequest{
		ID:          item.ID.String(),
		RentalStart: rental.DateText("2024-07-01"),
		RentalEnd:   rental.DateText("2024-07-05"),
	})
	require.NoError(t, err)
	assert.False(t, details.Immediate)
	assert.NotEmpty(t, details.RentalID)

	_, err = svc.RentItem(ctx, rental.RentRequest{
		ID:          item.ID.String(),
		RentalStart: rental.DateText("2024-07-03"),
		RentalEnd:   rental.DateText("2024-07-10"),
	})
	assert.ErrorIs(t, err, rental.ErrScheduleConflict)

	ret, err := svc.ReturnItem(ctx, rental.ReturnRequest{ID: item.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, interval.Date("2024-06-01"), ret.ReturnDate)

	_, err = svc.ReturnItem(ctx, rental.ReturnRequest{ID: item.ID.String()})
	assert.ErrorIs(t, err, rental.ErrNotCurrentlyRented)

	stored, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRented())
	require.Len(t, stored.RentalSchedule, 1)
	assert.Equal(t, details.RentalID, stored.RentalSchedule[0].RentalID)
	assert.Equal(t, 4, stored.Version)
}

func TestService_UnknownItem(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, "2024-06-01")

	_, err := svc.RentItem(ctx, rental.RentRequest{ID: uuid.NewString(), RentalEnd: rental.DateText("2024-06-05")})
	assert.ErrorIs(t, err, rental.ErrItemNotFound)

	_, err = svc.ReturnItem(ctx, rental.ReturnRequest{ID: uuid.NewString()})
	assert.ErrorIs(t, err, rental.ErrItemNotFound)
}

func TestService_BrokenClock(t *testing.T) {
	svc := newTestService(t, "06/01/2024")
	item := createItem(t, svc, "Tent", "10")

	_, err := svc.RentItem(context.Background(), rental.RentRequest{ID: item.ID.String(), RentalEnd: rental.DateText("2024-06-05")})
	assert.ErrorIs(t, err, rental.ErrBrokenClock)
}

func TestService_SearchItems(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, "2024-06-01")
	createItem(t, svc, "Camping Tent", "15")
	createItem(t, svc, "Kayak", "40")
	createItem(t, svc, "Tent Stakes", "2")

	found, err := svc.SearchItems(ctx, rental.SearchCriteria{ItemName: "tent"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = svc.SearchItems(ctx, rental.SearchCriteria{MinPrice: "10"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.ElementsMatch(t, []string{"Camping Tent", "Kayak"}, []string{found[0].ItemName, found[1].ItemName})

	found, err = svc.SearchItems(ctx, rental.SearchCriteria{ItemName: "bicycle"})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = svc.SearchItems(ctx, rental.SearchCriteria{MinPrice: "5", MaxPrice: "1"})
	var ve *rental.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestService_Availability(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, "2024-06-01")
	item := createItem(t, svc, "Tent", "10")

	_, err := svc.RentItem(ctx, rental.RentRequest{ID: item.ID.String(), RentalEnd: rental.DateText("2024-06-05")})
	require.NoError(t, err)
	_, err = svc.RentItem(ctx, rental.RentRequest{
		ID:          item.ID.String(),
		RentalStart: rental.DateText("2024-06-10"),
		RentalEnd:   rental.DateText("2024-06-12"),
	})
	require.NoError(t, err)

	report, err := svc.Availability(ctx, item.ID, rental.DateInput{}, rental.DateText("2024-06-20"))
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01..2024-06-20", report.Window.String())
	require.Len(t, report.Busy, 2)
	require.Len(t, report.Free, 2)
	assert.Equal(t, "2024-06-05..2024-06-10", report.Free[0].String())
	assert.Equal(t, "2024-06-12..2024-06-20", report.Free[1].String())
	require.NotNil(t, report.AvailableFrom)
	assert.Equal(t, interval.Date("2024-06-05"), *report.AvailableFrom)

	report, err = svc.Availability(ctx, item.ID, rental.DateText("2024-06-01"), rental.DateInput{})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01..2024-07-01", report.Window.String())

	_, err = svc.Availability(ctx, item.ID, rental.DateText("2024-06-10"), rental.DateText("2024-06-10"))
	var ve *rental.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestService_ConcurrentSameWindowAdmitsOne(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, "2024-06-01")
	item := createItem(t, svc, "Tent", "10")

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		admitted  int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RentItem(ctx, rental.RentRequest{
				ID:          item.ID.String(),
				RentalStart: rental.DateText("2024-06-10"),
				RentalEnd:   rental.DateText("2024-06-15"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, rental.ErrScheduleConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, callers-1, conflicts)

	stored, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, stored.RentalSchedule, 1)
}
