package clients

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rentalnexus/internal/rental"
	"rentalnexus/internal/storage/memory"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRentalServer(t *testing.T, today string) *httptest.Server {
	t.Helper()
	svc := rental.NewService(memory.NewStore(), rental.FixedClock(today), rental.ULIDGenerator{}, quietLogger())
	r := chi.NewRouter()
	rental.NewHandler(svc, quietLogger()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRentalClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newRentalServer(t, "2024-06-01")
	c := NewRentalClient(srv.URL, time.Second, DefaultBreakerConfig(), quietLogger())

	item, err := c.CreateItem(ctx, "Tent", "Four person tent", 12.5)
	require.NoError(t, err)
	assert.Equal(t, "Tent", item.ItemName)

	details, msg, err := c.RentItem(ctx, rental.RentRequest{ID: item.ID.String(), RentalEnd: rental.DateText("2024-06-05")})
	require.NoError(t, err)
	assert.Equal(t, "Item rented successfully", msg)
	assert.True(t, details.Immediate)

	_, msg, err = c.RentItem(ctx, rental.RentRequest{
		ID:          item.ID.String(),
		RentalStart: rental.DateText("2024-07-01"),
		RentalEnd:   rental.DateText("2024-07-05"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Item rental scheduled successfully", msg)

	_, _, err = c.RentItem(ctx, rental.RentRequest{
		ID:          item.ID.String(),
		RentalStart: rental.DateText("2024-07-02"),
		RentalEnd:   rental.DateText("2024-07-03"),
	})
	assert.ErrorIs(t, err, rental.ErrScheduleConflict)

	got, err := c.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRented())
	assert.Len(t, got.RentalSchedule, 1)

	report, err := c.Availability(ctx, item.ID, "", "2024-07-10")
	require.NoError(t, err)
	require.NotNil(t, report.AvailableFrom)
	assert.Equal(t, "2024-06-05", report.AvailableFrom.String())

	ret, err := c.ReturnItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", ret.ReturnDate.String())

	_, err = c.ReturnItem(ctx, item.ID)
	assert.ErrorIs(t, err, rental.ErrNotCurrentlyRented)

	_, err = c.GetItem(ctx, uuid.New())
	assert.ErrorIs(t, err, rental.ErrItemNotFound)

	found, err := c.SearchItems(ctx, rental.SearchCriteria{ItemName: "tent"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = c.SearchItems(ctx, rental.SearchCriteria{ItemName: "bicycle"})
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.Equal(t, gobreaker.StateClosed, c.BreakerState(), "business rejections must not trip the breaker")
}

func TestRentalClient_BreakerOpensOnServerFaults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"data":null,"message":"Internal server error","code":"INTERNAL"}`))
	}))
	t.Cleanup(srv.Close)

	bc := DefaultBreakerConfig()
	bc.FailureThreshold = 3
	bc.Timeout = time.Hour
	c := NewRentalClient(srv.URL, time.Second, bc, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := c.GetItem(context.Background(), uuid.New())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err := c.GetItem(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), hits.Load(), "open breaker must not reach the server")
}
