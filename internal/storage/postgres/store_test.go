package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"rentalnexus/internal/interval"
	"rentalnexus/internal/rental"
	"rentalnexus/pkg/eventstore"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestReplay(t *testing.T) {
	id := uuid.New()
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	window := interval.Range{Start: "2024-06-01", End: "2024-06-05"}
	future := interval.Range{Start: "2024-07-01", End: "2024-07-05"}

	events := []eventstore.Event{
		{EventType: rental.EventItemCreated, Version: 1, CreatedAt: created, EventData: mustJSON(t, rental.ItemCreatedEvent{
			ID: id, ItemName: "Tent", Description: "Four person tent", PricePerDay: 12.5, CreatedAt: created,
		})},
		{EventType: rental.EventItemRented, Version: 2, EventData: mustJSON(t, rental.Decision{Window: window})},
		{EventType: rental.EventRentalScheduled, Version: 3, EventData: mustJSON(t, rental.Decision{Window: future, RentalID: "r-1"})},
		{EventType: rental.EventItemReturned, Version: 4, EventData: mustJSON(t, rental.Decision{Window: window})},
	}

	item, err := replay(nil, events)
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, 4, item.Version)
	assert.False(t, item.IsRented())
	require.Len(t, item.RentalSchedule, 1)
	assert.Equal(t, "r-1", item.RentalSchedule[0].RentalID)

	partial, err := replay(nil, events[:2])
	require.NoError(t, err)
	assert.True(t, partial.IsRented())
	assert.Equal(t, 2, partial.Version)
}

func TestReplay_Errors(t *testing.T) {
	_, err := replay(nil, nil)
	assert.ErrorIs(t, err, eventstore.ErrAggregateNotFound)

	_, err = replay(nil, []eventstore.Event{{EventType: rental.EventItemReturned, Version: 1, EventData: json.RawMessage(`{}`)}})
	assert.Error(t, err)

	item := rental.NewItem(uuid.New(), "Tent", "Tent", 1, time.Now())
	_, err = replay(item, []eventstore.Event{{EventType: "ItemPainted", Version: 2, EventData: json.RawMessage(`{}`)}})
	assert.Error(t, err)
}

func TestReplay_FromSnapshot(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	active := interval.Range{Start: "2024-06-01", End: "2024-06-05"}
	future := interval.Range{Start: "2024-07-01", End: "2024-07-05"}

	saved := rental.NewItem(uuid.New(), "Tent", "Four person tent", 12.5, created)
	require.NoError(t, saved.Apply(rental.Decision{Kind: rental.DecisionActivate, Window: active}))
	require.NoError(t, saved.Apply(rental.Decision{Kind: rental.DecisionSchedule, Window: future, RentalID: "r-1"}))
	saved.Version = 3
	saved.UpdatedAt = created

	seed, err := fromSnapshot(&eventstore.Snapshot{
		AggregateID:   saved.ID,
		AggregateType: AggregateType,
		Version:       3,
		State:         mustJSON(t, saved),
	})
	require.NoError(t, err)
	assert.Equal(t, saved, seed, "snapshot decodes to the saved item")

	tail := []eventstore.Event{
		{EventType: rental.EventItemReturned, Version: 4, EventData: mustJSON(t, rental.Decision{Window: active})},
		{EventType: rental.EventItemRented, Version: 5, EventData: mustJSON(t, rental.Decision{Window: future})},
	}
	item, err := replay(seed, tail)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Version)
	assert.True(t, item.IsRented())
	require.NotNil(t, item.RentalStart)
	assert.Equal(t, future.Start, *item.RentalStart)
	assert.Equal(t, future.End, *item.RentalEnd)
	assert.Empty(t, item.RentalSchedule, "activation consumes the scheduled entry")
}

func TestFromSnapshot_Corrupt(t *testing.T) {
	_, err := fromSnapshot(&eventstore.Snapshot{AggregateID: uuid.New(), Version: 2, State: json.RawMessage(`{"rentalStart":5}`)})
	assert.ErrorContains(t, err, "decode snapshot")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getenv("PGHOST", "localhost"),
		getenv("PGPORT", "5432"),
		getenv("PGUSER", "user"),
		getenv("PGPASSWORD", "password"),
		getenv("PGDATABASE", "testdb"),
	)
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	es := eventstore.NewEventStore(db)
	require.NoError(t, es.EnsureSchema(context.Background()))
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(es, opts...)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, WithSnapshotEvery(2))
	engine := rental.NewEngine(rental.ULIDGenerator{})

	item := rental.NewItem(uuid.New(), "Tent", "Four person tent", 12.5, time.Now().UTC())
	require.NoError(t, store.Create(ctx, item))

	_, err := store.Update(ctx, item.ID, func(it *rental.Item) (rental.Decision, error) {
		return engine.Rent(it, interval.Range{Start: "2024-06-01", End: "2024-06-05"}, "2024-06-01")
	})
	require.NoError(t, err)
	_, err = store.Update(ctx, item.ID, func(it *rental.Item) (rental.Decision, error) {
		return engine.Rent(it, interval.Range{Start: "2024-07-01", End: "2024-07-05"}, "2024-06-01")
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, item.ID, func(it *rental.Item) (rental.Decision, error) {
		return engine.Rent(it, interval.Range{Start: "2024-07-02", End: "2024-07-03"}, "2024-06-01")
	})
	assert.ErrorIs(t, err, rental.ErrScheduleConflict)

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.True(t, got.IsRented())
	assert.Len(t, got.RentalSchedule, 1)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, rental.ErrItemNotFound)
}

func TestStore_ConcurrentRentsAdmitOne(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, WithMaxAttempts(50))
	engine := rental.NewEngine(rental.ULIDGenerator{})

	item := rental.NewItem(uuid.New(), "Kayak", "Two seats", 40, time.Now().UTC())
	require.NoError(t, store.Create(ctx, item))

	const callers = 8
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
			_, err := store.Update(ctx, item.ID, func(it *rental.Item) (rental.Decision, error) {
				return engine.Rent(it, interval.Range{Start: "2030-01-10", End: "2030-01-15"}, "2030-01-01")
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

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, got.RentalSchedule, 1)
}
