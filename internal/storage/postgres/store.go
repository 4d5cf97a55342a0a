// Package postgres is an event-sourced rental.Repository. Every admitted
// decision is appended as an event guarded by the item's version; a writer
// that loses the race re-reads the item and decides again.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rentalnexus/internal/rental"
	"rentalnexus/pkg/eventstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	AggregateType = "rental_item"

	DefaultMaxAttempts   = 5
	DefaultSnapshotEvery = 20
)

type Store struct {
	events        *eventstore.EventStore
	maxAttempts   int
	snapshotEvery int
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

type Option func(*Store)

// WithMaxAttempts bounds how often Update re-evaluates after losing a race.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithSnapshotEvery saves a snapshot whenever the version is a multiple of n.
// Zero disables snapshots.
func WithSnapshotEvery(n int) Option {
	return func(s *Store) { s.snapshotEvery = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(events *eventstore.EventStore, opts ...Option) *Store {
	s := &Store{
		events:        events,
		maxAttempts:   DefaultMaxAttempts,
		snapshotEvery: DefaultSnapshotEvery,
		logger:        slog.Default(),
		tracer:        otel.Tracer("rentalnexus/storage/postgres"),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, item *rental.Item) error {
	data, err := json.Marshal(rental.ItemCreatedEvent{
		ID:          item.ID,
		ItemName:    item.ItemName,
		Description: item.Description,
		PricePerDay: item.PricePerDay,
		CreatedAt:   item.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	err = s.events.AppendEvents(ctx, item.ID, AggregateType, 0, []eventstore.Event{{
		EventType: rental.EventItemCreated,
		EventData: data,
	}})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	item.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*rental.Item, error) {
	return s.load(ctx, id)
}

// List loads every item in creation order.
func (s *Store) List(ctx context.Context) ([]*rental.Item, error) {
	ids, err := s.events.AggregateIDs(ctx, AggregateType)
	if err != nil {
		return nil, err
	}
	items := make([]*rental.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Update runs fn against the latest version of the item and appends the
// decision it returns, expecting that version to still be current. On a
// version conflict the item is reloaded and fn runs again, up to the
// configured number of attempts.
func (s *Store) Update(ctx context.Context, id uuid.UUID, fn rental.UpdateFunc) (*rental.Item, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.update",
		trace.WithAttributes(attribute.String("item.id", id.String())),
	)
	defer span.End()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		working := current.Clone()
		decision, err := fn(working)
		if err != nil {
			return nil, err
		}
		eventType := decision.Kind.EventType()
		if eventType == "" {
			return nil, fmt.Errorf("no event for decision kind %q", decision.Kind)
		}
		data, err := json.Marshal(decision)
		if err != nil {
			return nil, fmt.Errorf("marshal decision: %w", err)
		}

		err = s.events.AppendEvents(ctx, id, AggregateType, current.Version, []eventstore.Event{{
			EventType: eventType,
			EventData: data,
			Metadata:  map[string]any{"attempt": attempt},
		}})
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			span.AddEvent("version.conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
			s.logger.DebugContext(ctx, "item changed concurrently, re-evaluating", "item_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("append event: %w", err)
		}

		working.Version = current.Version + 1
		working.UpdatedAt = s.now()
		span.SetAttributes(attribute.Int("attempts", attempt), attribute.Int("item.version", working.Version))
		s.maybeSnapshot(ctx, span, working)
		return working, nil
	}

	span.SetStatus(codes.Error, "contention")
	return nil, fmt.Errorf("%w: %s after %d attempts", rental.ErrContention, id, s.maxAttempts)
}

// maybeSnapshot saves the item state on snapshot boundaries. The event is
// already committed, so a failed snapshot only costs a longer replay later.
func (s *Store) maybeSnapshot(ctx context.Context, span trace.Span, item *rental.Item) {
	if s.snapshotEvery <= 0 || item.Version%s.snapshotEvery != 0 {
		return
	}
	state, err := json.Marshal(item)
	if err == nil {
		err = s.events.SaveSnapshot(ctx, eventstore.Snapshot{
			AggregateID:   item.ID,
			AggregateType: AggregateType,
			Version:       item.Version,
			State:         state,
		})
	}
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "snapshot failed", "item_id", item.ID, "version", item.Version, "error", err)
	}
}

func (s *Store) load(ctx context.Context, id uuid.UUID) (*rental.Item, error) {
	var item *rental.Item
	from := 1

	snap, err := s.events.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		if item, err = fromSnapshot(snap); err != nil {
			return nil, err
		}
		from = snap.Version + 1
	}

	events, err := s.events.LoadEvents(ctx, id, from, 0)
	if err != nil {
		return nil, err
	}
	item, err = replay(item, events)
	if errors.Is(err, eventstore.ErrAggregateNotFound) {
		return nil, fmt.Errorf("%w: %s", rental.ErrItemNotFound, id)
	}
	return item, err
}

// fromSnapshot decodes the item state saved by maybeSnapshot.
func fromSnapshot(snap *eventstore.Snapshot) (*rental.Item, error) {
	item := &rental.Item{}
	if err := json.Unmarshal(snap.State, item); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", snap.AggregateID, err)
	}
	item.Version = snap.Version
	return item, nil
}

// replay folds events onto item, which is nil when starting from scratch.
func replay(item *rental.Item, events []eventstore.Event) (*rental.Item, error) {
	for _, e := range events {
		if e.EventType == rental.EventItemCreated {
			var created rental.ItemCreatedEvent
			if err := json.Unmarshal(e.EventData, &created); err != nil {
				return nil, fmt.Errorf("decode %s v%d: %w", e.EventType, e.Version, err)
			}
			item = rental.NewItem(created.ID, created.ItemName, created.Description, created.PricePerDay, created.CreatedAt)
		} else {
			kind, ok := rental.DecisionKindForEvent(e.EventType)
			if !ok {
				return nil, fmt.Errorf("unknown event type %q at v%d", e.EventType, e.Version)
			}
			if item == nil {
				return nil, fmt.Errorf("%s v%d before item creation", e.EventType, e.Version)
			}
			var d rental.Decision
			if err := json.Unmarshal(e.EventData, &d); err != nil {
				return nil, fmt.Errorf("decode %s v%d: %w", e.EventType, e.Version, err)
			}
			d.Kind = kind
			if err := item.Apply(d); err != nil {
				return nil, err
			}
		}
		item.Version = e.Version
		item.UpdatedAt = e.CreatedAt
	}
	if item == nil {
		return nil, eventstore.ErrAggregateNotFound
	}
	return item, nil
}
