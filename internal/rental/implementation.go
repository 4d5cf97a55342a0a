package rental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"rentalnexus/internal/interval"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultAvailabilityDays is the length of the availability window when the
// caller gives no end date.
const DefaultAvailabilityDays = 30

// service implements the Service interface.
type service struct {
	repo      Repository
	engine    *Engine
	clock     Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	decisions metric.Int64Counter
}

// NewService creates a new rental service instance.
func NewService(repo Repository, clock Clock, ids IDGenerator, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	decisions, err := otel.Meter("rentalnexus/rental").Int64Counter(
		"rental.decisions",
		metric.WithDescription("Rent and return requests by outcome"),
	)
	if err != nil {
		logger.Warn("decision counter unavailable", "error", err)
	}
	return &service{
		repo:      repo,
		engine:    NewEngine(ids),
		clock:     clock,
		logger:    logger,
		tracer:    otel.Tracer("rentalnexus/rental"),
		decisions: decisions,
	}
}

func (s *service) CreateItem(ctx context.Context, req CreateItemRequest) (*Item, error) {
	price, err := req.Validate()
	if err != nil {
		return nil, err
	}

	item := NewItem(uuid.New(), req.ItemName, req.Description, price, time.Now().UTC())
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.logger.InfoContext(ctx, "item created", "item_id", item.ID, "item_name", item.ItemName)
	return item, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) SearchItems(ctx context.Context, criteria SearchCriteria) ([]*Item, error) {
	filter, err := criteria.Validate()
	if err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	found := make([]*Item, 0, len(items))
	for _, item := range items {
		if filter.Match(item) {
			found = append(found, item)
		}
	}
	return found, nil
}

func (s *service) RentItem(ctx context.Context, req RentRequest) (*RentalDetails, error) {
	ctx, span := s.tracer.Start(ctx, "rental.rent")
	defer span.End()

	today, err := s.today(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	id, window, err := req.Validate(today, clockLocation(s.clock))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("item.id", id.String()),
		attribute.String("rental.window", window.String()),
		attribute.String("rental.today", today.String()),
	)

	var decision Decision
	item, err := s.repo.Update(ctx, id, func(it *Item) (Decision, error) {
		d, err := s.engine.Rent(it, window, today)
		decision = d
		return d, err
	})
	if err != nil {
		s.record(ctx, span, "rent", err)
		return nil, err
	}
	s.record(ctx, span, "rent", nil, attribute.String("decision", string(decision.Kind)))
	s.logger.InfoContext(ctx, "rent admitted",
		"item_id", id,
		"decision", decision.Kind,
		"window", window.String(),
		"rental_id", decision.RentalID,
	)

	return &RentalDetails{
		ItemID:      item.ID,
		ItemName:    item.ItemName,
		RentalStart: window.Start,
		RentalEnd:   window.End,
		Immediate:   decision.Kind == DecisionActivate,
		RentalID:    decision.RentalID,
	}, nil
}

func (s *service) ReturnItem(ctx context.Context, req ReturnRequest) (*ReturnDetails, error) {
	ctx, span := s.tracer.Start(ctx, "rental.return")
	defer span.End()

	id, err := req.Validate()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("item.id", id.String()))
	today, err := s.today(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	item, err := s.repo.Update(ctx, id, s.engine.Return)
	if err != nil {
		s.record(ctx, span, "return", err)
		return nil, err
	}
	s.record(ctx, span, "return", nil, attribute.String("decision", string(DecisionReturn)))
	s.logger.InfoContext(ctx, "return admitted", "item_id", id)

	return &ReturnDetails{ItemID: item.ID, ItemName: item.ItemName, ReturnDate: today}, nil
}

func (s *service) Availability(ctx context.Context, id uuid.UUID, from, to DateInput) (*AvailabilityReport, error) {
	today, err := s.today(ctx)
	if err != nil {
		return nil, err
	}
	loc := clockLocation(s.clock)

	start := today
	if !from.IsZero() {
		if start, err = from.Resolve(loc); err != nil {
			return nil, invalid("from", "Invalid from - %s", from)
		}
	}
	end := start.AddDays(DefaultAvailabilityDays)
	if !to.IsZero() {
		if end, err = to.Resolve(loc); err != nil {
			return nil, invalid("to", "Invalid to - %s", to)
		}
	}
	window, err := interval.NewRange(start, end)
	if err != nil {
		return nil, invalid("to", "to must be after from")
	}

	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	busy := make([]interval.Range, 0, len(item.RentalSchedule)+1)
	for _, r := range item.Committed() {
		if r.Overlaps(window) {
			busy = append(busy, r)
		}
	}
	slices.SortFunc(busy, func(a, b interval.Range) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	report := &AvailabilityReport{
		ItemID: item.ID,
		Window: window,
		Busy:   busy,
		Free:   interval.FreeWindows(busy, window),
	}
	if len(report.Free) > 0 {
		first := report.Free[0].Start
		report.AvailableFrom = &first
	}
	if report.Free == nil {
		report.Free = []interval.Range{}
	}
	return report, nil
}

// today reads the clock. A clock that cannot name a valid date makes every
// decision meaningless, so it aborts the operation.
func (s *service) today(ctx context.Context) (interval.Date, error) {
	raw := s.clock.Today()
	today, err := interval.ParseDate(raw)
	if err != nil {
		s.logger.ErrorContext(ctx, "clock returned invalid date", "value", raw, "error", err)
		return "", fmt.Errorf("%w: %q", ErrBrokenClock, raw)
	}
	return today, nil
}

// record counts the outcome of a rent or return request and tags its span.
func (s *service) record(ctx context.Context, span trace.Span, op string, err error, attrs ...attribute.KeyValue) {
	outcome := "admitted"
	var rej *RejectionError
	switch {
	case err == nil:
	case errors.As(err, &rej):
		outcome = string(rej.Kind)
		s.logger.InfoContext(ctx, op+" rejected", "kind", rej.Kind, "error", err)
	case errors.Is(err, ErrItemNotFound):
		outcome = "NOT_FOUND"
	default:
		outcome = "ERROR"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, op+" failed", "error", err)
	}
	attrs = append(attrs, attribute.String("op", op), attribute.String("outcome", outcome))
	span.SetAttributes(attrs...)
	if s.decisions != nil {
		s.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
