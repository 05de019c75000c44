package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/repository"
)

// NewMeasuredEventStore wraps an event store so every operation lands in the
// store metric families. Appends additionally bump the appended-events
// counter by batch size.
func NewMeasuredEventStore(inner repository.EventStore, collector *Collector) repository.EventStore {
	return &measuredEventStore{inner: inner, collector: collector}
}

type measuredEventStore struct {
	inner     repository.EventStore
	collector *Collector
}

func (s *measuredEventStore) AppendEvents(ctx context.Context, events []shared.Event) ([]shared.Event, error) {
	start := time.Now()
	stored, err := s.inner.AppendEvents(ctx, events)
	s.record("append_events", start, err)
	if err == nil {
		s.collector.EventsAppended.Add(float64(len(stored)))
	}
	return stored, err
}

func (s *measuredEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]shared.Event, error) {
	start := time.Now()
	events, err := s.inner.LoadEvents(ctx, aggregateID)
	s.record("load_events", start, err)
	return events, err
}

func (s *measuredEventStore) LoadEventsFrom(ctx context.Context, aggregateID string, from int) ([]shared.Event, error) {
	start := time.Now()
	events, err := s.inner.LoadEventsFrom(ctx, aggregateID, from)
	s.record("load_events_from", start, err)
	return events, err
}

func (s *measuredEventStore) LoadAllEvents(ctx context.Context, afterGlobalVersion int64, limit int) ([]shared.Event, error) {
	start := time.Now()
	events, err := s.inner.LoadAllEvents(ctx, afterGlobalVersion, limit)
	s.record("load_all_events", start, err)
	return events, err
}

func (s *measuredEventStore) record(operation string, start time.Time, err error) {
	s.collector.StoreOperations.WithLabelValues(operation, statusLabel(err)).Inc()
	s.collector.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// TraceEventStore wraps an event store with a span per operation.
func TraceEventStore(inner repository.EventStore, tracer trace.Tracer) repository.EventStore {
	return &tracedEventStore{inner: inner, tracer: tracer}
}

type tracedEventStore struct {
	inner  repository.EventStore
	tracer trace.Tracer
}

func (s *tracedEventStore) AppendEvents(ctx context.Context, events []shared.Event) ([]shared.Event, error) {
	aggregateID := ""
	if len(events) > 0 {
		aggregateID = events[0].AggregateID
	}
	ctx, span := s.tracer.Start(ctx, "eventstore.AppendEvents",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int("events.count", len(events)),
		),
	)
	defer span.End()

	stored, err := s.inner.AppendEvents(ctx, events)
	if err != nil {
		span.RecordError(err)
	}
	return stored, err
}

func (s *tracedEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]shared.Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.LoadEvents",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID)),
	)
	defer span.End()

	events, err := s.inner.LoadEvents(ctx, aggregateID)
	if err != nil {
		span.RecordError(err)
	}
	return events, err
}

func (s *tracedEventStore) LoadEventsFrom(ctx context.Context, aggregateID string, from int) ([]shared.Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.LoadEventsFrom",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int("version.from", from),
		),
	)
	defer span.End()

	events, err := s.inner.LoadEventsFrom(ctx, aggregateID, from)
	if err != nil {
		span.RecordError(err)
	}
	return events, err
}

func (s *tracedEventStore) LoadAllEvents(ctx context.Context, afterGlobalVersion int64, limit int) ([]shared.Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.LoadAllEvents",
		trace.WithAttributes(
			attribute.Int64("global_version.after", afterGlobalVersion),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	events, err := s.inner.LoadAllEvents(ctx, afterGlobalVersion, limit)
	if err != nil {
		span.RecordError(err)
	}
	return events, err
}

// NewMeasuredSagaStore wraps a saga store so every persisted transition is
// counted by step, and terminal writes additionally by outcome status.
func NewMeasuredSagaStore(inner repository.SagaStore, collector *Collector) repository.SagaStore {
	return &measuredSagaStore{inner: inner, collector: collector}
}

type measuredSagaStore struct {
	inner     repository.SagaStore
	collector *Collector
}

func (s *measuredSagaStore) Upsert(ctx context.Context, state *repository.SagaState) error {
	err := s.inner.Upsert(ctx, state)
	if err != nil {
		return err
	}
	s.collector.SagaTransitions.WithLabelValues(state.Step).Inc()
	if state.IsTerminal() {
		s.collector.SagaOutcomes.WithLabelValues(state.Status).Inc()
	}
	return nil
}

func (s *measuredSagaStore) GetByReservationID(ctx context.Context, reservationID string) (*repository.SagaState, error) {
	return s.inner.GetByReservationID(ctx, reservationID)
}

func (s *measuredSagaStore) ListStalled(ctx context.Context, olderThan time.Time, limit int) ([]repository.SagaState, error) {
	return s.inner.ListStalled(ctx, olderThan, limit)
}
