// Package memory holds in-process implementations of the persistence
// ports. They back unit tests and local development without DynamoDB and
// enforce the same contracts: resubmitted events are duplicates, other
// version collisions conflict, patches are version-guarded, reads exclude
// soft-deleted rows.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// EventStore is the in-memory event log.
type EventStore struct {
	mu            sync.RWMutex
	streams       map[string][]shared.Event
	log           []shared.Event
	globalVersion int64
}

// Compile-time interface check
var _ repository.EventStore = (*EventStore)(nil)

// NewEventStore creates an empty log.
func NewEventStore() *EventStore {
	return &EventStore{streams: make(map[string][]shared.Event)}
}

// AppendEvents stores the batch atomically under one lock, failing the
// whole batch on the first version collision.
func (s *EventStore) AppendEvents(ctx context.Context, events []shared.Event) ([]shared.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewError(apperrors.CodeOperationTimeout, "append cancelled").WithCause(err).Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e.AggregateID == "" || e.Version < 1 {
			return nil, apperrors.NewError(apperrors.CodeEventSaveFailed, "malformed event").
				WithDetails("aggregateId=%q version=%d", e.AggregateID, e.Version).
				Build()
		}
		for _, existing := range s.streams[e.AggregateID] {
			if existing.Version != e.Version {
				continue
			}
			// The same event id at the same version means this batch
			// already landed; a different id means a concurrent writer.
			if existing.EventID == e.EventID {
				return nil, apperrors.NewError(apperrors.CodeDuplicateEvent, "event already appended").
					WithDetails("aggregate %s version %d", e.AggregateID, e.Version).
					WithResource(e.AggregateID).
					Build()
			}
			return nil, apperrors.NewError(apperrors.CodeConcurrencyConflict, "aggregate version already written").
				WithDetails("aggregate %s version %d", e.AggregateID, e.Version).
				WithResource(e.AggregateID).
				Build()
		}
	}

	storedAt := time.Now().UTC()
	stamped := make([]shared.Event, len(events))
	for i, e := range events {
		s.globalVersion++
		e.GlobalVersion = s.globalVersion
		e.Metadata.StoredAt = storedAt
		stamped[i] = e
		s.streams[e.AggregateID] = append(s.streams[e.AggregateID], e)
		s.log = append(s.log, e)
	}
	return stamped, nil
}

// LoadEvents returns the aggregate's full stream in version order.
func (s *EventStore) LoadEvents(ctx context.Context, aggregateID string) ([]shared.Event, error) {
	return s.LoadEventsFrom(ctx, aggregateID, 1)
}

// LoadEventsFrom returns the aggregate's events with Version >= from.
func (s *EventStore) LoadEventsFrom(ctx context.Context, aggregateID string, from int) ([]shared.Event, error) {
	if aggregateID == "" {
		return nil, apperrors.NewError(apperrors.CodeInvalidAggregateID, "aggregate id required").Build()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	events := make([]shared.Event, 0, len(stream))
	for _, e := range stream {
		if e.Version >= from {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Version < events[j].Version })
	return events, nil
}

// LoadAllEvents reads the global log after the given global version.
func (s *EventStore) LoadAllEvents(ctx context.Context, afterGlobalVersion int64, limit int) ([]shared.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]shared.Event, 0, limit)
	for _, e := range s.log {
		if e.GlobalVersion > afterGlobalVersion {
			events = append(events, e)
			if len(events) == limit {
				break
			}
		}
	}
	return events, nil
}
