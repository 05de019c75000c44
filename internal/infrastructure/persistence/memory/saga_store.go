package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// SagaStore is the in-memory saga state table.
type SagaStore struct {
	mu    sync.RWMutex
	sagas map[string]repository.SagaState
}

// Compile-time interface check
var _ repository.SagaStore = (*SagaStore)(nil)

// NewSagaStore creates an empty store.
func NewSagaStore() *SagaStore {
	return &SagaStore{sagas: make(map[string]repository.SagaState)}
}

// Upsert writes the full state keyed by reservation id.
func (s *SagaStore) Upsert(ctx context.Context, state *repository.SagaState) error {
	if state == nil || state.ReservationID == "" {
		return apperrors.Validation("saga state requires a reservation id")
	}
	if state.ID == "" {
		state.ID = state.ReservationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sagas[state.ReservationID] = *state
	return nil
}

// GetByReservationID loads a saga row.
func (s *SagaStore) GetByReservationID(ctx context.Context, reservationID string) (*repository.SagaState, error) {
	if reservationID == "" {
		return nil, apperrors.Validation("reservation id required")
	}

	s.mu.RLock()
	state, exists := s.sagas[reservationID]
	s.mu.RUnlock()

	if !exists {
		return nil, apperrors.NewError(apperrors.CodeSagaNotFound, "saga not found").
			WithResource(reservationID).
			Build()
	}
	clone := state
	return &clone, nil
}

// ListStalled returns non-terminal sagas untouched since the cutoff,
// oldest first.
func (s *SagaStore) ListStalled(ctx context.Context, olderThan time.Time, limit int) ([]repository.SagaState, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	var stalled []repository.SagaState
	for _, state := range s.sagas {
		if state.IsTerminal() {
			continue
		}
		if state.UpdatedAt.Before(olderThan) {
			stalled = append(stalled, state)
		}
	}
	s.mu.RUnlock()

	sort.Slice(stalled, func(i, j int) bool { return stalled[i].UpdatedAt.Before(stalled[j].UpdatedAt) })
	if len(stalled) > limit {
		stalled = stalled[:limit]
	}
	return stalled, nil
}
