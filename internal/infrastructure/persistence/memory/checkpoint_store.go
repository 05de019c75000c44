package memory

import (
	"context"
	"sync"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// CheckpointStore is the in-memory log-position store.
type CheckpointStore struct {
	mu        sync.RWMutex
	positions map[string]int64
}

// Compile-time interface check
var _ repository.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates an empty store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{positions: make(map[string]int64)}
}

// Load returns the consumer's saved position, 0 for a name never saved.
func (s *CheckpointStore) Load(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, apperrors.Validation("checkpoint name required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[name], nil
}

// Save overwrites the consumer's position.
func (s *CheckpointStore) Save(ctx context.Context, name string, globalVersion int64) error {
	if name == "" {
		return apperrors.Validation("checkpoint name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[name] = globalVersion
	return nil
}
