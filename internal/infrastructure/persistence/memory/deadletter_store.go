package memory

import (
	"context"
	"sort"
	"sync"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// DeadLetterStore is the in-memory dead letter table.
type DeadLetterStore struct {
	mu      sync.RWMutex
	letters map[string]repository.DeadLetter
}

// Compile-time interface check
var _ repository.DeadLetterStore = (*DeadLetterStore)(nil)

// NewDeadLetterStore creates an empty store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{letters: make(map[string]repository.DeadLetter)}
}

// Save writes the letter, overwriting an earlier failure of the same event
// for the same subscriber.
func (s *DeadLetterStore) Save(ctx context.Context, letter repository.DeadLetter) error {
	if letter.ID == "" {
		letter.ID = repository.LetterID(letter.EventType, letter.AggregateID, letter.Version, letter.Subscriber)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters[letter.ID] = letter
	return nil
}

// List returns one page of letters, most recent failures first.
func (s *DeadLetterStore) List(ctx context.Context, page repository.PageRequest) (*repository.PageResponse[repository.DeadLetter], error) {
	page = page.Normalize(repository.PaginationDefaults{})

	s.mu.RLock()
	letters := make([]repository.DeadLetter, 0, len(s.letters))
	for _, l := range s.letters {
		letters = append(letters, l)
	}
	s.mu.RUnlock()

	sort.Slice(letters, func(i, j int) bool { return letters[i].FailedAt.After(letters[j].FailedAt) })

	total := len(letters)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return repository.NewPageResponse(letters[start:end], total, page), nil
}

// Delete removes a letter.
func (s *DeadLetterStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.Validation("dead letter id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.letters, id)
	return nil
}

// Count returns the number of parked letters.
func (s *DeadLetterStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.letters)), nil
}
