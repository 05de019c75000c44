package repository

import (
	"context"
	"time"

	"libris-backend/internal/domain/shared"
)

// EventStore is the append-only log of domain events. Appends are atomic
// per call: either every event in the batch is stored or none is. A version
// collision surfaces as CONCURRENCY_CONFLICT, or as DUPLICATE_EVENT when the
// stored event carries the same id, meaning the batch already landed.
type EventStore interface {
	// AppendEvents appends the aggregate's pending events, each already
	// stamped with its per-aggregate version. The store assigns global
	// versions and the storedAt metadata timestamp; the returned slice
	// carries both.
	AppendEvents(ctx context.Context, events []shared.Event) ([]shared.Event, error)

	// LoadEvents returns every event for the aggregate in version order.
	LoadEvents(ctx context.Context, aggregateID string) ([]shared.Event, error)

	// LoadEventsFrom returns the aggregate's events with Version >= from,
	// in version order. Rehydrating from a snapshot starts here.
	LoadEventsFrom(ctx context.Context, aggregateID string, from int) ([]shared.Event, error)

	// LoadAllEvents pages through the whole log in global-version order.
	// afterGlobalVersion of 0 starts at the beginning.
	LoadAllEvents(ctx context.Context, afterGlobalVersion int64, limit int) ([]shared.Event, error)
}

// CheckpointStore persists named positions in the global event log, so a
// restarted consumer resumes where it stopped instead of replaying from the
// beginning.
type CheckpointStore interface {
	// Load returns the saved position, or 0 for a name never saved.
	Load(ctx context.Context, name string) (int64, error)
	Save(ctx context.Context, name string, globalVersion int64) error
}

// BookReadModel is the Books projection store. Reads exclude soft-deleted
// rows; field selection is applied by the query layer on top of the full
// documents returned here.
type BookReadModel interface {
	ApplyPatch(ctx context.Context, patch Patch) error
	GetByID(ctx context.Context, id string) (*BookDocument, error)
	// FindIDByISBN returns the id of the live book carrying the isbn, or
	// "" when no such book exists.
	FindIDByISBN(ctx context.Context, isbn string) (string, error)
	List(ctx context.Context, filter BookFilter, page PageRequest) (*PageResponse[BookDocument], error)
}

// ReservationReadModel is the Reservations projection store.
type ReservationReadModel interface {
	ApplyPatch(ctx context.Context, patch Patch) error
	GetByID(ctx context.Context, id string) (*ReservationDocument, error)
	List(ctx context.Context, filter ReservationFilter, page PageRequest) (*PageResponse[ReservationDocument], error)
	// ListActiveByBookID returns non-terminal reservations holding a book.
	ListActiveByBookID(ctx context.Context, bookID string) ([]ReservationDocument, error)
}

// WalletReadModel is the Wallets projection store.
type WalletReadModel interface {
	ApplyPatch(ctx context.Context, patch Patch) error
	GetByID(ctx context.Context, id string) (*WalletDocument, error)
	// FindIDByUserID returns the id of the user's live wallet, or "" when
	// the user has none.
	FindIDByUserID(ctx context.Context, userID string) (string, error)
	List(ctx context.Context, filter WalletFilter, page PageRequest) (*PageResponse[WalletDocument], error)
}

// QueryCache is a read-through cache for query results. Implementations
// bound entries by TTL; InvalidatePrefix drops everything under a prefix
// so a projection update can evict its entity's listings wholesale.
type QueryCache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	InvalidatePrefix(prefix string)
}

// Cache key prefixes, one per entity. Queries key their entries under the
// entity's prefix and projections invalidate the whole prefix after a
// write.
const (
	CachePrefixBooks        = "books:"
	CachePrefixReservations = "reservations:"
	CachePrefixWallets      = "wallets:"
)
