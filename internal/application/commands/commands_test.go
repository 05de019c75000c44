package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"libris-backend/internal/application/projections"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/infrastructure/persistence/memory"
	"libris-backend/internal/repository"
)

// capturedBus records published events instead of dispatching them.
type capturedBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *capturedBus) Publish(ctx context.Context, events ...shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
	return nil
}

func (b *capturedBus) snapshot() []shared.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]shared.Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *capturedBus) byType(eventType string) []shared.Event {
	var out []shared.Event
	for _, e := range b.snapshot() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	events       *memory.EventStore
	books        *memory.BookStore
	reservations *memory.ReservationStore
	wallets      *memory.WalletStore
	bus          *capturedBus
	retry        repository.RetryConfig
}

func newFixture() *fixture {
	return &fixture{
		events:       memory.NewEventStore(),
		books:        memory.NewBookStore(),
		reservations: memory.NewReservationStore(),
		wallets:      memory.NewWalletStore(),
		bus:          &capturedBus{},
		retry: repository.RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	}
}

func (f *fixture) bookHandler() *BookCommandHandler {
	return NewBookCommandHandler(f.events, f.books, f.bus, f.retry, nil)
}

func (f *fixture) reservationHandler() *ReservationCommandHandler {
	return NewReservationCommandHandler(f.events, f.books, f.bus, f.retry, nil)
}

func (f *fixture) walletHandler() *WalletCommandHandler {
	return NewWalletCommandHandler(f.events, f.wallets, f.bus, f.retry, nil)
}

// project folds every event published so far into the read models, the way
// the bus-driven projection pipeline would. Patches are idempotent, so
// running it repeatedly is safe.
func (f *fixture) project(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	handlers := []projections.Handler{
		projections.NewBookProjection(f.books, nil, nil),
		projections.NewReservationProjection(f.reservations, nil, nil),
		projections.NewWalletProjection(f.wallets, nil, nil),
	}
	for _, event := range f.bus.snapshot() {
		for _, h := range handlers {
			if handles(h, event.EventType) {
				require.NoError(t, h.Handle(ctx, event))
			}
		}
	}
}

func handles(h projections.Handler, eventType string) bool {
	for _, t := range h.EventTypes() {
		if t == eventType {
			return true
		}
	}
	return false
}
