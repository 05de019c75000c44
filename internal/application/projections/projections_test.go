package projections

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/domain/book"
	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/infrastructure/messaging"
	"libris-backend/internal/infrastructure/persistence/memory"
	"libris-backend/internal/repository"
)

func at(version int, payload shared.Payload, ts time.Time) shared.Event {
	e := shared.NewEvent("agg-1", version, payload, shared.NewMetadata("user-1"))
	e.Timestamp = ts
	return e
}

func TestBookProjection_CreateUpdateDelete(t *testing.T) {
	store := memory.NewBookStore()
	p := NewBookProjection(store, nil, nil)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Handle(ctx, at(1, &book.CreatedPayload{
		ISBN:            "978-0134190440",
		Title:           "The Go Programming Language",
		Author:          "Donovan",
		PublicationYear: 2015,
		Publisher:       "Addison-Wesley",
		Price:           39.99,
	}, t0)))

	doc, err := store.GetByID(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, "The Go Programming Language", doc.Title)
	assert.Equal(t, 1, doc.Version)
	assert.True(t, doc.UpdatedAt.Equal(t0))
	assert.True(t, doc.CreatedAt.Equal(t0))

	newPrice := 29.99
	require.NoError(t, p.Handle(ctx, at(2, &book.UpdatedPayload{Price: &newPrice}, t0.Add(time.Hour))))

	doc, err = store.GetByID(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, 29.99, doc.Price)
	assert.Equal(t, "Donovan", doc.Author)
	assert.Equal(t, 2, doc.Version)

	require.NoError(t, p.Handle(ctx, at(3, &book.DeletedPayload{DeletedAt: t0.Add(2 * time.Hour)}, t0.Add(2*time.Hour))))

	_, err = store.GetByID(ctx, "agg-1")
	assert.Equal(t, apperrors.CodeBookNotFound, apperrors.CodeOf(err))
}

func TestBookProjection_StaleEventIsSilentNoop(t *testing.T) {
	store := memory.NewBookStore()
	p := NewBookProjection(store, nil, nil)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	title2 := "Second"
	require.NoError(t, p.Handle(ctx, at(1, &book.CreatedPayload{Title: "First", ISBN: "x"}, t0)))
	require.NoError(t, p.Handle(ctx, at(2, &book.UpdatedPayload{Title: &title2}, t0.Add(time.Hour))))

	// Redelivery of the older event must change nothing and not error.
	require.NoError(t, p.Handle(ctx, at(1, &book.CreatedPayload{Title: "First", ISBN: "x"}, t0)))

	doc, err := store.GetByID(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, "Second", doc.Title)
	assert.Equal(t, 2, doc.Version)
	assert.True(t, doc.UpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestBookProjection_ReplayConvergesOnIdenticalRow(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	title := "Renamed"
	events := []shared.Event{
		at(1, &book.CreatedPayload{Title: "Original", ISBN: "x", Price: 10}, t0),
		at(2, &book.UpdatedPayload{Title: &title}, t0.Add(time.Minute)),
	}

	replay := func(passes int) *repository.BookDocument {
		store := memory.NewBookStore()
		p := NewBookProjection(store, nil, nil)
		for pass := 0; pass < passes; pass++ {
			for _, e := range events {
				require.NoError(t, p.Handle(ctx, e), "pass %d", pass+1)
			}
		}
		doc, err := store.GetByID(ctx, "agg-1")
		require.NoError(t, err)
		return doc
	}

	once := replay(1)
	twice := replay(2)

	assert.Equal(t, once, twice, "a second full replay must not change the row")
	assert.Equal(t, "Renamed", twice.Title)
	assert.Equal(t, 2, twice.Version)
	assert.True(t, twice.UpdatedAt.Equal(t0.Add(time.Minute)), "updatedAt must come from the event, not the clock")
}

func TestReservationProjection_Lifecycle(t *testing.T) {
	store := memory.NewReservationStore()
	p := NewReservationProjection(store, nil, nil)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	due := t0.Add(14 * 24 * time.Hour)

	require.NoError(t, p.Handle(ctx, at(1, &reservation.CreatedPayload{
		UserID:      "user-1",
		BookID:      "book-1",
		RetailPrice: 25,
		ReservedAt:  t0,
		DueDate:     due,
	}, t0)))
	require.NoError(t, p.Handle(ctx, at(2, &reservation.StatusUpdatedPayload{
		Status:    reservation.StatusValidated,
		UpdatedAt: t0.Add(time.Minute),
	}, t0.Add(time.Minute))))
	require.NoError(t, p.Handle(ctx, at(3, &reservation.StatusUpdatedPayload{
		Status:    reservation.StatusActive,
		Payment:   &reservation.PaymentInfo{Amount: 3, PaidAt: t0.Add(2 * time.Minute)},
		UpdatedAt: t0.Add(2 * time.Minute),
	}, t0.Add(2*time.Minute))))

	doc, err := store.GetByID(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, "active", doc.Status)
	assert.Equal(t, "user-1", doc.UserID)
	require.NotNil(t, doc.Payment)
	assert.Equal(t, 3.0, doc.Payment.Amount)
	assert.True(t, doc.DueDate.Equal(due))

	require.NoError(t, p.Handle(ctx, at(4, &reservation.FeeChargedPayload{
		Amount:        1.5,
		CumulativeFee: 1.5,
		DaysLate:      3,
	}, t0.Add(time.Hour))))
	require.NoError(t, p.Handle(ctx, at(5, &reservation.FeeChargedPayload{
		Amount:        1.0,
		CumulativeFee: 2.5,
		DaysLate:      5,
	}, t0.Add(2*time.Hour))))

	doc, err = store.GetByID(ctx, "agg-1")
	require.NoError(t, err)
	assert.True(t, doc.FeeCharged)
	assert.Equal(t, 2.5, doc.LateFee)

	returnedAt := t0.Add(3 * time.Hour)
	require.NoError(t, p.Handle(ctx, at(6, &reservation.ReturnedPayload{ReturnedAt: returnedAt}, returnedAt)))

	doc, err = store.GetByID(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, "returned", doc.Status)
	require.NotNil(t, doc.ReturnedAt)
	assert.True(t, doc.ReturnedAt.Equal(returnedAt))
}

func TestWalletProjection_BalanceFollowsEvents(t *testing.T) {
	store := memory.NewWalletStore()
	p := NewWalletProjection(store, nil, nil)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Handle(ctx, at(1, &wallet.CreatedPayload{UserID: "user-1", Balance: 50}, t0)))
	require.NoError(t, p.Handle(ctx, at(2, &wallet.LateFeeAppliedPayload{
		ReservationID: "res-1",
		Fee:           1.5,
		CumulativeFee: 1.5,
		NewBalance:    48.5,
	}, t0.Add(time.Minute))))
	require.NoError(t, p.Handle(ctx, at(3, &wallet.PaymentSuccessPayload{
		ReservationID: "res-1",
		Amount:        3,
		NewBalance:    45.5,
	}, t0.Add(2*time.Minute))))

	doc, err := store.GetByID(ctx, "agg-1")
	require.NoError(t, err)
	assert.Equal(t, 45.5, doc.Balance)
	assert.Equal(t, "user-1", doc.UserID)
	assert.Equal(t, 3, doc.Version)
}

func TestProjection_UnexpectedPayloadErrors(t *testing.T) {
	p := NewBookProjection(memory.NewBookStore(), nil, nil)

	err := p.Handle(context.Background(), at(1, &wallet.CreatedPayload{UserID: "u"}, time.Now()))

	assert.Equal(t, apperrors.CodeInternalError, apperrors.CodeOf(err))
}

type recordingBus struct {
	subs []string
	next messaging.SubscriptionID
}

func (b *recordingBus) Subscribe(eventType string, sub messaging.Subscriber) messaging.SubscriptionID {
	b.subs = append(b.subs, eventType+":"+sub.Name())
	b.next++
	return b.next
}

func TestRegister_SubscribesEveryHandlerType(t *testing.T) {
	bus := &recordingBus{}

	ids := Register(bus,
		NewBookProjection(memory.NewBookStore(), nil, nil),
		NewWalletProjection(memory.NewWalletStore(), nil, nil),
	)

	assert.Len(t, ids, 3+4)
	assert.Contains(t, bus.subs, "BookCreated:projection.books")
	assert.Contains(t, bus.subs, "WalletPaymentSuccess:projection.wallets")
}
