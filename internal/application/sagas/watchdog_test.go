package sagas

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/wallet"
	"libris-backend/internal/repository"
)

func TestWatchdog_ReissuesStalledValidationRequest(t *testing.T) {
	f := newFixture(Config{MaxRetries: 2}) // no responders yet, the saga parks
	ctx := context.Background()

	bookID := f.createBook(t, "0515125628", 20)
	f.openWallet(t, "reader-1", 50)
	r := f.reserve(t, "reader-1", bookID)
	require.Equal(t, repository.SagaStepAwaitingBookValidation, f.sagaRow(t, r.GetID()).Step)

	dog := NewWatchdog(f.saga, 0, nil)

	// A row inside its step timeout is left alone.
	acted, err := dog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acted)
	assert.Len(t, f.bus.byType(reservation.EventTypeReservationBookValidation), 1)

	// Once the responders are back, the reissued request carries the saga
	// all the way through.
	f.stallSaga(t, r.GetID())
	f.attachResponders()
	acted, err = dog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acted)

	assert.Len(t, f.bus.byType(reservation.EventTypeReservationBookValidation), 2)
	state := f.sagaRow(t, r.GetID())
	assert.Equal(t, repository.SagaStepCompleted, state.Step)
	assert.Equal(t, string(reservation.StatusActive), f.reservationDoc(t, r.GetID()).Status)
	assert.Equal(t, 48.0, f.walletDoc(t, "reader-1").Balance)
	assert.Empty(t, f.bus.errs)
}

func TestWatchdog_ReissuesStalledPaymentRequest(t *testing.T) {
	f := newFixture(Config{MaxRetries: 2})
	f.attachBookValidation() // payment stays unanswered
	ctx := context.Background()

	bookID := f.createBook(t, "0515125628", 20)
	f.openWallet(t, "reader-1", 50)
	r := f.reserve(t, "reader-1", bookID)
	require.Equal(t, repository.SagaStepAwaitingPayment, f.sagaRow(t, r.GetID()).Step)

	f.stallSaga(t, r.GetID())
	f.attachPayments()
	dog := NewWatchdog(f.saga, 0, nil)
	acted, err := dog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acted)

	assert.Len(t, f.bus.byType(wallet.EventTypeWalletPaymentRequest), 2)
	assert.Len(t, f.bus.byType(wallet.EventTypeWalletPaymentSuccess), 1)
	assert.Equal(t, repository.SagaStepCompleted, f.sagaRow(t, r.GetID()).Step)
	assert.Equal(t, 48.0, f.walletDoc(t, "reader-1").Balance)

	// The original request surfacing later must not debit a second time.
	original := f.bus.byType(wallet.EventTypeWalletPaymentRequest)[0]
	require.NoError(t, f.bus.Publish(ctx, original))
	assert.Equal(t, 48.0, f.walletDoc(t, "reader-1").Balance)
	assert.Len(t, f.bus.byType(wallet.EventTypeWalletPaymentSuccess), 1)
	assert.Empty(t, f.bus.errs)
}

func TestWatchdog_CompensatesWhenRetriesExhausted(t *testing.T) {
	f := newFixture(Config{MaxRetries: 2}) // nothing ever answers
	ctx := context.Background()

	bookID := f.createBook(t, "0515125628", 20)
	r := f.reserve(t, "reader-1", bookID)

	dog := NewWatchdog(f.saga, 0, nil)
	for reissue := 1; reissue <= 2; reissue++ {
		f.stallSaga(t, r.GetID())
		acted, err := dog.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, acted)
		require.Equal(t, reissue, f.sagaRow(t, r.GetID()).Retries)
	}
	assert.Len(t, f.bus.byType(reservation.EventTypeReservationBookValidation), 3)

	// Out of retries: the next sweep gives up and unwinds.
	f.stallSaga(t, r.GetID())
	acted, err := dog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acted)

	state := f.sagaRow(t, r.GetID())
	assert.Equal(t, repository.SagaStepFailed, state.Step)
	assert.Equal(t, repository.SagaStatusFailed, state.Status)
	assert.Equal(t, "saga_step_timed_out", state.LastError)
	assert.Equal(t, []string{"reservation_cancelled"}, state.Compensations)
	require.NotNil(t, state.CompletedAt)

	doc := f.reservationDoc(t, r.GetID())
	assert.Equal(t, string(reservation.StatusCancelled), doc.Status)
	assert.Equal(t, "saga_step_timed_out", doc.StatusReason)

	// Terminal rows are outside the sweep even when old.
	f.stallSaga(t, r.GetID())
	acted, err = dog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acted)
	assert.Empty(t, f.bus.errs)
}

func TestWatchdog_FinishesStuckCompensation(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	bookID := f.createBook(t, "0515125628", 20)
	r := f.reserve(t, "reader-1", bookID)

	// A crash between entering Compensating and cancelling the reservation
	// leaves exactly this row behind.
	state := f.sagaRow(t, r.GetID())
	state.Step = repository.SagaStepCompensating
	state.Status = repository.SagaStatusCompensating
	state.LastError = "payment_declined"
	state.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.sagaStore.Upsert(ctx, state))

	dog := NewWatchdog(f.saga, 0, nil)
	acted, err := dog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acted)

	state = f.sagaRow(t, r.GetID())
	assert.Equal(t, repository.SagaStepFailed, state.Step)
	assert.Equal(t, repository.SagaStatusFailed, state.Status)
	assert.Equal(t, []string{"reservation_cancelled"}, state.Compensations)

	// The unwind keeps the reason recorded before the crash.
	doc := f.reservationDoc(t, r.GetID())
	assert.Equal(t, string(reservation.StatusCancelled), doc.Status)
	assert.Equal(t, "payment_declined", doc.StatusReason)
}

func TestWatchdog_RunStopsOnContextCancel(t *testing.T) {
	f := newFixture(Config{StepTimeout: 20 * time.Millisecond})
	dog := NewWatchdog(f.saga, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dog.Run(ctx)
		close(done)
	}()

	time.Sleep(15 * time.Millisecond) // let a tick or two fire on the empty store
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop on cancel")
	}
}
