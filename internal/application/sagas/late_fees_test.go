package sagas

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	"libris-backend/internal/repository"
)

// activeLoan walks a fresh fixture to an activated reservation: catalog
// entry at the given price, a funded wallet, and a completed saga.
func activeLoan(t *testing.T, f *fixture, price, balance float64) *reservation.Reservation {
	t.Helper()
	bookID := f.createBook(t, "0515125628", price)
	f.openWallet(t, "reader-1", balance)
	r := f.reserve(t, "reader-1", bookID)
	require.Equal(t, repository.SagaStepCompleted, f.sagaRow(t, r.GetID()).Step)
	return r
}

func returnLoan(t *testing.T, f *fixture, r *reservation.Reservation, returnedAt time.Time) {
	t.Helper()
	_, err := f.reservationCommands.ReturnReservation(context.Background(), commands.ReturnReservationCommand{
		ReservationID: r.GetID(),
		ReturnedAt:    returnedAt,
		UserID:        "reader-1",
	})
	require.NoError(t, err)
}

func TestLateFeeFlow_LateReturnChargesWalletAndLoan(t *testing.T) {
	f := newFixture(Config{})
	f.attachResponders()
	f.attachLateFees(0.2)

	r := activeLoan(t, f, 20, 50) // balance 48 after the 2.0 loan fee
	returnLoan(t, f, r, r.DueDate.Add(5*24*time.Hour+2*time.Hour))

	// 5 days at 0.2 per day.
	assert.Equal(t, 47.0, f.walletDoc(t, "reader-1").Balance)

	doc := f.reservationDoc(t, r.GetID())
	assert.Equal(t, string(reservation.StatusReturned), doc.Status)
	assert.True(t, doc.FeeCharged)
	assert.Equal(t, 1.0, doc.LateFee)
	require.NotNil(t, doc.ReturnedAt)
	assert.Empty(t, f.bus.errs)
}

func TestLateFeeFlow_OnTimeReturnChargesNothing(t *testing.T) {
	f := newFixture(Config{})
	f.attachResponders()
	f.attachLateFees(0.2)

	r := activeLoan(t, f, 20, 50)
	returnLoan(t, f, r, r.DueDate.Add(-time.Hour))

	assert.Equal(t, 48.0, f.walletDoc(t, "reader-1").Balance)
	assert.Empty(t, f.bus.byType(wallet.EventTypeWalletLateFeeApplied))

	doc := f.reservationDoc(t, r.GetID())
	assert.Equal(t, string(reservation.StatusReturned), doc.Status)
	assert.False(t, doc.FeeCharged)
	assert.Equal(t, 0.0, doc.LateFee)
}

func TestLateFeeFlow_FeeCapConvertsLoanToPurchase(t *testing.T) {
	f := newFixture(Config{})
	f.attachResponders()
	f.attachLateFees(0.2)

	r := activeLoan(t, f, 20, 50) // balance 48 after the 2.0 loan fee
	returnLoan(t, f, r, r.DueDate.Add(100*24*time.Hour))

	// 100 days at 0.2 would be 20.0, capped at the retail price, which also
	// converts the loan into a purchase.
	assert.Equal(t, 28.0, f.walletDoc(t, "reader-1").Balance)

	doc := f.reservationDoc(t, r.GetID())
	assert.Equal(t, string(reservation.StatusBought), doc.Status)
	assert.Equal(t, "late_fees_reached_retail_price", doc.StatusReason)
	assert.True(t, doc.FeeCharged)
	assert.Equal(t, 20.0, doc.LateFee)

	fees := f.bus.byType(wallet.EventTypeWalletLateFeeApplied)
	require.Len(t, fees, 1)
	payload, ok := fees[0].Payload.(*wallet.LateFeeAppliedPayload)
	require.True(t, ok)
	assert.True(t, payload.BookPurchased)
	assert.Equal(t, 20.0, payload.CumulativeFee)
	assert.Empty(t, f.bus.errs)
}

func TestLateFeeFlow_RedeliveredFeeEventConverges(t *testing.T) {
	f := newFixture(Config{})
	f.attachResponders()
	f.attachLateFees(0.2)
	ctx := context.Background()

	r := activeLoan(t, f, 20, 50)
	returnLoan(t, f, r, r.DueDate.Add(5*24*time.Hour+2*time.Hour))

	fees := f.bus.byType(wallet.EventTypeWalletLateFeeApplied)
	require.Len(t, fees, 1)
	reservationStream := f.streamLen(t, r.GetID())

	require.NoError(t, f.bus.Publish(ctx, fees[0]))

	assert.Equal(t, 47.0, f.walletDoc(t, "reader-1").Balance)
	doc := f.reservationDoc(t, r.GetID())
	assert.Equal(t, 1.0, doc.LateFee)
	assert.Equal(t, reservationStream, f.streamLen(t, r.GetID()))
	assert.Empty(t, f.bus.errs)
}

func TestLateFeeFlow_MissingWalletSurfacesError(t *testing.T) {
	f := newFixture(Config{})
	f.attachBookValidation()
	f.attachLateFees(0.2)
	ctx := context.Background()

	// Activate the loan directly; the user never opened a wallet.
	bookID := f.createBook(t, "0515125628", 20)
	r := f.reserve(t, "reader-1", bookID)
	_, err := f.reservationCommands.UpdateReservationStatus(ctx, commands.UpdateReservationStatusCommand{
		ReservationID: r.GetID(),
		Status:        reservation.StatusActive,
		Meta:          shared.NewMetadata("reader-1"),
	})
	require.NoError(t, err)

	returnLoan(t, f, r, r.DueDate.Add(3*24*time.Hour))

	// The charge must not vanish: the handler error is what sends the
	// return to the dead-letter store on the real bus.
	require.NotEmpty(t, f.bus.errs)
	assert.Equal(t, 0.0, f.reservationDoc(t, r.GetID()).LateFee)
}
