// Package wallet models the Wallets bounded context: user balances, payment
// settlement, and late-fee accounting.
package wallet

import (
	"fmt"
	"math"
	"time"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/errors"
)

// DeclineReasonInsufficientFunds is the reason recorded when a payment
// request exceeds the balance.
const DeclineReasonInsufficientFunds = "insufficient_funds"

// Wallet is the balance aggregate. Exactly one wallet exists per user;
// uniqueness is enforced at creation through the projection's unique
// user index.
type Wallet struct {
	shared.BaseAggregateRoot

	UserID    string
	Balance   float64
	CreatedAt time.Time
	UpdatedAt time.Time

	// feesByReservation accumulates late fees charged per reservation, the
	// basis of the purchase-conversion rule.
	feesByReservation map[string]float64
	// paidReservations holds reservations whose payment already settled, so
	// a reissued payment request cannot debit twice.
	paidReservations map[string]struct{}
}

// Empty returns a blank aggregate ready for rehydration.
func Empty(id string) *Wallet {
	return &Wallet{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(id),
		feesByReservation: make(map[string]float64),
		paidReservations:  make(map[string]struct{}),
	}
}

// New opens a wallet with an initial balance.
func New(id, userID string, initialBalance float64, meta shared.Metadata) (*Wallet, error) {
	if userID == "" {
		return nil, errors.NewError(errors.CodeWalletInvalidData, "userId is required").
			WithResource("wallet").
			Build()
	}
	if initialBalance < 0 {
		return nil, errors.NewError(errors.CodeWalletInvalidData, "initial balance must not be negative").
			WithResource("wallet").
			Build()
	}

	w := Empty(id)
	payload := &CreatedPayload{
		UserID:    userID,
		Balance:   initialBalance,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.raise(payload, meta); err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateBalance credits (positive delta) or debits (negative delta) the
// wallet. Direct debits may not overdraw; fee debits go through
// ApplyLateFee, which may.
func (w *Wallet) UpdateBalance(delta float64, reason string, meta shared.Metadata) error {
	if delta == 0 {
		return errors.NewError(errors.CodeWalletInvalidData, "delta must not be zero").
			WithResource("wallet").
			Build()
	}
	newBalance := round2(w.Balance + delta)
	if newBalance < 0 {
		return errors.NewError(errors.CodeWalletInvalidTransition, "balance must not go negative").
			WithResource("wallet").
			WithDetails("balance=%.2f delta=%.2f", w.Balance, delta).
			Build()
	}
	return w.raise(&BalanceUpdatedPayload{
		Delta:      delta,
		NewBalance: newBalance,
		Reason:     reason,
		UpdatedAt:  time.Now().UTC(),
	}, meta)
}

// ApplyLateFee charges round1(daysLate × feePerDay) against the wallet for
// a late return. The charge is capped so cumulative fees for a reservation
// never exceed its retail price; reaching the price converts the loan into
// a purchase. Fee debits may overdraw the balance.
func (w *Wallet) ApplyLateFee(reservationID string, daysLate int, retailPrice, feePerDay float64, meta shared.Metadata) error {
	if reservationID == "" {
		return errors.NewError(errors.CodeWalletInvalidData, "reservationId is required").
			WithResource("wallet").
			Build()
	}
	if daysLate <= 0 {
		return errors.NewError(errors.CodeWalletInvalidData, "daysLate must be positive").
			WithResource("wallet").
			Build()
	}

	fee := Round1(float64(daysLate) * feePerDay)
	alreadyCharged := w.feesByReservation[reservationID]
	if retailPrice > 0 {
		if remaining := round2(retailPrice - alreadyCharged); fee > remaining {
			fee = remaining
		}
	}
	if fee <= 0 {
		// Fees already reached the retail price; nothing left to charge.
		return nil
	}

	cumulative := round2(alreadyCharged + fee)
	purchased := retailPrice > 0 && cumulative >= retailPrice

	return w.raise(&LateFeeAppliedPayload{
		ReservationID: reservationID,
		DaysLate:      daysLate,
		Fee:           fee,
		CumulativeFee: cumulative,
		RetailPrice:   retailPrice,
		NewBalance:    round2(w.Balance - fee),
		BookPurchased: purchased,
		AppliedAt:     time.Now().UTC(),
	}, meta)
}

// ProcessPayment settles a payment request: success debits the balance,
// insufficient funds records a decline without touching it. Both outcomes
// are events, not errors; the saga decides what happens next. A request for
// a reservation that already settled is a no-op.
func (w *Wallet) ProcessPayment(reservationID string, amount float64, meta shared.Metadata) error {
	if amount < 0 {
		return errors.NewError(errors.CodeWalletInvalidData, "payment amount must not be negative").
			WithResource("wallet").
			Build()
	}
	if _, settled := w.paidReservations[reservationID]; settled {
		return nil
	}
	now := time.Now().UTC()
	if amount > w.Balance {
		return w.raise(&PaymentDeclinedPayload{
			ReservationID: reservationID,
			Amount:        amount,
			Reason:        DeclineReasonInsufficientFunds,
			DeclinedAt:    now,
		}, meta)
	}
	return w.raise(&PaymentSuccessPayload{
		ReservationID: reservationID,
		Amount:        amount,
		NewBalance:    round2(w.Balance - amount),
		PaidAt:        now,
	}, meta)
}

// FeesFor returns the cumulative late fees charged against a reservation.
func (w *Wallet) FeesFor(reservationID string) float64 {
	return w.feesByReservation[reservationID]
}

func (w *Wallet) raise(payload shared.Payload, meta shared.Metadata) error {
	event := shared.NewEvent(w.GetID(), w.NextVersion(), payload, meta)
	if err := w.Apply(event); err != nil {
		return err
	}
	w.AddDomainEvent(event)
	return nil
}

// Apply routes an event to its state mutation.
func (w *Wallet) Apply(event shared.Event) error {
	if w.feesByReservation == nil {
		w.feesByReservation = make(map[string]float64)
	}
	if w.paidReservations == nil {
		w.paidReservations = make(map[string]struct{})
	}

	switch p := event.Payload.(type) {
	case *CreatedPayload:
		w.UserID = p.UserID
		w.Balance = p.Balance
		w.CreatedAt = p.CreatedAt
		w.UpdatedAt = p.CreatedAt

	case *BalanceUpdatedPayload:
		w.Balance = p.NewBalance
		w.UpdatedAt = p.UpdatedAt

	case *LateFeeAppliedPayload:
		w.Balance = p.NewBalance
		w.feesByReservation[p.ReservationID] = p.CumulativeFee
		w.UpdatedAt = p.AppliedAt

	case *PaymentSuccessPayload:
		w.Balance = p.NewBalance
		w.paidReservations[p.ReservationID] = struct{}{}
		w.UpdatedAt = p.PaidAt

	case *PaymentDeclinedPayload:
		// Declines are recorded but change no balance.
		w.UpdatedAt = p.DeclinedAt

	default:
		return fmt.Errorf("wallet: unexpected event type %s", event.EventType)
	}

	w.Advance(event)
	return nil
}

// Round1 rounds to one decimal place, the precision of fee amounts.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
