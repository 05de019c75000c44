package sagas

import (
	"context"

	"go.uber.org/zap"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	apperrors "libris-backend/internal/errors"
)

// LateFeeApplier charges late-return fees against a wallet.
type LateFeeApplier interface {
	ApplyLateFee(ctx context.Context, cmd commands.ApplyLateFeeCommand) (*wallet.Wallet, error)
}

// FeeRecorder mirrors wallet fee charges onto the reservation.
type FeeRecorder interface {
	ChargeReservationFee(ctx context.Context, cmd commands.ChargeReservationFeeCommand) (*reservation.Reservation, error)
}

// LateFeeHandler settles the cost of a late return in two hops: a late
// ReservationReturned debits the borrower's wallet, and the resulting
// WalletLateFeeApplied is mirrored back onto the reservation, converting it
// to bought when the cumulative fee reached the retail price. Both commands
// are no-ops on redelivery, so the chain is safe under at-least-once
// delivery.
type LateFeeHandler struct {
	wallets      LateFeeApplier
	reservations FeeRecorder
	feePerDay    float64
	logger       *zap.Logger
}

// Compile-time interface check
var _ Handler = (*LateFeeHandler)(nil)

// NewLateFeeHandler wires the chain to both write sides. feePerDay at or
// below zero falls back to the documented 0.2 default.
func NewLateFeeHandler(wallets LateFeeApplier, reservations FeeRecorder, feePerDay float64, logger *zap.Logger) *LateFeeHandler {
	if feePerDay <= 0 {
		feePerDay = 0.2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LateFeeHandler{
		wallets:      wallets,
		reservations: reservations,
		feePerDay:    feePerDay,
		logger:       logger,
	}
}

func (h *LateFeeHandler) SubscriberName() string { return "saga.late_fees" }

func (h *LateFeeHandler) EventTypes() []string {
	return []string{
		reservation.EventTypeReservationReturned,
		wallet.EventTypeWalletLateFeeApplied,
	}
}

// Handle runs one hop of the chain. Errors bubble: a failed charge must end
// up in the dead-letter store, not vanish, because the fee is money.
func (h *LateFeeHandler) Handle(ctx context.Context, event shared.Event) error {
	switch p := event.Payload.(type) {
	case *reservation.ReturnedPayload:
		return h.onReturned(ctx, event, p)
	case *wallet.LateFeeAppliedPayload:
		return h.onFeeApplied(ctx, event, p)
	default:
		return apperrors.NewError(apperrors.CodeInternalError, "unexpected payload").
			WithDetails("event type %s", event.EventType).
			WithOperation("saga.late_fees").
			Build()
	}
}

func (h *LateFeeHandler) onReturned(ctx context.Context, event shared.Event, p *reservation.ReturnedPayload) error {
	if p.DaysLate <= 0 {
		return nil
	}

	w, err := h.wallets.ApplyLateFee(ctx, commands.ApplyLateFeeCommand{
		WalletUserID:  p.UserID,
		ReservationID: event.AggregateID,
		DaysLate:      p.DaysLate,
		RetailPrice:   p.RetailPrice,
		FeePerDay:     h.feePerDay,
		Meta:          shared.NextMetadata(event),
	})
	if err != nil {
		// A missing wallet dead-letters the return, keeping the fee
		// recoverable once the wallet exists.
		return err
	}

	h.logger.Info("late fee charged",
		zap.String("reservationId", event.AggregateID),
		zap.String("walletId", w.GetID()),
		zap.Int("daysLate", p.DaysLate),
		zap.String("correlationId", event.Metadata.CorrelationID))
	return nil
}

func (h *LateFeeHandler) onFeeApplied(ctx context.Context, event shared.Event, p *wallet.LateFeeAppliedPayload) error {
	r, err := h.reservations.ChargeReservationFee(ctx, commands.ChargeReservationFeeCommand{
		ReservationID: p.ReservationID,
		Amount:        p.Fee,
		CumulativeFee: p.CumulativeFee,
		DaysLate:      p.DaysLate,
		BookPurchased: p.BookPurchased,
		Meta:          shared.NextMetadata(event),
	})
	if err != nil {
		return err
	}

	if p.BookPurchased {
		h.logger.Info("late fees reached retail price, loan converted to purchase",
			zap.String("reservationId", p.ReservationID),
			zap.String("status", string(r.Status)),
			zap.Float64("cumulativeFee", p.CumulativeFee),
			zap.String("correlationId", event.Metadata.CorrelationID))
	}
	return nil
}
