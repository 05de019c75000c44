package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// ReservationCommandHandler executes loan write operations.
type ReservationCommandHandler struct {
	core  handlerCore
	books repository.BookReadModel
}

// NewReservationCommandHandler wires the handler to the event store, the
// books read model used for the price snapshot, and the bus.
func NewReservationCommandHandler(events repository.EventStore, books repository.BookReadModel, bus Publisher, retry repository.RetryConfig, logger *zap.Logger) *ReservationCommandHandler {
	return &ReservationCommandHandler{
		core:  newHandlerCore(events, bus, retry, logger),
		books: books,
	}
}

// CreateReservation opens a loan in status created. The book must exist in
// the catalog so its retail price can be snapshotted; the saga revalidates
// it asynchronously before activating the loan.
func (h *ReservationCommandHandler) CreateReservation(ctx context.Context, cmd CreateReservationCommand) (*reservation.Reservation, error) {
	doc, err := h.books.GetByID(ctx, cmd.BookID)
	if err != nil {
		return nil, err
	}

	r, err := reservation.New(uuid.NewString(), cmd.UserID, cmd.BookID, doc.Price, cmd.DueDate, shared.NewMetadata(cmd.UserID))
	if err != nil {
		return nil, err
	}
	if err := h.core.commit(ctx, r); err != nil {
		return nil, err
	}
	h.core.logger.Info("reservation created",
		zap.String("reservationId", r.GetID()),
		zap.String("userId", r.UserID),
		zap.String("bookId", r.BookID))
	return r, nil
}

// ReturnReservation closes an ongoing loan. Late-fee accounting runs
// asynchronously off the ReservationReturned event.
func (h *ReservationCommandHandler) ReturnReservation(ctx context.Context, cmd ReturnReservationCommand) (*reservation.Reservation, error) {
	returnedAt := cmd.ReturnedAt
	if returnedAt.IsZero() {
		returnedAt = time.Now().UTC()
	}
	meta := shared.NewMetadata(cmd.UserID)
	r, err := h.mutateReservation(ctx, cmd.ReservationID, func(r *reservation.Reservation) error {
		return r.MarkAsReturned(returnedAt, meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("reservation returned",
		zap.String("reservationId", r.GetID()),
		zap.Int("daysLate", reservation.DaysLate(r.DueDate, returnedAt)))
	return r, nil
}

// ExtendReservationDueDate pushes the due date of an ongoing loan out.
func (h *ReservationCommandHandler) ExtendReservationDueDate(ctx context.Context, cmd ExtendReservationDueDateCommand) (*reservation.Reservation, error) {
	meta := shared.NewMetadata(cmd.UserID)
	r, err := h.mutateReservation(ctx, cmd.ReservationID, func(r *reservation.Reservation) error {
		return r.ExtendDueDate(cmd.NewDueDate, meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("reservation due date extended",
		zap.String("reservationId", r.GetID()),
		zap.Time("dueDate", r.DueDate))
	return r, nil
}

// CancelReservation aborts the loan and tells a still-running saga to stand
// down through a ReservationCancellationRequested integration event.
func (h *ReservationCommandHandler) CancelReservation(ctx context.Context, cmd CancelReservationCommand) (*reservation.Reservation, error) {
	meta := shared.NewMetadata(cmd.UserID)
	r, err := h.mutateReservation(ctx, cmd.ReservationID, func(r *reservation.Reservation) error {
		return r.Cancel(cmd.Reason, meta)
	})
	if err != nil {
		return nil, err
	}

	h.core.publish(ctx, shared.NewEvent(r.GetID(), 0, &reservation.CancellationRequestedPayload{
		ReservationID: r.GetID(),
		Reason:        cmd.Reason,
	}, meta))

	h.core.logger.Info("reservation cancelled",
		zap.String("reservationId", r.GetID()),
		zap.String("reason", cmd.Reason))
	return r, nil
}

// UpdateReservationStatus applies a lifecycle transition on behalf of the
// saga or the overdue scanner.
func (h *ReservationCommandHandler) UpdateReservationStatus(ctx context.Context, cmd UpdateReservationStatusCommand) (*reservation.Reservation, error) {
	r, err := h.mutateReservation(ctx, cmd.ReservationID, func(r *reservation.Reservation) error {
		return r.UpdateStatus(cmd.Status, cmd.Reason, cmd.Payment, cmd.Meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("reservation status updated",
		zap.String("reservationId", r.GetID()),
		zap.String("status", string(r.Status)),
		zap.String("correlationId", cmd.Meta.CorrelationID))
	return r, nil
}

// ChargeReservationFee records a late fee against the loan. When the fee
// reached the retail price the same append converts the loan to bought.
// Charges the loan already carries and conversions already made are no-ops,
// so the command is safe under redelivery.
func (h *ReservationCommandHandler) ChargeReservationFee(ctx context.Context, cmd ChargeReservationFeeCommand) (*reservation.Reservation, error) {
	r, err := h.mutateReservation(ctx, cmd.ReservationID, func(r *reservation.Reservation) error {
		if err := r.ChargeFee(cmd.Amount, cmd.CumulativeFee, cmd.DaysLate, cmd.BookPurchased, cmd.Meta); err != nil {
			return err
		}
		if cmd.BookPurchased && r.Status != reservation.StatusBought {
			return r.MarkAsBought(cmd.Meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("reservation fee charged",
		zap.String("reservationId", r.GetID()),
		zap.Float64("amount", cmd.Amount),
		zap.Bool("bookPurchased", cmd.BookPurchased))
	return r, nil
}

// MarkReservationFeePaid settles the outstanding fee on the loan.
func (h *ReservationCommandHandler) MarkReservationFeePaid(ctx context.Context, cmd MarkReservationFeePaidCommand) (*reservation.Reservation, error) {
	meta := shared.NewMetadata(cmd.UserID)
	r, err := h.mutateReservation(ctx, cmd.ReservationID, func(r *reservation.Reservation) error {
		return r.PayFee(cmd.Amount, meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("reservation fee paid",
		zap.String("reservationId", r.GetID()),
		zap.Float64("amount", cmd.Amount))
	return r, nil
}

// DeleteReservation tombstones a finished loan.
func (h *ReservationCommandHandler) DeleteReservation(ctx context.Context, cmd DeleteReservationCommand) error {
	meta := shared.NewMetadata(cmd.UserID)
	r, err := h.mutateReservation(ctx, cmd.ReservationID, func(r *reservation.Reservation) error {
		return r.Delete(meta)
	})
	if err != nil {
		return err
	}
	h.core.logger.Info("reservation deleted", zap.String("reservationId", r.GetID()))
	return nil
}

func (h *ReservationCommandHandler) mutateReservation(ctx context.Context, id string, op func(*reservation.Reservation) error) (*reservation.Reservation, error) {
	return mutate(ctx, h.core, id, reservationNotFound(id), reservation.Empty, op)
}

func reservationNotFound(id string) error {
	return apperrors.NewError(apperrors.CodeReservationNotFound, "reservation not found").
		WithResource("reservation").
		WithDetails("id=%s", id).
		Build()
}
