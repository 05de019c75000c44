package projections

import (
	"context"

	"go.uber.org/zap"

	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// ReservationProjection folds reservation events into the reservations read
// model. Integration events (book validation, cancellation requests) carry
// no row state and are not subscribed.
type ReservationProjection struct {
	reservations repository.ReservationReadModel
	cache        repository.QueryCache
	logger       *zap.Logger
}

// NewReservationProjection wires the projection to its store. A non-nil
// cache has its reservations prefix invalidated after every applied patch.
func NewReservationProjection(reservations repository.ReservationReadModel, cache repository.QueryCache, logger *zap.Logger) *ReservationProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationProjection{reservations: reservations, cache: cache, logger: logger}
}

func (p *ReservationProjection) ProjectionName() string { return "projection.reservations" }

func (p *ReservationProjection) EventTypes() []string {
	return []string{
		reservation.EventTypeReservationCreated,
		reservation.EventTypeReservationStatusUpdated,
		reservation.EventTypeReservationReturned,
		reservation.EventTypeReservationFeeCharged,
		reservation.EventTypeReservationFeePaid,
		reservation.EventTypeReservationDueDateExtended,
		reservation.EventTypeReservationDeleted,
	}
}

func (p *ReservationProjection) Handle(ctx context.Context, event shared.Event) error {
	patch := repository.Patch{
		ID:        event.AggregateID,
		Version:   event.Version,
		UpdatedAt: event.Timestamp,
		Set:       map[string]interface{}{},
	}

	switch payload := event.Payload.(type) {
	case *reservation.CreatedPayload:
		patch.Set["userId"] = payload.UserID
		patch.Set["bookId"] = payload.BookID
		patch.Set["status"] = string(reservation.StatusCreated)
		patch.Set["retailPrice"] = payload.RetailPrice
		patch.Set["reservedAt"] = payload.ReservedAt
		patch.Set["dueDate"] = payload.DueDate
		patch.Set["feeCharged"] = false
		patch.Set["lateFee"] = 0.0
		patch.Set["createdAt"] = event.Timestamp

	case *reservation.StatusUpdatedPayload:
		patch.Set["status"] = string(payload.Status)
		patch.Set["statusReason"] = payload.Reason
		if payload.Payment != nil {
			patch.Set["payment"] = repository.ReservationPayment{
				Amount: payload.Payment.Amount,
				PaidAt: payload.Payment.PaidAt,
			}
		}

	case *reservation.ReturnedPayload:
		patch.Set["status"] = string(reservation.StatusReturned)
		patch.Set["returnedAt"] = payload.ReturnedAt

	case *reservation.FeeChargedPayload:
		patch.Set["feeCharged"] = true
		patch.Set["lateFee"] = payload.CumulativeFee

	case *reservation.FeePaidPayload:
		patch.Set["feeCharged"] = false

	case *reservation.DueDateExtendedPayload:
		patch.Set["dueDate"] = payload.NewDueDate

	case *reservation.DeletedPayload:
		patch.Set["deletedAt"] = payload.DeletedAt

	default:
		return apperrors.NewError(apperrors.CodeInternalError, "unexpected payload").
			WithDetails("event type %s", event.EventType).
			WithOperation("projection.reservations").
			Build()
	}

	if err := p.reservations.ApplyPatch(ctx, patch); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.InvalidatePrefix(repository.CachePrefixReservations)
	}
	return nil
}
