package sagas

import (
	"context"

	"go.uber.org/zap"

	"libris-backend/internal/domain/book"
	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// BookValidationHandler is the Books context's side of the saga
// conversation: it answers ReservationBookValidation requests by checking
// the catalog projection and publishing a BookValidationResult addressed to
// the requesting reservation.
type BookValidationHandler struct {
	books  repository.BookReadModel
	bus    Publisher
	logger *zap.Logger
}

// Compile-time interface check
var _ Handler = (*BookValidationHandler)(nil)

// NewBookValidationHandler wires the responder to the catalog read model
// and the bus.
func NewBookValidationHandler(books repository.BookReadModel, bus Publisher, logger *zap.Logger) *BookValidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookValidationHandler{books: books, bus: bus, logger: logger}
}

func (h *BookValidationHandler) SubscriberName() string { return "saga.book_validation" }

func (h *BookValidationHandler) EventTypes() []string {
	return []string{reservation.EventTypeReservationBookValidation}
}

// Handle checks that the requested book exists and is not tombstoned. The
// reply is always published; only infrastructure failures bubble so the bus
// can retry the request.
func (h *BookValidationHandler) Handle(ctx context.Context, event shared.Event) error {
	p, ok := event.Payload.(*reservation.BookValidationPayload)
	if !ok {
		return apperrors.NewError(apperrors.CodeInternalError, "unexpected payload").
			WithDetails("event type %s", event.EventType).
			WithOperation("saga.book_validation").
			Build()
	}

	valid := true
	reason := ""
	if _, err := h.books.GetByID(ctx, p.BookID); err != nil {
		if !apperrors.HasCode(err, apperrors.CodeBookNotFound) {
			return err
		}
		valid = false
		reason = "book_not_found"
	}

	result := shared.NewEvent(p.ReservationID, 0, &book.ValidationResultPayload{
		ReservationID: p.ReservationID,
		BookID:        p.BookID,
		Valid:         valid,
		Reason:        reason,
	}, shared.NextMetadata(event))
	if err := h.bus.Publish(ctx, result); err != nil {
		return err
	}

	h.logger.Info("book validation answered",
		zap.String("reservationId", p.ReservationID),
		zap.String("bookId", p.BookID),
		zap.Bool("valid", valid),
		zap.String("correlationId", event.Metadata.CorrelationID))
	return nil
}
