package sagas

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/domain/book"
	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// Cancellation reasons written onto the reservation when the saga unwinds.
const (
	cancelReasonPaymentDeclined = "payment_declined"
	cancelReasonStepTimedOut    = "saga_step_timed_out"
	cancelReasonStepFailed      = "saga_step_failed"
)

// Compensation records kept on the saga row.
const (
	compensationReservationCancelled = "reservation_cancelled"
	compensationCancelSkipped        = "reservation_cancel_skipped"
)

// ReservationStatusWriter applies saga-driven lifecycle transitions.
type ReservationStatusWriter interface {
	UpdateReservationStatus(ctx context.Context, cmd commands.UpdateReservationStatusCommand) (*reservation.Reservation, error)
}

// Config bounds the saga's waiting steps.
type Config struct {
	// StepTimeout is how long a waiting step may go without progress before
	// the watchdog acts on it.
	StepTimeout time.Duration
	// MaxRetries caps reissued requests per step; past it the saga
	// compensates.
	MaxRetries int
	// LoanFeeRate is the fraction of the retail price charged when a
	// reservation activates.
	LoanFeeRate float64
}

// DefaultConfig mirrors the documented environment defaults.
func DefaultConfig() Config {
	return Config{
		StepTimeout: 30 * time.Second,
		MaxRetries:  3,
		LoanFeeRate: 0.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.LoanFeeRate <= 0 {
		c.LoanFeeRate = d.LoanFeeRate
	}
	return c
}

// ReservationPaymentSaga walks a reservation from created to active: it asks
// the Books context to validate the reserved book, then the Wallets context
// to collect the loan fee, and finalizes the reservation according to the
// replies. Progress lives in one saga row per reservation; duplicate
// deliveries are matched on the last processed causation id, replies for
// finished sagas are dropped, and any step the saga cannot complete unwinds
// through Compensating into Failed.
type ReservationPaymentSaga struct {
	store        repository.SagaStore
	reservations ReservationStatusWriter
	bus          Publisher
	cfg          Config
	logger       *zap.Logger
}

// Compile-time interface check
var _ Handler = (*ReservationPaymentSaga)(nil)

// NewReservationPaymentSaga wires the orchestrator to its state store, the
// reservation write side, and the bus.
func NewReservationPaymentSaga(store repository.SagaStore, reservations ReservationStatusWriter, bus Publisher, cfg Config, logger *zap.Logger) *ReservationPaymentSaga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationPaymentSaga{
		store:        store,
		reservations: reservations,
		bus:          bus,
		cfg:          cfg.withDefaults(),
		logger:       logger,
	}
}

func (s *ReservationPaymentSaga) SubscriberName() string { return "saga.reservation_payment" }

func (s *ReservationPaymentSaga) EventTypes() []string {
	return []string{
		reservation.EventTypeReservationCreated,
		book.EventTypeBookValidationResult,
		reservation.EventTypeReservationBookValidation + shared.FailureSuffix,
		wallet.EventTypeWalletPaymentSuccess,
		wallet.EventTypeWalletPaymentDeclined,
		reservation.EventTypeCancellationRequested,
	}
}

// Handle folds one inbound event into the saga. Errors bubble only for
// infrastructure failures, where the bus retry is the recovery; every
// business outcome, including failures, lands in the saga row.
func (s *ReservationPaymentSaga) Handle(ctx context.Context, event shared.Event) error {
	switch p := event.Payload.(type) {
	case *reservation.CreatedPayload:
		return s.onReservationCreated(ctx, event, p)
	case *book.ValidationResultPayload:
		return s.onValidationResult(ctx, event, p)
	case shared.FailurePayload:
		return s.onValidationFailed(ctx, event, p)
	case *wallet.PaymentSuccessPayload:
		return s.onPaymentSuccess(ctx, event, p)
	case *wallet.PaymentDeclinedPayload:
		return s.onPaymentDeclined(ctx, event, p)
	case *reservation.CancellationRequestedPayload:
		return s.onCancellationRequested(ctx, event, p)
	default:
		return apperrors.NewError(apperrors.CodeInternalError, "unexpected payload").
			WithDetails("event type %s", event.EventType).
			WithOperation("saga.reservation_payment").
			Build()
	}
}

func (s *ReservationPaymentSaga) onReservationCreated(ctx context.Context, event shared.Event, p *reservation.CreatedPayload) error {
	existing, err := s.store.GetByReservationID(ctx, event.AggregateID)
	if err != nil && !apperrors.HasCode(err, apperrors.CodeSagaNotFound) {
		return err
	}
	if existing != nil {
		s.logger.Debug("saga already started",
			zap.String("reservationId", event.AggregateID))
		return nil
	}

	now := time.Now().UTC()
	state := &repository.SagaState{
		ID:              uuid.NewString(),
		ReservationID:   event.AggregateID,
		UserID:          p.UserID,
		BookID:          p.BookID,
		Step:            repository.SagaStepAwaitingBookValidation,
		Status:          repository.SagaStatusRunning,
		RetailPrice:     p.RetailPrice,
		LastCausationID: event.EventID,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Upsert(ctx, state); err != nil {
		return err
	}

	// A lost request is reissued by the watchdog once the step stalls.
	if err := s.requestBookValidation(ctx, state, shared.NextMetadata(event)); err != nil {
		s.logger.Warn("book validation request not published",
			zap.String("reservationId", state.ReservationID),
			zap.Error(err))
	}
	s.logger.Info("saga started",
		zap.String("reservationId", state.ReservationID),
		zap.String("bookId", state.BookID),
		zap.String("correlationId", event.Metadata.CorrelationID))
	return nil
}

func (s *ReservationPaymentSaga) onValidationResult(ctx context.Context, event shared.Event, p *book.ValidationResultPayload) error {
	state, ok, err := s.loadWaiting(ctx, p.ReservationID, event, repository.SagaStepAwaitingBookValidation)
	if err != nil || !ok {
		return err
	}

	if !p.Valid {
		reason := p.Reason
		if reason == "" {
			reason = "book_validation_failed"
		}
		return s.reject(ctx, state, event, reason)
	}

	if _, err := s.reservations.UpdateReservationStatus(ctx, commands.UpdateReservationStatusCommand{
		ReservationID: state.ReservationID,
		Status:        reservation.StatusValidated,
		Meta:          shared.NextMetadata(event),
	}); err != nil {
		if isSettledConflict(err) {
			state.LastCausationID = event.EventID
			s.compensate(ctx, state, shared.NextMetadata(event), cancelReasonStepFailed)
			return nil
		}
		return err
	}

	state.LastCausationID = event.EventID
	if err := s.advance(ctx, state, repository.SagaStepAwaitingPayment, repository.SagaStatusRunning); err != nil {
		return err
	}
	if err := s.requestPayment(ctx, state, shared.NextMetadata(event)); err != nil {
		s.logger.Warn("payment request not published",
			zap.String("reservationId", state.ReservationID),
			zap.Error(err))
	}
	s.logger.Info("book validated, awaiting payment",
		zap.String("reservationId", state.ReservationID),
		zap.Float64("amount", s.loanFee(state)),
		zap.String("correlationId", event.Metadata.CorrelationID))
	return nil
}

func (s *ReservationPaymentSaga) onValidationFailed(ctx context.Context, event shared.Event, p shared.FailurePayload) error {
	state, ok, err := s.loadWaiting(ctx, event.AggregateID, event, repository.SagaStepAwaitingBookValidation)
	if err != nil || !ok {
		return err
	}
	s.logger.Warn("book validation failed terminally",
		zap.String("reservationId", state.ReservationID),
		zap.String("subscriber", p.Subscriber),
		zap.String("reason", p.Reason))
	return s.reject(ctx, state, event, "book_validation_failed")
}

func (s *ReservationPaymentSaga) onPaymentSuccess(ctx context.Context, event shared.Event, p *wallet.PaymentSuccessPayload) error {
	state, ok, err := s.loadWaiting(ctx, p.ReservationID, event, repository.SagaStepAwaitingPayment)
	if err != nil || !ok {
		return err
	}

	if _, err := s.reservations.UpdateReservationStatus(ctx, commands.UpdateReservationStatusCommand{
		ReservationID: state.ReservationID,
		Status:        reservation.StatusActive,
		Payment:       &reservation.PaymentInfo{Amount: p.Amount, PaidAt: p.PaidAt},
		Meta:          shared.NextMetadata(event),
	}); err != nil {
		if isSettledConflict(err) {
			// The loan no longer wants activation; the fee stays collected
			// on the wallet stream for support to resolve.
			state.LastCausationID = event.EventID
			s.compensate(ctx, state, shared.NextMetadata(event), cancelReasonStepFailed)
			return nil
		}
		return err
	}

	state.FeeCharged = p.Amount
	state.LastCausationID = event.EventID
	if err := s.advance(ctx, state, repository.SagaStepCompleted, repository.SagaStatusCompleted); err != nil {
		return err
	}
	s.logger.Info("saga completed",
		zap.String("reservationId", state.ReservationID),
		zap.Float64("amount", p.Amount),
		zap.String("correlationId", event.Metadata.CorrelationID))
	return nil
}

func (s *ReservationPaymentSaga) onPaymentDeclined(ctx context.Context, event shared.Event, p *wallet.PaymentDeclinedPayload) error {
	state, ok, err := s.loadWaiting(ctx, p.ReservationID, event, repository.SagaStepAwaitingPayment)
	if err != nil || !ok {
		return err
	}
	s.logger.Info("payment declined",
		zap.String("reservationId", state.ReservationID),
		zap.String("reason", p.Reason),
		zap.String("correlationId", event.Metadata.CorrelationID))
	state.LastCausationID = event.EventID
	s.compensate(ctx, state, shared.NextMetadata(event), cancelReasonPaymentDeclined)
	return nil
}

func (s *ReservationPaymentSaga) onCancellationRequested(ctx context.Context, event shared.Event, p *reservation.CancellationRequestedPayload) error {
	state, ok, err := s.loadWaiting(ctx, p.ReservationID, event,
		repository.SagaStepAwaitingBookValidation, repository.SagaStepAwaitingPayment)
	if err != nil || !ok {
		return err
	}
	reason := p.Reason
	if reason == "" {
		reason = "cancellation_requested"
	}
	s.logger.Info("cancellation requested, unwinding saga",
		zap.String("reservationId", state.ReservationID),
		zap.String("reason", reason))
	state.LastCausationID = event.EventID
	s.compensate(ctx, state, shared.NextMetadata(event), reason)
	return nil
}

// loadWaiting loads the saga for an inbound reply and filters everything
// that must not drive it: unknown sagas, finished sagas, redeliveries, and
// replies for a step the saga is no longer in.
func (s *ReservationPaymentSaga) loadWaiting(ctx context.Context, reservationID string, event shared.Event, steps ...string) (*repository.SagaState, bool, error) {
	state, err := s.store.GetByReservationID(ctx, reservationID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeSagaNotFound) {
			s.logger.Debug("no saga for event",
				zap.String("eventType", event.EventType),
				zap.String("reservationId", reservationID))
			return nil, false, nil
		}
		return nil, false, err
	}
	if state.IsTerminal() || state.Seen(event.EventID) {
		return nil, false, nil
	}
	for _, step := range steps {
		if state.Step == step {
			return state, true, nil
		}
	}
	s.logger.Debug("event does not match saga step",
		zap.String("eventType", event.EventType),
		zap.String("reservationId", reservationID),
		zap.String("step", state.Step))
	return nil, false, nil
}

// reject finalizes a saga whose book validation came back negative: the
// reservation is rejected and the saga goes straight to Failed, skipping
// Compensating because nothing was charged yet.
func (s *ReservationPaymentSaga) reject(ctx context.Context, state *repository.SagaState, event shared.Event, reason string) error {
	if _, err := s.reservations.UpdateReservationStatus(ctx, commands.UpdateReservationStatusCommand{
		ReservationID: state.ReservationID,
		Status:        reservation.StatusRejected,
		Reason:        reason,
		Meta:          shared.NextMetadata(event),
	}); err != nil && !isSettledConflict(err) {
		return err
	}

	state.LastCausationID = event.EventID
	state.LastError = reason
	if err := s.advance(ctx, state, repository.SagaStepFailed, repository.SagaStatusFailed); err != nil {
		return err
	}
	s.logger.Info("saga failed, reservation rejected",
		zap.String("reservationId", state.ReservationID),
		zap.String("reason", reason),
		zap.String("correlationId", event.Metadata.CorrelationID))
	return nil
}

// compensate unwinds a saga that cannot complete. The row passes through
// Compensating so a crash mid-unwind is visible to the watchdog, which
// finishes the job.
func (s *ReservationPaymentSaga) compensate(ctx context.Context, state *repository.SagaState, meta shared.Metadata, cancelReason string) {
	state.LastError = cancelReason
	if err := s.advance(ctx, state, repository.SagaStepCompensating, repository.SagaStatusCompensating); err != nil {
		s.logger.Error("saga state update failed",
			zap.String("reservationId", state.ReservationID),
			zap.Error(err))
		return
	}
	s.finishCompensation(ctx, state, meta)
}

// finishCompensation cancels the reservation unless it already reached a
// terminal status, records what was done, and closes the saga as Failed.
func (s *ReservationPaymentSaga) finishCompensation(ctx context.Context, state *repository.SagaState, meta shared.Metadata) {
	cancelReason := state.LastError
	if cancelReason == "" {
		cancelReason = cancelReasonStepFailed
	}

	_, err := s.reservations.UpdateReservationStatus(ctx, commands.UpdateReservationStatusCommand{
		ReservationID: state.ReservationID,
		Status:        reservation.StatusCancelled,
		Reason:        cancelReason,
		Meta:          meta,
	})
	switch {
	case err == nil:
		state.Compensations = append(state.Compensations, compensationReservationCancelled)
	case isSettledConflict(err):
		state.Compensations = append(state.Compensations, compensationCancelSkipped)
	default:
		// Leave the row in Compensating; the watchdog retries the unwind.
		s.logger.Error("compensation failed",
			zap.String("reservationId", state.ReservationID),
			zap.Error(err))
		return
	}

	if err := s.advance(ctx, state, repository.SagaStepFailed, repository.SagaStatusFailed); err != nil {
		s.logger.Error("saga state update failed",
			zap.String("reservationId", state.ReservationID),
			zap.Error(err))
		return
	}
	s.logger.Info("saga compensated",
		zap.String("reservationId", state.ReservationID),
		zap.String("reason", cancelReason),
		zap.Strings("compensations", state.Compensations))
}

// advance persists a step transition. UpdatedAt moves on every write, which
// is what the watchdog's stall scan keys on; the retry budget is per step.
func (s *ReservationPaymentSaga) advance(ctx context.Context, state *repository.SagaState, step, status string) error {
	state.Step = step
	state.Status = status
	state.Retries = 0
	now := time.Now().UTC()
	state.UpdatedAt = now
	if step == repository.SagaStepCompleted || step == repository.SagaStepFailed {
		state.CompletedAt = &now
	}
	return s.store.Upsert(ctx, state)
}

func (s *ReservationPaymentSaga) requestBookValidation(ctx context.Context, state *repository.SagaState, meta shared.Metadata) error {
	return s.bus.Publish(ctx, shared.NewEvent(state.ReservationID, 0, &reservation.BookValidationPayload{
		ReservationID: state.ReservationID,
		BookID:        state.BookID,
		UserID:        state.UserID,
	}, meta))
}

func (s *ReservationPaymentSaga) requestPayment(ctx context.Context, state *repository.SagaState, meta shared.Metadata) error {
	return s.bus.Publish(ctx, shared.NewEvent(state.ReservationID, 0, &wallet.PaymentRequestPayload{
		ReservationID: state.ReservationID,
		UserID:        state.UserID,
		Amount:        s.loanFee(state),
	}, meta))
}

// loanFee is the activation charge: a configured fraction of the retail
// price captured at reservation time.
func (s *ReservationPaymentSaga) loanFee(state *repository.SagaState) float64 {
	return wallet.Round1(state.RetailPrice * s.cfg.LoanFeeRate)
}

// isSettledConflict reports whether a reservation update failed because the
// reservation already moved on without the saga: gone, or in a status the
// transition no longer fits. Those are outcomes to record, not to retry.
func isSettledConflict(err error) bool {
	return apperrors.HasCode(err, apperrors.CodeReservationInvalidTransition) ||
		apperrors.HasCode(err, apperrors.CodeReservationNotFound)
}
