package sagas

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/repository"
)

// watchdogBatch bounds how many stalled rows one sweep acts on.
const watchdogBatch = 50

// Watchdog rescues stalled sagas. Waiting steps past their timeout get the
// step's request reissued up to the retry cap, then the saga compensates;
// rows stuck mid-compensation are driven to Failed.
type Watchdog struct {
	saga     *ReservationPaymentSaga
	interval time.Duration
	logger   *zap.Logger
}

// NewWatchdog wires the watchdog to the orchestrator it sweeps for. A
// non-positive interval defaults to half the step timeout.
func NewWatchdog(saga *ReservationPaymentSaga, interval time.Duration, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = saga.cfg.StepTimeout / 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{saga: saga, interval: interval, logger: logger}
}

// Run sweeps on a ticker until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("saga watchdog running",
		zap.Duration("interval", w.interval),
		zap.Duration("stepTimeout", w.saga.cfg.StepTimeout))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("saga watchdog stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("saga sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep acts once on every saga that stalled past the step timeout and
// reports how many it touched.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-w.saga.cfg.StepTimeout)
	stalled, err := w.saga.store.ListStalled(ctx, cutoff, watchdogBatch)
	if err != nil {
		return 0, err
	}

	acted := 0
	for i := range stalled {
		state := &stalled[i]
		switch state.Step {
		case repository.SagaStepAwaitingBookValidation, repository.SagaStepAwaitingPayment:
			w.rescue(ctx, state)
			acted++
		case repository.SagaStepCompensating:
			w.saga.finishCompensation(ctx, state, shared.NewMetadata(state.UserID))
			acted++
		}
	}
	return acted, nil
}

func (w *Watchdog) rescue(ctx context.Context, state *repository.SagaState) {
	if state.Retries >= w.saga.cfg.MaxRetries {
		w.logger.Warn("saga out of retries, compensating",
			zap.String("reservationId", state.ReservationID),
			zap.String("step", state.Step),
			zap.Int("retries", state.Retries))
		w.saga.compensate(ctx, state, shared.NewMetadata(state.UserID), cancelReasonStepTimedOut)
		return
	}

	// Count the retry before reissuing so a crash cannot reissue unbounded.
	state.Retries++
	state.UpdatedAt = time.Now().UTC()
	if err := w.saga.store.Upsert(ctx, state); err != nil {
		w.logger.Error("saga state update failed",
			zap.String("reservationId", state.ReservationID),
			zap.Error(err))
		return
	}

	meta := shared.NewMetadata(state.UserID)
	var err error
	switch state.Step {
	case repository.SagaStepAwaitingBookValidation:
		err = w.saga.requestBookValidation(ctx, state, meta)
	case repository.SagaStepAwaitingPayment:
		err = w.saga.requestPayment(ctx, state, meta)
	default:
		err = fmt.Errorf("step %s is not reissuable", state.Step)
	}
	if err != nil {
		w.logger.Warn("saga request reissue failed",
			zap.String("reservationId", state.ReservationID),
			zap.String("step", state.Step),
			zap.Error(err))
		return
	}
	w.logger.Info("saga request reissued",
		zap.String("reservationId", state.ReservationID),
		zap.String("step", state.Step),
		zap.Int("retry", state.Retries))
}
