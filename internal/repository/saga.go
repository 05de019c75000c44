package repository

import (
	"context"
	"time"
)

// Saga lifecycle steps. A saga advances forward through the Awaiting
// steps and terminates in Completed or Failed; Compensating is the
// in-between state while compensations are being issued.
const (
	SagaStepAwaitingBookValidation = "AwaitingBookValidation"
	SagaStepAwaitingPayment        = "AwaitingPayment"
	SagaStepCompleted              = "Completed"
	SagaStepCompensating           = "Compensating"
	SagaStepFailed                 = "Failed"
)

// Saga status values, coarser than steps.
const (
	SagaStatusRunning      = "running"
	SagaStatusCompleted    = "completed"
	SagaStatusCompensating = "compensating"
	SagaStatusFailed       = "failed"
)

// SagaState is the persisted progress of one reservation-payment saga.
// There is exactly one row per reservation; retries and restarts land on
// the same row. LastCausationID dedupes redelivered events: a reply whose
// event id matches it has already been folded in.
type SagaState struct {
	ID              string     `json:"id" dynamodbav:"id"`
	ReservationID   string     `json:"reservationId" dynamodbav:"reservationId"`
	UserID          string     `json:"userId" dynamodbav:"userId"`
	BookID          string     `json:"bookId" dynamodbav:"bookId"`
	Step            string     `json:"step" dynamodbav:"step"`
	Status          string     `json:"status" dynamodbav:"status"`
	RetailPrice     float64    `json:"retailPrice" dynamodbav:"retailPrice"`
	FeeCharged      float64    `json:"feeCharged" dynamodbav:"feeCharged"`
	Compensations   []string   `json:"compensations,omitempty" dynamodbav:"compensations,omitempty"`
	Retries         int        `json:"retries" dynamodbav:"retries"`
	LastCausationID string     `json:"lastCausationId,omitempty" dynamodbav:"lastCausationId,omitempty"`
	LastError       string     `json:"lastError,omitempty" dynamodbav:"lastError,omitempty"`
	StartedAt       time.Time  `json:"startedAt" dynamodbav:"startedAt"`
	UpdatedAt       time.Time  `json:"updatedAt" dynamodbav:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
}

// IsTerminal reports whether the saga has finished, successfully or not.
func (s *SagaState) IsTerminal() bool {
	return s.Step == SagaStepCompleted || s.Step == SagaStepFailed
}

// Seen reports whether the event was already folded into this state.
func (s *SagaState) Seen(eventID string) bool {
	return eventID != "" && s.LastCausationID == eventID
}

// SagaStore persists saga state keyed by reservation id.
type SagaStore interface {
	// Upsert writes the state, creating the row on first use.
	Upsert(ctx context.Context, state *SagaState) error

	// GetByReservationID loads the saga for a reservation. Missing rows
	// surface as SAGA_NOT_FOUND.
	GetByReservationID(ctx context.Context, reservationID string) (*SagaState, error)

	// ListStalled returns non-terminal sagas whose UpdatedAt is older
	// than the cutoff. The watchdog feeds on this.
	ListStalled(ctx context.Context, olderThan time.Time, limit int) ([]SagaState, error)
}
