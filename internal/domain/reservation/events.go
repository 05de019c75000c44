package reservation

import (
	"time"

	"libris-backend/internal/domain/shared"
)

// Event types owned by the Reservations context. ReservationBookValidation
// and ReservationCancellationRequested are integration events: they never
// touch the aggregate stream, they only travel the bus.
const (
	EventTypeReservationCreated         = "ReservationCreated"
	EventTypeReservationStatusUpdated   = "ReservationStatusUpdated"
	EventTypeReservationReturned        = "ReservationReturned"
	EventTypeReservationFeeCharged      = "ReservationFeeCharged"
	EventTypeReservationFeePaid         = "ReservationFeePaid"
	EventTypeReservationDueDateExtended = "ReservationDueDateExtended"
	EventTypeReservationDeleted         = "ReservationDeleted"
	EventTypeReservationBookValidation  = "ReservationBookValidation"
	EventTypeCancellationRequested      = "ReservationCancellationRequested"
)

// CreatedPayload records a new loan request. RetailPrice is captured at
// reservation time so later fee math does not depend on catalog changes.
type CreatedPayload struct {
	UserID      string    `json:"userId"`
	BookID      string    `json:"bookId"`
	RetailPrice float64   `json:"retailPrice"`
	ReservedAt  time.Time `json:"reservedAt"`
	DueDate     time.Time `json:"dueDate"`
}

func (CreatedPayload) EventType() string  { return EventTypeReservationCreated }
func (CreatedPayload) SchemaVersion() int { return 1 }

// PaymentInfo is recorded when a payment settles the reservation fee.
type PaymentInfo struct {
	Amount float64   `json:"amount"`
	PaidAt time.Time `json:"paidAt"`
}

// StatusUpdatedPayload moves the reservation through its lifecycle. Reason
// is set for rejections and cancellations; Payment for activations.
type StatusUpdatedPayload struct {
	Status    Status       `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Payment   *PaymentInfo `json:"payment,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (StatusUpdatedPayload) EventType() string  { return EventTypeReservationStatusUpdated }
func (StatusUpdatedPayload) SchemaVersion() int { return 1 }

// ReturnedPayload closes the loan. DaysLate and RetailPrice feed the wallet
// late-fee flow downstream.
type ReturnedPayload struct {
	UserID      string    `json:"userId"`
	BookID      string    `json:"bookId"`
	ReturnedAt  time.Time `json:"returnedAt"`
	DaysLate    int       `json:"daysLate"`
	RetailPrice float64   `json:"retailPrice"`
}

func (ReturnedPayload) EventType() string  { return EventTypeReservationReturned }
func (ReturnedPayload) SchemaVersion() int { return 1 }

// FeeChargedPayload records a late fee levied against this reservation.
// CumulativeFee is the running total after this charge, so projections can
// set it without reading the row first.
type FeeChargedPayload struct {
	Amount        float64   `json:"amount"`
	CumulativeFee float64   `json:"cumulativeFee"`
	DaysLate      int       `json:"daysLate"`
	BookPurchased bool      `json:"bookPurchased"`
	ChargedAt     time.Time `json:"chargedAt"`
}

func (FeeChargedPayload) EventType() string  { return EventTypeReservationFeeCharged }
func (FeeChargedPayload) SchemaVersion() int { return 1 }

// FeePaidPayload settles a previously charged fee.
type FeePaidPayload struct {
	Amount float64   `json:"amount"`
	PaidAt time.Time `json:"paidAt"`
}

func (FeePaidPayload) EventType() string  { return EventTypeReservationFeePaid }
func (FeePaidPayload) SchemaVersion() int { return 1 }

// DueDateExtendedPayload pushes the due date out.
type DueDateExtendedPayload struct {
	OldDueDate time.Time `json:"oldDueDate"`
	NewDueDate time.Time `json:"newDueDate"`
	ExtendedAt time.Time `json:"extendedAt"`
}

func (DueDateExtendedPayload) EventType() string  { return EventTypeReservationDueDateExtended }
func (DueDateExtendedPayload) SchemaVersion() int { return 1 }

// DeletedPayload tombstones a finished reservation.
type DeletedPayload struct {
	DeletedAt time.Time `json:"deletedAt"`
}

func (DeletedPayload) EventType() string  { return EventTypeReservationDeleted }
func (DeletedPayload) SchemaVersion() int { return 1 }

// BookValidationPayload asks the Books context whether the reserved book is
// available. Addressed by reservation id so the saga sees replies in order.
type BookValidationPayload struct {
	ReservationID string `json:"reservationId"`
	BookID        string `json:"bookId"`
	UserID        string `json:"userId"`
}

func (BookValidationPayload) EventType() string  { return EventTypeReservationBookValidation }
func (BookValidationPayload) SchemaVersion() int { return 1 }

// CancellationRequestedPayload is raised by an external request to abort an
// in-flight reservation; the saga compensates from whichever waiting state.
type CancellationRequestedPayload struct {
	ReservationID string `json:"reservationId"`
	Reason        string `json:"reason,omitempty"`
}

func (CancellationRequestedPayload) EventType() string  { return EventTypeCancellationRequested }
func (CancellationRequestedPayload) SchemaVersion() int { return 1 }

// RegisterPayloads wires this context's payload types into a registry.
func RegisterPayloads(registry *shared.PayloadRegistry) {
	registry.Register(EventTypeReservationCreated, 1, func() shared.Payload { return &CreatedPayload{} })
	registry.Register(EventTypeReservationStatusUpdated, 1, func() shared.Payload { return &StatusUpdatedPayload{} })
	registry.Register(EventTypeReservationReturned, 1, func() shared.Payload { return &ReturnedPayload{} })
	registry.Register(EventTypeReservationFeeCharged, 1, func() shared.Payload { return &FeeChargedPayload{} })
	registry.Register(EventTypeReservationFeePaid, 1, func() shared.Payload { return &FeePaidPayload{} })
	registry.Register(EventTypeReservationDueDateExtended, 1, func() shared.Payload { return &DueDateExtendedPayload{} })
	registry.Register(EventTypeReservationDeleted, 1, func() shared.Payload { return &DeletedPayload{} })
	registry.Register(EventTypeReservationBookValidation, 1, func() shared.Payload { return &BookValidationPayload{} })
	registry.Register(EventTypeCancellationRequested, 1, func() shared.Payload { return &CancellationRequestedPayload{} })
}
