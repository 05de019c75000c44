package commands

import (
	"time"

	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
)

// CreateReservationCommand starts a loan. The retail price is snapshotted
// from the catalog at creation time; the saga validates the book before the
// loan activates.
type CreateReservationCommand struct {
	BookID  string    `json:"bookId"`
	DueDate time.Time `json:"dueDate"`

	UserID string `json:"-"`
}

// ReturnReservationCommand closes a loan. A zero ReturnedAt means now.
type ReturnReservationCommand struct {
	ReservationID string    `json:"-"`
	ReturnedAt    time.Time `json:"returnedAt,omitempty"`

	UserID string `json:"-"`
}

// ExtendReservationDueDateCommand pushes the due date out.
type ExtendReservationDueDateCommand struct {
	ReservationID string    `json:"-"`
	NewDueDate    time.Time `json:"newDueDate"`

	UserID string `json:"-"`
}

// CancelReservationCommand aborts a loan that has not been returned.
type CancelReservationCommand struct {
	ReservationID string `json:"-"`
	Reason        string `json:"reason,omitempty"`

	UserID string `json:"-"`
}

// UpdateReservationStatusCommand moves a reservation along its lifecycle.
// It is issued by the saga and by the overdue scanner, never by clients;
// Meta carries the causing event's correlation chain.
type UpdateReservationStatusCommand struct {
	ReservationID string
	Status        reservation.Status
	Reason        string
	Payment       *reservation.PaymentInfo
	Meta          shared.Metadata
}

// ChargeReservationFeeCommand records a late fee the Wallets context
// charged against the loan. CumulativeFee is the wallet's running total,
// which keeps redelivered fee events from double-counting; BookPurchased
// converts the loan to a purchase in the same append.
type ChargeReservationFeeCommand struct {
	ReservationID string
	Amount        float64
	CumulativeFee float64
	DaysLate      int
	BookPurchased bool
	Meta          shared.Metadata
}

// MarkReservationFeePaidCommand settles the outstanding fee.
type MarkReservationFeePaidCommand struct {
	ReservationID string  `json:"-"`
	Amount        float64 `json:"amount"`

	UserID string `json:"-"`
}

// DeleteReservationCommand tombstones a finished loan.
type DeleteReservationCommand struct {
	ReservationID string `json:"-"`
	UserID        string `json:"-"`
}
