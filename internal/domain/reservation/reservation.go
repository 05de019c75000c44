// Package reservation models the Reservations bounded context: the loan
// lifecycle aggregate and its events.
package reservation

import (
	"fmt"
	"time"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/errors"
)

// Status enumerates the reservation lifecycle.
type Status string

const (
	StatusCreated   Status = "created"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
	StatusActive    Status = "active"
	StatusLate      Status = "late"
	StatusReturned  Status = "returned"
	StatusBought    Status = "bought"
	StatusCancelled Status = "cancelled"
)

// allowedTransitions is the authoritative lifecycle map. A transition absent
// here is a domain-rule violation, not an infrastructure failure.
var allowedTransitions = map[Status][]Status{
	StatusCreated:   {StatusValidated, StatusRejected, StatusCancelled},
	StatusValidated: {StatusActive, StatusRejected, StatusCancelled},
	StatusActive:    {StatusLate, StatusReturned, StatusBought, StatusCancelled},
	StatusLate:      {StatusReturned, StatusBought},
	StatusReturned:  {StatusBought},
}

func canTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the lifecycle. Returned is not
// terminal: accumulated late fees can still convert the loan to a purchase.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusBought, StatusCancelled:
		return true
	}
	return false
}

// Reservation is the loan aggregate: one user borrowing one book.
type Reservation struct {
	shared.BaseAggregateRoot

	UserID       string
	BookID       string
	Status       Status
	FeeCharged   bool
	RetailPrice  float64
	LateFee      float64
	ReservedAt   time.Time
	DueDate      time.Time
	ReturnedAt   *time.Time
	Payment      *PaymentInfo
	StatusReason string
	DeletedAt    *time.Time
}

// Empty returns a blank aggregate ready for rehydration.
func Empty(id string) *Reservation {
	return &Reservation{BaseAggregateRoot: shared.NewBaseAggregateRoot(id)}
}

// New creates a reservation in status created. The saga takes it from there.
func New(id, userID, bookID string, retailPrice float64, dueDate time.Time, meta shared.Metadata) (*Reservation, error) {
	var problems []string
	if userID == "" {
		problems = append(problems, "userId is required")
	}
	if bookID == "" {
		problems = append(problems, "bookId is required")
	}
	if retailPrice < 0 {
		problems = append(problems, "retailPrice must not be negative")
	}
	now := time.Now().UTC()
	if !dueDate.After(now) {
		problems = append(problems, "dueDate must be in the future")
	}
	if len(problems) > 0 {
		return nil, invalidData(problems...)
	}

	r := Empty(id)
	payload := &CreatedPayload{
		UserID:      userID,
		BookID:      bookID,
		RetailPrice: retailPrice,
		ReservedAt:  now,
		DueDate:     dueDate.UTC(),
	}
	if err := r.raise(payload, meta); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateStatus moves the reservation along the lifecycle map. payment is
// recorded on activation; reason on rejection or cancellation.
func (r *Reservation) UpdateStatus(to Status, reason string, payment *PaymentInfo, meta shared.Metadata) error {
	if !canTransition(r.Status, to) {
		return r.invalidTransition(to)
	}
	return r.raise(&StatusUpdatedPayload{
		Status:    to,
		Reason:    reason,
		Payment:   payment,
		UpdatedAt: time.Now().UTC(),
	}, meta)
}

// MarkAsReturned closes the loan. Only active and late reservations can be
// returned; anything else is an invalid transition.
func (r *Reservation) MarkAsReturned(returnedAt time.Time, meta shared.Metadata) error {
	if r.Status != StatusActive && r.Status != StatusLate {
		return r.invalidTransition(StatusReturned)
	}
	returnedAt = returnedAt.UTC()
	daysLate := DaysLate(r.DueDate, returnedAt)
	return r.raise(&ReturnedPayload{
		UserID:      r.UserID,
		BookID:      r.BookID,
		ReturnedAt:  returnedAt,
		DaysLate:    daysLate,
		RetailPrice: r.RetailPrice,
	}, meta)
}

// MarkAsBought converts the loan into a purchase once accumulated late fees
// have reached the retail price.
func (r *Reservation) MarkAsBought(meta shared.Metadata) error {
	if !canTransition(r.Status, StatusBought) {
		return r.invalidTransition(StatusBought)
	}
	return r.raise(&StatusUpdatedPayload{
		Status:    StatusBought,
		Reason:    "late_fees_reached_retail_price",
		UpdatedAt: time.Now().UTC(),
	}, meta)
}

// Cancel aborts a non-terminal, unreturned reservation.
func (r *Reservation) Cancel(reason string, meta shared.Metadata) error {
	if !canTransition(r.Status, StatusCancelled) {
		return r.invalidTransition(StatusCancelled)
	}
	return r.raise(&StatusUpdatedPayload{
		Status:    StatusCancelled,
		Reason:    reason,
		UpdatedAt: time.Now().UTC(),
	}, meta)
}

// ChargeFee mirrors a late fee levied by the Wallets context against this
// reservation. The wallet stream is authoritative for the running total, so
// a charge whose cumulative total is already recorded is a no-op; redelivered
// fee events converge instead of double-counting.
func (r *Reservation) ChargeFee(amount, cumulativeFee float64, daysLate int, bookPurchased bool, meta shared.Metadata) error {
	if amount <= 0 {
		return invalidData("fee amount must be positive")
	}
	if cumulativeFee <= r.LateFee {
		return nil
	}
	return r.raise(&FeeChargedPayload{
		Amount:        amount,
		CumulativeFee: cumulativeFee,
		DaysLate:      daysLate,
		BookPurchased: bookPurchased,
		ChargedAt:     time.Now().UTC(),
	}, meta)
}

// PayFee settles the outstanding fee.
func (r *Reservation) PayFee(amount float64, meta shared.Metadata) error {
	if !r.FeeCharged {
		return r.invalidTransitionMsg("no fee outstanding")
	}
	if amount <= 0 {
		return invalidData("payment amount must be positive")
	}
	return r.raise(&FeePaidPayload{Amount: amount, PaidAt: time.Now().UTC()}, meta)
}

// ExtendDueDate pushes the due date out for an ongoing loan.
func (r *Reservation) ExtendDueDate(newDueDate time.Time, meta shared.Metadata) error {
	if r.Status != StatusActive && r.Status != StatusLate {
		return r.invalidTransitionMsg("only ongoing loans can be extended")
	}
	newDueDate = newDueDate.UTC()
	if !newDueDate.After(r.DueDate) {
		return invalidData("new due date must be after the current one")
	}
	return r.raise(&DueDateExtendedPayload{
		OldDueDate: r.DueDate,
		NewDueDate: newDueDate,
		ExtendedAt: time.Now().UTC(),
	}, meta)
}

// Delete tombstones a reservation that has reached the end of its life.
func (r *Reservation) Delete(meta shared.Metadata) error {
	if r.DeletedAt != nil {
		return errors.NewError(errors.CodeReservationNotFound, "reservation is deleted").
			WithResource("reservation").
			WithDetails("id=%s", r.GetID()).
			Build()
	}
	if !r.Status.IsTerminal() && r.Status != StatusReturned {
		return r.invalidTransitionMsg("only finished reservations can be deleted")
	}
	return r.raise(&DeletedPayload{DeletedAt: time.Now().UTC()}, meta)
}

// DaysLate counts whole days past due at the moment of return, never
// negative. A return within the same day as the due date is on time.
func DaysLate(dueDate, returnedAt time.Time) int {
	if !returnedAt.After(dueDate) {
		return 0
	}
	return int(returnedAt.Sub(dueDate).Hours() / 24)
}

func (r *Reservation) raise(payload shared.Payload, meta shared.Metadata) error {
	event := shared.NewEvent(r.GetID(), r.NextVersion(), payload, meta)
	if err := r.Apply(event); err != nil {
		return err
	}
	r.AddDomainEvent(event)
	return nil
}

// Apply routes an event to its state mutation.
func (r *Reservation) Apply(event shared.Event) error {
	switch p := event.Payload.(type) {
	case *CreatedPayload:
		r.UserID = p.UserID
		r.BookID = p.BookID
		r.RetailPrice = p.RetailPrice
		r.ReservedAt = p.ReservedAt
		r.DueDate = p.DueDate
		r.Status = StatusCreated

	case *StatusUpdatedPayload:
		r.Status = p.Status
		r.StatusReason = p.Reason
		if p.Payment != nil {
			payment := *p.Payment
			r.Payment = &payment
		}

	case *ReturnedPayload:
		returnedAt := p.ReturnedAt
		r.ReturnedAt = &returnedAt
		r.Status = StatusReturned

	case *FeeChargedPayload:
		r.FeeCharged = true
		r.LateFee = p.CumulativeFee

	case *FeePaidPayload:
		r.FeeCharged = false

	case *DueDateExtendedPayload:
		r.DueDate = p.NewDueDate

	case *DeletedPayload:
		deletedAt := p.DeletedAt
		r.DeletedAt = &deletedAt

	default:
		return fmt.Errorf("reservation: unexpected event type %s", event.EventType)
	}

	r.Advance(event)
	return nil
}

func (r *Reservation) invalidTransition(to Status) error {
	return errors.NewError(errors.CodeReservationInvalidTransition,
		fmt.Sprintf("cannot transition from %s to %s", r.Status, to)).
		WithResource("reservation").
		WithDetails("id=%s", r.GetID()).
		Build()
}

func (r *Reservation) invalidTransitionMsg(msg string) error {
	return errors.NewError(errors.CodeReservationInvalidTransition, msg).
		WithResource("reservation").
		WithDetails("id=%s status=%s", r.GetID(), r.Status).
		Build()
}

func invalidData(problems ...string) error {
	msg := "invalid reservation data"
	if len(problems) == 1 {
		msg = problems[0]
	}
	b := errors.NewError(errors.CodeReservationInvalidData, msg).WithResource("reservation")
	if len(problems) > 1 {
		details := problems[0]
		for _, p := range problems[1:] {
			details += "; " + p
		}
		b = b.WithDetails("%s", details)
	}
	return b.Build()
}
