// Package dto defines the HTTP request and response contracts and converts
// them to application commands and queries. Validation here is shape-level
// (required fields, ranges); business rules stay in the domain.
package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"libris-backend/internal/application/commands"
	apperrors "libris-backend/internal/errors"
)

// validate is shared across requests; validator instances cache struct
// metadata, so one per process is the intended usage.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names, not Go field names, back to clients.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode unmarshals the request body into dst and applies its validation
// tags. An empty body decodes to the zero struct so endpoints with fully
// optional bodies accept bare POSTs; required tags still reject the zero
// value. Failures come back as VALIDATION_ERROR with field-level detail.
func Decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewError(apperrors.CodeValidationError, "invalid request body").
			WithCause(err).
			Build()
	}
	return Validate(dst)
}

// Validate applies the struct's validation tags.
func Validate(dst interface{}) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fmt.Sprintf("%s %s", fe.Field(), messageFor(fe)))
		}
		return apperrors.NewError(apperrors.CodeValidationError, "request validation failed").
			WithDetails("%s", strings.Join(details, "; ")).
			Build()
	}
	return apperrors.NewError(apperrors.CodeValidationError, "request validation failed").
		WithCause(err).
		Build()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is not set", strings.ToLower(fe.Param()[:1])+fe.Param()[1:])
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be %s or more", fe.Param())
	case "lte":
		return fmt.Sprintf("must be %s or less", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// CreateBookRequest registers a catalog entry. The ISBN length rule lives in
// the domain; the edge only requires presence and sane bounds.
type CreateBookRequest struct {
	ISBN            string  `json:"isbn" validate:"required,max=13"`
	Title           string  `json:"title" validate:"required,max=500"`
	Author          string  `json:"author" validate:"required,max=200"`
	PublicationYear int     `json:"publicationYear,omitempty" validate:"omitempty,gte=0"`
	Publisher       string  `json:"publisher,omitempty" validate:"max=200"`
	Price           float64 `json:"price,omitempty" validate:"gte=0"`
}

// ToCommand converts the request to an application command.
func (r *CreateBookRequest) ToCommand(userID string) commands.CreateBookCommand {
	return commands.CreateBookCommand{
		ISBN:            strings.TrimSpace(r.ISBN),
		Title:           r.Title,
		Author:          r.Author,
		PublicationYear: r.PublicationYear,
		Publisher:       r.Publisher,
		Price:           r.Price,
		UserID:          userID,
	}
}

// UpdateBookRequest patches catalog fields. nil fields are untouched,
// giving PATCH semantics.
type UpdateBookRequest struct {
	Title           *string  `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Author          *string  `json:"author,omitempty" validate:"omitempty,min=1,max=200"`
	PublicationYear *int     `json:"publicationYear,omitempty" validate:"omitempty,gte=0"`
	Publisher       *string  `json:"publisher,omitempty" validate:"omitempty,max=200"`
	Price           *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
}

// ToCommand converts the request to an application command. The domain
// rejects empty patches, so the edge does not pre-check them.
func (r *UpdateBookRequest) ToCommand(userID, bookID string) commands.UpdateBookCommand {
	return commands.UpdateBookCommand{
		BookID:          bookID,
		Title:           r.Title,
		Author:          r.Author,
		PublicationYear: r.PublicationYear,
		Publisher:       r.Publisher,
		Price:           r.Price,
		UserID:          userID,
	}
}

// CreateReservationRequest starts a loan. Clients may identify the book by
// id or by isbn; the isbn is resolved against the catalog before the
// command is built.
type CreateReservationRequest struct {
	BookID  string    `json:"bookId,omitempty" validate:"required_without=ISBN"`
	ISBN    string    `json:"isbn,omitempty" validate:"required_without=BookID"`
	DueDate time.Time `json:"dueDate" validate:"required"`
}

// ToCommand converts the request to an application command. bookID is the
// resolved book, which may differ from the request when the isbn was used.
func (r *CreateReservationRequest) ToCommand(userID, bookID string) commands.CreateReservationCommand {
	return commands.CreateReservationCommand{
		BookID:  bookID,
		DueDate: r.DueDate,
		UserID:  userID,
	}
}

// ReturnReservationRequest closes a loan. A missing returnedAt means now.
type ReturnReservationRequest struct {
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
}

// ToCommand converts the request to an application command.
func (r *ReturnReservationRequest) ToCommand(userID, reservationID string) commands.ReturnReservationCommand {
	cmd := commands.ReturnReservationCommand{
		ReservationID: reservationID,
		UserID:        userID,
	}
	if r.ReturnedAt != nil {
		cmd.ReturnedAt = *r.ReturnedAt
	}
	return cmd
}

// ExtendReservationRequest pushes the due date out.
type ExtendReservationRequest struct {
	NewDueDate time.Time `json:"newDueDate" validate:"required"`
}

// ToCommand converts the request to an application command.
func (r *ExtendReservationRequest) ToCommand(userID, reservationID string) commands.ExtendReservationDueDateCommand {
	return commands.ExtendReservationDueDateCommand{
		ReservationID: reservationID,
		NewDueDate:    r.NewDueDate,
		UserID:        userID,
	}
}

// CancelReservationRequest aborts a loan.
type CancelReservationRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// ToCommand converts the request to an application command.
func (r *CancelReservationRequest) ToCommand(userID, reservationID string) commands.CancelReservationCommand {
	return commands.CancelReservationCommand{
		ReservationID: reservationID,
		Reason:        r.Reason,
		UserID:        userID,
	}
}

// PayReservationFeeRequest settles the outstanding late fee.
type PayReservationFeeRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// ToCommand converts the request to an application command.
func (r *PayReservationFeeRequest) ToCommand(userID, reservationID string) commands.MarkReservationFeePaidCommand {
	return commands.MarkReservationFeePaidCommand{
		ReservationID: reservationID,
		Amount:        r.Amount,
		UserID:        userID,
	}
}

// CreateWalletRequest opens a wallet. A missing userId opens the wallet for
// the acting user.
type CreateWalletRequest struct {
	UserID         string  `json:"userId,omitempty"`
	InitialBalance float64 `json:"initialBalance,omitempty" validate:"gte=0"`
}

// ToCommand converts the request to an application command.
func (r *CreateWalletRequest) ToCommand(userID string) commands.CreateWalletCommand {
	owner := r.UserID
	if owner == "" {
		owner = userID
	}
	return commands.CreateWalletCommand{
		WalletUserID:   owner,
		InitialBalance: r.InitialBalance,
		UserID:         userID,
	}
}

// UpdateWalletBalanceRequest credits or debits the wallet directly.
type UpdateWalletBalanceRequest struct {
	Delta  float64 `json:"delta" validate:"required"`
	Reason string  `json:"reason,omitempty" validate:"max=500"`
}

// ToCommand converts the request to an application command.
func (r *UpdateWalletBalanceRequest) ToCommand(userID, walletID string) commands.UpdateWalletBalanceCommand {
	return commands.UpdateWalletBalanceCommand{
		WalletID: walletID,
		Delta:    r.Delta,
		Reason:   r.Reason,
		UserID:   userID,
	}
}
