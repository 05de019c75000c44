package repository

import (
	"time"
)

// Projection documents mirror aggregate state plus the bookkeeping fields
// the idempotence rule needs: Version (the last applied event's version)
// and timestamps. DeletedAt tombstones a row without removing it.
//
// Attribute names match the JSON names so patches, filters, sort keys and
// field selection all speak one vocabulary.

// BookDocument is the Books read model, keyed by id with a unique isbn
// constraint enforced at command time.
type BookDocument struct {
	ID              string     `json:"id" dynamodbav:"id"`
	ISBN            string     `json:"isbn" dynamodbav:"isbn"`
	Title           string     `json:"title" dynamodbav:"title"`
	Author          string     `json:"author" dynamodbav:"author"`
	PublicationYear int        `json:"publicationYear" dynamodbav:"publicationYear"`
	Publisher       string     `json:"publisher" dynamodbav:"publisher"`
	Price           float64    `json:"price" dynamodbav:"price"`
	Version         int        `json:"version" dynamodbav:"version"`
	CreatedAt       time.Time  `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt" dynamodbav:"updatedAt"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty" dynamodbav:"deletedAt,omitempty"`
}

// Deleted reports whether the row is soft-deleted.
func (d BookDocument) Deleted() bool { return d.DeletedAt != nil }

// ReservationPayment is the settled payment embedded in a reservation row.
type ReservationPayment struct {
	Amount float64   `json:"amount" dynamodbav:"amount"`
	PaidAt time.Time `json:"paidAt" dynamodbav:"paidAt"`
}

// ReservationDocument is the Reservations read model.
type ReservationDocument struct {
	ID           string              `json:"id" dynamodbav:"id"`
	UserID       string              `json:"userId" dynamodbav:"userId"`
	BookID       string              `json:"bookId" dynamodbav:"bookId"`
	Status       string              `json:"status" dynamodbav:"status"`
	FeeCharged   bool                `json:"feeCharged" dynamodbav:"feeCharged"`
	RetailPrice  float64             `json:"retailPrice" dynamodbav:"retailPrice"`
	LateFee      float64             `json:"lateFee" dynamodbav:"lateFee"`
	ReservedAt   time.Time           `json:"reservedAt" dynamodbav:"reservedAt"`
	DueDate      time.Time           `json:"dueDate" dynamodbav:"dueDate"`
	ReturnedAt   *time.Time          `json:"returnedAt,omitempty" dynamodbav:"returnedAt,omitempty"`
	Payment      *ReservationPayment `json:"payment,omitempty" dynamodbav:"payment,omitempty"`
	StatusReason string              `json:"statusReason,omitempty" dynamodbav:"statusReason,omitempty"`
	Version      int                 `json:"version" dynamodbav:"version"`
	CreatedAt    time.Time           `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt" dynamodbav:"updatedAt"`
	DeletedAt    *time.Time          `json:"deletedAt,omitempty" dynamodbav:"deletedAt,omitempty"`
}

// Deleted reports whether the row is soft-deleted.
func (d ReservationDocument) Deleted() bool { return d.DeletedAt != nil }

// WalletDocument is the Wallets read model, one live row per user.
type WalletDocument struct {
	ID        string     `json:"id" dynamodbav:"id"`
	UserID    string     `json:"userId" dynamodbav:"userId"`
	Balance   float64    `json:"balance" dynamodbav:"balance"`
	Version   int        `json:"version" dynamodbav:"version"`
	CreatedAt time.Time  `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" dynamodbav:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" dynamodbav:"deletedAt,omitempty"`
}

// Deleted reports whether the row is soft-deleted.
func (d WalletDocument) Deleted() bool { return d.DeletedAt != nil }

// Patch is a version-guarded projection write. Set holds document field
// names to assign; the store adds version and updatedAt and applies the
// write only when the stored version is below Version. Writes against
// newer rows succeed silently; that is the idempotence contract.
// UpdatedAt carries the source event's timestamp, not the wall clock, so
// replays converge on identical rows.
type Patch struct {
	ID        string
	Version   int
	Set       map[string]interface{}
	UpdatedAt time.Time
}

// Field allow-lists per entity. Field selection refuses anything outside
// these; the id is always included.
var (
	BookFields = map[string]bool{
		"id": true, "isbn": true, "title": true, "author": true,
		"publicationYear": true, "publisher": true, "price": true,
		"version": true, "createdAt": true, "updatedAt": true,
	}

	ReservationFields = map[string]bool{
		"id": true, "userId": true, "bookId": true, "status": true,
		"feeCharged": true, "retailPrice": true, "lateFee": true,
		"reservedAt": true, "dueDate": true, "returnedAt": true,
		"payment": true, "statusReason": true,
		"version": true, "createdAt": true, "updatedAt": true,
	}

	WalletFields = map[string]bool{
		"id": true, "userId": true, "balance": true,
		"version": true, "createdAt": true, "updatedAt": true,
	}
)

// Sort-key allow-lists per entity. Sorting outside these is rejected as
// COMPLEXITY_LIMIT_EXCEEDED rather than silently ignored.
var (
	BookSortKeys = map[string]bool{
		"title": true, "author": true, "price": true,
		"publicationYear": true, "createdAt": true, "updatedAt": true,
	}

	ReservationSortKeys = map[string]bool{
		"reservedAt": true, "dueDate": true, "status": true,
		"createdAt": true, "updatedAt": true,
	}

	WalletSortKeys = map[string]bool{
		"balance": true, "createdAt": true, "updatedAt": true,
	}
)
