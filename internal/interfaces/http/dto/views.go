package dto

import (
	"time"

	"libris-backend/internal/domain/book"
	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/wallet"
)

// Views render aggregates for write-side responses. Field names match the
// read-model documents so clients see one vocabulary on both paths.

// BookView is a catalog entry as returned by command endpoints.
type BookView struct {
	ID              string    `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	PublicationYear int       `json:"publicationYear"`
	Publisher       string    `json:"publisher"`
	Price           float64   `json:"price"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewBookView renders the aggregate.
func NewBookView(b *book.Book) BookView {
	return BookView{
		ID:              b.GetID(),
		ISBN:            b.ISBN,
		Title:           b.Title,
		Author:          b.Author,
		PublicationYear: b.PublicationYear,
		Publisher:       b.Publisher,
		Price:           b.Price,
		Version:         b.GetVersion(),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

// ReservationView is a loan as returned by command endpoints.
type ReservationView struct {
	ID           string                   `json:"id"`
	UserID       string                   `json:"userId"`
	BookID       string                   `json:"bookId"`
	Status       string                   `json:"status"`
	FeeCharged   bool                     `json:"feeCharged"`
	RetailPrice  float64                  `json:"retailPrice"`
	LateFee      float64                  `json:"lateFee"`
	ReservedAt   time.Time                `json:"reservedAt"`
	DueDate      time.Time                `json:"dueDate"`
	ReturnedAt   *time.Time               `json:"returnedAt,omitempty"`
	Payment      *reservation.PaymentInfo `json:"payment,omitempty"`
	StatusReason string                   `json:"statusReason,omitempty"`
	Version      int                      `json:"version"`
}

// NewReservationView renders the aggregate.
func NewReservationView(res *reservation.Reservation) ReservationView {
	return ReservationView{
		ID:           res.GetID(),
		UserID:       res.UserID,
		BookID:       res.BookID,
		Status:       string(res.Status),
		FeeCharged:   res.FeeCharged,
		RetailPrice:  res.RetailPrice,
		LateFee:      res.LateFee,
		ReservedAt:   res.ReservedAt,
		DueDate:      res.DueDate,
		ReturnedAt:   res.ReturnedAt,
		Payment:      res.Payment,
		StatusReason: res.StatusReason,
		Version:      res.GetVersion(),
	}
}

// WalletView is a wallet as returned by command endpoints.
type WalletView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Balance   float64   `json:"balance"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewWalletView renders the aggregate.
func NewWalletView(w *wallet.Wallet) WalletView {
	return WalletView{
		ID:        w.GetID(),
		UserID:    w.UserID,
		Balance:   w.Balance,
		Version:   w.GetVersion(),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
