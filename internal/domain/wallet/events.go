package wallet

import (
	"time"

	"libris-backend/internal/domain/shared"
)

// Event types owned by the Wallets context. WalletPaymentRequest is an
// integration event addressed by reservation id; the rest belong to the
// wallet aggregate stream.
const (
	EventTypeWalletCreated         = "WalletCreated"
	EventTypeWalletBalanceUpdated  = "WalletBalanceUpdated"
	EventTypeWalletLateFeeApplied  = "WalletLateFeeApplied"
	EventTypeWalletPaymentSuccess  = "WalletPaymentSuccess"
	EventTypeWalletPaymentDeclined = "WalletPaymentDeclined"
	EventTypeWalletPaymentRequest  = "WalletPaymentRequest"
)

// CreatedPayload opens a wallet for a user.
type CreatedPayload struct {
	UserID    string    `json:"userId"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

func (CreatedPayload) EventType() string  { return EventTypeWalletCreated }
func (CreatedPayload) SchemaVersion() int { return 1 }

// BalanceUpdatedPayload records a direct credit or debit.
type BalanceUpdatedPayload struct {
	Delta      float64   `json:"delta"`
	NewBalance float64   `json:"newBalance"`
	Reason     string    `json:"reason,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (BalanceUpdatedPayload) EventType() string  { return EventTypeWalletBalanceUpdated }
func (BalanceUpdatedPayload) SchemaVersion() int { return 1 }

// LateFeeAppliedPayload records a late-return fee. CumulativeFee is the
// total charged against the reservation so far; when it reaches the retail
// price the book counts as purchased.
type LateFeeAppliedPayload struct {
	ReservationID string    `json:"reservationId"`
	DaysLate      int       `json:"daysLate"`
	Fee           float64   `json:"fee"`
	CumulativeFee float64   `json:"cumulativeFee"`
	RetailPrice   float64   `json:"retailPrice"`
	NewBalance    float64   `json:"newBalance"`
	BookPurchased bool      `json:"bookPurchased"`
	AppliedAt     time.Time `json:"appliedAt"`
}

func (LateFeeAppliedPayload) EventType() string  { return EventTypeWalletLateFeeApplied }
func (LateFeeAppliedPayload) SchemaVersion() int { return 1 }

// PaymentSuccessPayload settles a payment request against the balance.
type PaymentSuccessPayload struct {
	ReservationID string    `json:"reservationId"`
	Amount        float64   `json:"amount"`
	NewBalance    float64   `json:"newBalance"`
	PaidAt        time.Time `json:"paidAt"`
}

func (PaymentSuccessPayload) EventType() string  { return EventTypeWalletPaymentSuccess }
func (PaymentSuccessPayload) SchemaVersion() int { return 1 }

// PaymentDeclinedPayload records a refused payment; the balance is
// untouched.
type PaymentDeclinedPayload struct {
	ReservationID string    `json:"reservationId"`
	Amount        float64   `json:"amount"`
	Reason        string    `json:"reason"`
	DeclinedAt    time.Time `json:"declinedAt"`
}

func (PaymentDeclinedPayload) EventType() string  { return EventTypeWalletPaymentDeclined }
func (PaymentDeclinedPayload) SchemaVersion() int { return 1 }

// PaymentRequestPayload asks the Wallets context to charge a user for a
// reservation. Addressed by reservation id so saga replies stay ordered.
type PaymentRequestPayload struct {
	ReservationID string  `json:"reservationId"`
	UserID        string  `json:"userId"`
	Amount        float64 `json:"amount"`
}

func (PaymentRequestPayload) EventType() string  { return EventTypeWalletPaymentRequest }
func (PaymentRequestPayload) SchemaVersion() int { return 1 }

// RegisterPayloads wires this context's payload types into a registry.
func RegisterPayloads(registry *shared.PayloadRegistry) {
	registry.Register(EventTypeWalletCreated, 1, func() shared.Payload { return &CreatedPayload{} })
	registry.Register(EventTypeWalletBalanceUpdated, 1, func() shared.Payload { return &BalanceUpdatedPayload{} })
	registry.Register(EventTypeWalletLateFeeApplied, 1, func() shared.Payload { return &LateFeeAppliedPayload{} })
	registry.Register(EventTypeWalletPaymentSuccess, 1, func() shared.Payload { return &PaymentSuccessPayload{} })
	registry.Register(EventTypeWalletPaymentDeclined, 1, func() shared.Payload { return &PaymentDeclinedPayload{} })
	registry.Register(EventTypeWalletPaymentRequest, 1, func() shared.Payload { return &PaymentRequestPayload{} })
}
