package commands

import (
	"libris-backend/internal/domain/shared"
)

// CreateWalletCommand opens the single wallet a user may hold.
type CreateWalletCommand struct {
	WalletUserID   string  `json:"userId"`
	InitialBalance float64 `json:"initialBalance"`

	// UserID is the acting user, usually the wallet owner.
	UserID string `json:"-"`
}

// UpdateWalletBalanceCommand credits or debits the wallet directly. Direct
// debits may not overdraw; late fees take the ApplyLateFee path.
type UpdateWalletBalanceCommand struct {
	WalletID string  `json:"-"`
	Delta    float64 `json:"delta"`
	Reason   string  `json:"reason,omitempty"`

	UserID string `json:"-"`
}

// ApplyLateFeeCommand charges a late-return fee against the wallet of the
// borrowing user. Issued by the late-fee flow off ReservationReturned.
type ApplyLateFeeCommand struct {
	WalletUserID  string
	ReservationID string
	DaysLate      int
	RetailPrice   float64
	FeePerDay     float64
	Meta          shared.Metadata
}

// RequestWalletPaymentCommand settles a reservation payment. Issued by the
// saga's payment handler; the outcome is an event either way.
type RequestWalletPaymentCommand struct {
	WalletUserID  string
	ReservationID string
	Amount        float64
	Meta          shared.Metadata
}
