package commands

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// WalletCommandHandler executes balance write operations.
type WalletCommandHandler struct {
	core    handlerCore
	wallets repository.WalletReadModel
}

// NewWalletCommandHandler wires the handler to the event store, the
// wallets read model used for the one-wallet-per-user check, and the bus.
func NewWalletCommandHandler(events repository.EventStore, wallets repository.WalletReadModel, bus Publisher, retry repository.RetryConfig, logger *zap.Logger) *WalletCommandHandler {
	return &WalletCommandHandler{
		core:    newHandlerCore(events, bus, retry, logger),
		wallets: wallets,
	}
}

// CreateWallet opens a wallet. A user holds at most one live wallet.
func (h *WalletCommandHandler) CreateWallet(ctx context.Context, cmd CreateWalletCommand) (*wallet.Wallet, error) {
	w, err := wallet.New(uuid.NewString(), cmd.WalletUserID, cmd.InitialBalance, shared.NewMetadata(cmd.UserID))
	if err != nil {
		return nil, err
	}

	existing, err := h.wallets.FindIDByUserID(ctx, w.UserID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, apperrors.NewError(apperrors.CodeWalletAlreadyExists, "user already holds a wallet").
			WithResource("wallet").
			WithDetails("userId=%s existingId=%s", w.UserID, existing).
			Build()
	}

	if err := h.core.commit(ctx, w); err != nil {
		return nil, err
	}
	h.core.logger.Info("wallet created",
		zap.String("walletId", w.GetID()),
		zap.String("userId", w.UserID))
	return w, nil
}

// UpdateWalletBalance credits or debits the wallet directly.
func (h *WalletCommandHandler) UpdateWalletBalance(ctx context.Context, cmd UpdateWalletBalanceCommand) (*wallet.Wallet, error) {
	meta := shared.NewMetadata(cmd.UserID)
	w, err := h.mutateWallet(ctx, cmd.WalletID, func(w *wallet.Wallet) error {
		return w.UpdateBalance(cmd.Delta, cmd.Reason, meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("wallet balance updated",
		zap.String("walletId", w.GetID()),
		zap.Float64("delta", cmd.Delta),
		zap.Float64("balance", w.Balance))
	return w, nil
}

// ApplyLateFee charges a late-return fee against the borrowing user's
// wallet. The domain caps the charge at the retail price and flags the
// purchase conversion on the event.
func (h *WalletCommandHandler) ApplyLateFee(ctx context.Context, cmd ApplyLateFeeCommand) (*wallet.Wallet, error) {
	id, err := h.walletIDForUser(ctx, cmd.WalletUserID)
	if err != nil {
		return nil, err
	}
	w, err := h.mutateWallet(ctx, id, func(w *wallet.Wallet) error {
		return w.ApplyLateFee(cmd.ReservationID, cmd.DaysLate, cmd.RetailPrice, cmd.FeePerDay, cmd.Meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("late fee applied",
		zap.String("walletId", w.GetID()),
		zap.String("reservationId", cmd.ReservationID),
		zap.Int("daysLate", cmd.DaysLate),
		zap.Float64("balance", w.Balance))
	return w, nil
}

// RequestPayment settles a reservation payment against the user's wallet.
// Success and decline both come back as events on the wallet stream; only
// infrastructure problems surface as errors.
func (h *WalletCommandHandler) RequestPayment(ctx context.Context, cmd RequestWalletPaymentCommand) (*wallet.Wallet, error) {
	id, err := h.walletIDForUser(ctx, cmd.WalletUserID)
	if err != nil {
		return nil, err
	}
	w, err := h.mutateWallet(ctx, id, func(w *wallet.Wallet) error {
		return w.ProcessPayment(cmd.ReservationID, cmd.Amount, cmd.Meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("payment processed",
		zap.String("walletId", w.GetID()),
		zap.String("reservationId", cmd.ReservationID),
		zap.Float64("amount", cmd.Amount))
	return w, nil
}

func (h *WalletCommandHandler) walletIDForUser(ctx context.Context, userID string) (string, error) {
	id, err := h.wallets.FindIDByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", apperrors.NewError(apperrors.CodeWalletNotFound, "user holds no wallet").
			WithResource("wallet").
			WithDetails("userId=%s", userID).
			Build()
	}
	return id, nil
}

func (h *WalletCommandHandler) mutateWallet(ctx context.Context, id string, op func(*wallet.Wallet) error) (*wallet.Wallet, error) {
	return mutate(ctx, h.core, id, walletNotFound(id), wallet.Empty, op)
}

func walletNotFound(id string) error {
	return apperrors.NewError(apperrors.CodeWalletNotFound, "wallet not found").
		WithResource("wallet").
		WithDetails("id=%s", id).
		Build()
}
