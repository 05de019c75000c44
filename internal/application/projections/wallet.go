package projections

import (
	"context"

	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// WalletProjection folds wallet events into the wallets read model. Declined
// payments change no state, so they are not subscribed.
type WalletProjection struct {
	wallets repository.WalletReadModel
	cache   repository.QueryCache
	logger  *zap.Logger
}

// NewWalletProjection wires the projection to its store. A non-nil cache
// has its wallets prefix invalidated after every applied patch.
func NewWalletProjection(wallets repository.WalletReadModel, cache repository.QueryCache, logger *zap.Logger) *WalletProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletProjection{wallets: wallets, cache: cache, logger: logger}
}

func (p *WalletProjection) ProjectionName() string { return "projection.wallets" }

func (p *WalletProjection) EventTypes() []string {
	return []string{
		wallet.EventTypeWalletCreated,
		wallet.EventTypeWalletBalanceUpdated,
		wallet.EventTypeWalletLateFeeApplied,
		wallet.EventTypeWalletPaymentSuccess,
	}
}

func (p *WalletProjection) Handle(ctx context.Context, event shared.Event) error {
	patch := repository.Patch{
		ID:        event.AggregateID,
		Version:   event.Version,
		UpdatedAt: event.Timestamp,
		Set:       map[string]interface{}{},
	}

	switch payload := event.Payload.(type) {
	case *wallet.CreatedPayload:
		patch.Set["userId"] = payload.UserID
		patch.Set["balance"] = payload.Balance
		patch.Set["createdAt"] = event.Timestamp

	case *wallet.BalanceUpdatedPayload:
		patch.Set["balance"] = payload.NewBalance

	case *wallet.LateFeeAppliedPayload:
		patch.Set["balance"] = payload.NewBalance

	case *wallet.PaymentSuccessPayload:
		patch.Set["balance"] = payload.NewBalance

	default:
		return apperrors.NewError(apperrors.CodeInternalError, "unexpected payload").
			WithDetails("event type %s", event.EventType).
			WithOperation("projection.wallets").
			Build()
	}

	if err := p.wallets.ApplyPatch(ctx, patch); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.InvalidatePrefix(repository.CachePrefixWallets)
	}
	return nil
}
