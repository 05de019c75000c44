package sagas

import (
	"context"
	"time"

	"go.uber.org/zap"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	apperrors "libris-backend/internal/errors"
)

// PaymentProcessor settles payment requests against a wallet.
type PaymentProcessor interface {
	RequestPayment(ctx context.Context, cmd commands.RequestWalletPaymentCommand) (*wallet.Wallet, error)
}

// PaymentHandler is the Wallets context's side of the saga conversation: it
// charges WalletPaymentRequest events against the user's wallet. Success and
// decline replies flow out of the wallet stream itself; only a user without
// a wallet needs a synthetic decline, since there is no stream to carry it.
type PaymentHandler struct {
	wallets PaymentProcessor
	bus     Publisher
	logger  *zap.Logger
}

// Compile-time interface check
var _ Handler = (*PaymentHandler)(nil)

// NewPaymentHandler wires the responder to the wallet write side and the bus.
func NewPaymentHandler(wallets PaymentProcessor, bus Publisher, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{wallets: wallets, bus: bus, logger: logger}
}

func (h *PaymentHandler) SubscriberName() string { return "saga.payments" }

func (h *PaymentHandler) EventTypes() []string {
	return []string{wallet.EventTypeWalletPaymentRequest}
}

func (h *PaymentHandler) Handle(ctx context.Context, event shared.Event) error {
	p, ok := event.Payload.(*wallet.PaymentRequestPayload)
	if !ok {
		return apperrors.NewError(apperrors.CodeInternalError, "unexpected payload").
			WithDetails("event type %s", event.EventType).
			WithOperation("saga.payments").
			Build()
	}

	_, err := h.wallets.RequestPayment(ctx, commands.RequestWalletPaymentCommand{
		WalletUserID:  p.UserID,
		ReservationID: p.ReservationID,
		Amount:        p.Amount,
		Meta:          shared.NextMetadata(event),
	})
	if err == nil {
		return nil
	}
	if !apperrors.HasCode(err, apperrors.CodeWalletNotFound) {
		return err
	}

	h.logger.Warn("payment request for user without wallet",
		zap.String("reservationId", p.ReservationID),
		zap.String("userId", p.UserID),
		zap.String("correlationId", event.Metadata.CorrelationID))
	decline := shared.NewEvent(p.ReservationID, 0, &wallet.PaymentDeclinedPayload{
		ReservationID: p.ReservationID,
		Amount:        p.Amount,
		Reason:        "wallet_not_found",
		DeclinedAt:    time.Now().UTC(),
	}, shared.NextMetadata(event))
	return h.bus.Publish(ctx, decline)
}
