// Package sagas coordinates the multi-context flows that no single
// aggregate owns: the reservation-payment state machine, the Books and
// Wallets responders it converses with, and the late-fee settlement chain.
// Every handler is an idempotent bus subscriber; progress is persisted, so
// redelivered events and process restarts converge on the same outcome.
package sagas

import (
	"context"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/infrastructure/messaging"
)

// Handler is one process manager: a named subscriber covering the event
// types it reacts to.
type Handler interface {
	SubscriberName() string
	EventTypes() []string
	Handle(ctx context.Context, event shared.Event) error
}

// Bus is the slice of the event bus process managers need.
type Bus interface {
	Subscribe(eventType string, sub messaging.Subscriber) messaging.SubscriptionID
}

// Publisher sends integration events back onto the bus.
type Publisher interface {
	Publish(ctx context.Context, events ...shared.Event) error
}

// Register subscribes every handler to each of its event types and returns
// the subscription ids in registration order.
func Register(bus Bus, handlers ...Handler) []messaging.SubscriptionID {
	var ids []messaging.SubscriptionID
	for _, h := range handlers {
		sub := messaging.NewSubscriber(h.SubscriberName(), h.Handle)
		for _, eventType := range h.EventTypes() {
			ids = append(ids, bus.Subscribe(eventType, sub))
		}
	}
	return ids
}
