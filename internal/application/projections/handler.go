// Package projections applies domain events to the read models. Handlers
// are idempotent by construction: every write is a version-guarded patch, so
// redelivered and out-of-order events converge on the same rows.
package projections

import (
	"context"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/infrastructure/messaging"
)

// Handler is one projection: a named subscriber covering the event types it
// folds into its read model.
type Handler interface {
	ProjectionName() string
	EventTypes() []string
	Handle(ctx context.Context, event shared.Event) error
}

// Bus is the slice of the event bus projections need.
type Bus interface {
	Subscribe(eventType string, sub messaging.Subscriber) messaging.SubscriptionID
}

// Register subscribes every handler to each of its event types and returns
// the subscription ids in registration order.
func Register(bus Bus, handlers ...Handler) []messaging.SubscriptionID {
	var ids []messaging.SubscriptionID
	for _, h := range handlers {
		sub := messaging.NewSubscriber(h.ProjectionName(), h.Handle)
		for _, eventType := range h.EventTypes() {
			ids = append(ids, bus.Subscribe(eventType, sub))
		}
	}
	return ids
}
