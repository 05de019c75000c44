// Package commands implements the write side. Every handler follows the
// same shape: validate input, run uniqueness checks against the read
// models, execute the domain operation, append the raised events, and hand
// the stored envelopes to the bus.
//
// Mutations reload the aggregate and retry the whole cycle on version
// conflicts, so concurrent writers interleave instead of failing.
package commands

import (
	"context"

	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/repository"
)

// Publisher is the slice of the event bus command handlers need.
type Publisher interface {
	Publish(ctx context.Context, events ...shared.Event) error
}

// handlerCore bundles the collaborators every command handler shares.
type handlerCore struct {
	events repository.EventStore
	bus    Publisher
	retry  repository.RetryConfig
	logger *zap.Logger
}

func newHandlerCore(events repository.EventStore, bus Publisher, retry repository.RetryConfig, logger *zap.Logger) handlerCore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return handlerCore{events: events, bus: bus, retry: retry, logger: logger}
}

// commit appends the aggregate's pending events and publishes the stored
// envelopes. A publish failure does not fail the command: the events are
// durable at that point and the log catch-up in the worker replays them.
func (c handlerCore) commit(ctx context.Context, agg shared.AggregateRoot) error {
	pending := agg.PendingEvents()
	if len(pending) == 0 {
		return nil
	}
	stored, err := c.events.AppendEvents(ctx, pending)
	if err != nil {
		return err
	}
	agg.ClearDomainEvents()
	if err := c.bus.Publish(ctx, stored...); err != nil {
		c.logger.Warn("stored events not published",
			zap.String("aggregateId", agg.GetID()),
			zap.Int("count", len(stored)),
			zap.Error(err))
	}
	return nil
}

// publish sends bus-only integration events. They are never appended to an
// aggregate stream, so failures are logged rather than returned.
func (c handlerCore) publish(ctx context.Context, events ...shared.Event) {
	if err := c.bus.Publish(ctx, events...); err != nil {
		c.logger.Warn("integration events not published",
			zap.Int("count", len(events)),
			zap.Error(err))
	}
}

// mutate runs one load-rehydrate-mutate-commit cycle against an aggregate
// stream. The whole cycle retries on version conflicts; notFound is
// returned when the stream is empty.
func mutate[T shared.AggregateRoot](ctx context.Context, core handlerCore, id string, notFound error, empty func(string) T, op func(T) error) (T, error) {
	var out T
	cycle := func() error {
		history, err := core.events.LoadEvents(ctx, id)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return notFound
		}
		agg := empty(id)
		if err := shared.Rehydrate(agg, history); err != nil {
			return err
		}
		if err := op(agg); err != nil {
			return err
		}
		out = agg
		return core.commit(ctx, agg)
	}
	if err := repository.RetryWithBackoff(ctx, core.retry, cycle, repository.RetryConcurrencyConflicts); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
