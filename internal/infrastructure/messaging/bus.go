// Package messaging carries domain events from producers to in-process
// subscribers and out to EventBridge. Delivery is at-least-once: subscribers
// are written to tolerate redelivery, and events a subscriber cannot process
// end up in the dead-letter store instead of vanishing.
package messaging

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// Subscriber handles events of the types it subscribed to. Name identifies
// the subscriber in dead letters and failure events, so it must be stable
// across restarts.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, event shared.Event) error
}

type subscriberFunc struct {
	name   string
	handle func(ctx context.Context, event shared.Event) error
}

func (s subscriberFunc) Name() string { return s.name }

func (s subscriberFunc) Handle(ctx context.Context, event shared.Event) error {
	return s.handle(ctx, event)
}

// NewSubscriber adapts a function to the Subscriber interface.
func NewSubscriber(name string, handle func(ctx context.Context, event shared.Event) error) Subscriber {
	return subscriberFunc{name: name, handle: handle}
}

// SubscriptionID identifies one (eventType, subscriber) registration.
type SubscriptionID int64

// Metrics receives delivery outcomes. The bus calls it on its worker
// goroutines, so implementations must be safe for concurrent use.
type Metrics interface {
	EventPublished(eventType string)
	EventDelivered(eventType, subscriber string, attempts int, elapsed time.Duration)
	EventDeadLettered(eventType, subscriber string)
}

type nopMetrics struct{}

func (nopMetrics) EventPublished(string)                             {}
func (nopMetrics) EventDelivered(string, string, int, time.Duration) {}
func (nopMetrics) EventDeadLettered(string, string)                  {}

// decodeSubscriber names the synthetic dead letters produced when an inbound
// envelope cannot be decoded at all.
const decodeSubscriber = "envelope_decode"

// Config sizes the bus. Zero values fall back to the defaults.
type Config struct {
	// Workers is the number of dispatch goroutines. Each aggregate id hashes
	// onto exactly one worker, which is what keeps its events in order.
	Workers int
	// QueueSize bounds each worker's queue; a full queue blocks Publish.
	QueueSize int
	// Retry is the per-subscriber delivery retry policy.
	Retry repository.RetryConfig
}

// DefaultConfig returns the bus defaults: 4 workers, 256 queued events per
// worker, the shared append retry policy.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		QueueSize: 256,
		Retry:     repository.DefaultRetryConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	return c
}

type subscription struct {
	id  SubscriptionID
	sub Subscriber
}

// Bus is the in-process event bus. Events are enqueued onto a worker chosen
// by hashing the aggregate id, so all events of one aggregate flow through
// one queue in publish order while different aggregates dispatch in
// parallel.
type Bus struct {
	cfg      Config
	registry *shared.PayloadRegistry
	letters  repository.DeadLetterStore
	metrics  Metrics
	logger   *zap.Logger

	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID SubscriptionID
	closed bool

	queues  []chan shared.Event
	closing chan struct{}
	// dispatchCtx governs in-flight handler retries; it is cancelled when a
	// drain overruns its deadline.
	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
	workers        sync.WaitGroup
}

// NewBus starts the worker pool. The registry decodes inbound envelopes;
// letters receives events whose delivery failed terminally.
func NewBus(cfg Config, reg *shared.PayloadRegistry, letters repository.DeadLetterStore, metrics Metrics, logger *zap.Logger) *Bus {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dispatchCtx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		cfg:            cfg,
		registry:       reg,
		letters:        letters,
		metrics:        metrics,
		logger:         logger,
		subs:           make(map[string][]subscription),
		queues:         make([]chan shared.Event, cfg.Workers),
		closing:        make(chan struct{}),
		dispatchCtx:    dispatchCtx,
		cancelDispatch: cancel,
	}

	for i := range b.queues {
		b.queues[i] = make(chan shared.Event, cfg.QueueSize)
		b.workers.Add(1)
		go b.worker(i)
	}
	return b
}

// Subscribe registers sub for all events of the given type and returns the
// id to unsubscribe with. Subscribers registered for one type see every
// event of that type, including redeliveries.
func (b *Bus) Subscribe(eventType string, sub Subscriber) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, sub: sub})

	b.logger.Debug("subscriber registered",
		zap.String("eventType", eventType),
		zap.String("subscriber", sub.Name()),
		zap.Int64("subscriptionId", int64(id)),
	)
	return id
}

// Unsubscribe removes a registration. Events already queued may still be
// delivered to the removed subscriber.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[eventType]) == 0 {
				delete(b.subs, eventType)
			}
			return
		}
	}
}

// Publish enqueues the events for dispatch in the order given. It blocks
// while the target queue is full, which is the backpressure that keeps a
// burst of appends from outrunning the subscribers.
func (b *Bus) Publish(ctx context.Context, events ...shared.Event) error {
	for _, event := range events {
		if err := b.enqueue(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// PublishEnvelope decodes a wire envelope and publishes the event. Envelopes
// the registry cannot decode are dead-lettered rather than dropped, and the
// call still reports success so the transport can acknowledge them.
func (b *Bus) PublishEnvelope(ctx context.Context, raw []byte) error {
	event, err := b.registry.UnmarshalEnvelope(raw)
	if err != nil {
		return b.deadLetterEnvelope(ctx, raw, err)
	}
	return b.Publish(ctx, event)
}

func (b *Bus) enqueue(ctx context.Context, event shared.Event) error {
	if event.EventType == "" {
		return apperrors.NewError(apperrors.CodeValidationError, "event type required").Build()
	}
	if event.AggregateID == "" {
		return apperrors.NewError(apperrors.CodeInvalidAggregateID, "aggregate id required").
			WithDetails("event type %s", event.EventType).
			Build()
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return apperrors.NewError(apperrors.CodeInternalError, "event bus is closed").
			WithDetails("event type %s", event.EventType).
			Build()
	}

	queue := b.queues[b.queueFor(event.AggregateID)]
	select {
	case queue <- event:
		b.metrics.EventPublished(event.EventType)
		return nil
	case <-ctx.Done():
		return apperrors.NewError(apperrors.CodeOperationTimeout, "publish aborted").
			WithCause(ctx.Err()).
			WithDetails("event type %s", event.EventType).
			Build()
	case <-b.closing:
		return apperrors.NewError(apperrors.CodeInternalError, "event bus is closed").
			WithDetails("event type %s", event.EventType).
			Build()
	}
}

func (b *Bus) queueFor(aggregateID string) int {
	h := fnv.New32a()
	h.Write([]byte(aggregateID))
	return int(h.Sum32()) % len(b.queues)
}

func (b *Bus) worker(i int) {
	defer b.workers.Done()
	queue := b.queues[i]

	for {
		select {
		case event := <-queue:
			b.dispatch(event)
		case <-b.closing:
			// Drain whatever was queued before the close.
			for {
				select {
				case event := <-queue:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

// dispatch delivers the event to every subscriber of its type, each with its
// own retry budget. One subscriber's failure never blocks another's
// delivery.
func (b *Bus) dispatch(event shared.Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[event.EventType]))
	copy(subs, b.subs[event.EventType])
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(event, s.sub)
	}
}

func (b *Bus) deliver(event shared.Event, sub Subscriber) {
	started := time.Now()
	attempts := 0

	err := repository.RetryWithBackoff(b.dispatchCtx, b.cfg.Retry, func() error {
		attempts++
		return sub.Handle(b.dispatchCtx, event)
	}, repository.RetryAllErrors)

	if err == nil {
		b.metrics.EventDelivered(event.EventType, sub.Name(), attempts, time.Since(started))
		return
	}

	b.logger.Warn("delivery exhausted retries",
		zap.String("eventType", event.EventType),
		zap.String("aggregateId", event.AggregateID),
		zap.String("subscriber", sub.Name()),
		zap.Int("attempts", attempts),
		zap.String("correlationId", event.Metadata.CorrelationID),
		zap.Error(err),
	)
	b.deadLetter(event, sub.Name(), attempts, err)

	// Failure events keep the source aggregate id, so they are dispatched
	// inline on the same worker to preserve per-aggregate order. Events that
	// are already failure events only dead-letter; deriving a failure of a
	// failure would recurse.
	if !strings.HasSuffix(event.EventType, shared.FailureSuffix) {
		failure := shared.NewFailureEvent(event, sub.Name(), err.Error(), string(apperrors.CodeOf(err)))
		b.metrics.EventPublished(failure.EventType)
		b.dispatch(failure)
	}
}

func (b *Bus) deadLetter(event shared.Event, subscriber string, attempts int, cause error) {
	envelope, err := shared.MarshalEnvelope(event)
	if err != nil {
		b.logger.Error("dead letter envelope marshal failed",
			zap.String("eventType", event.EventType),
			zap.String("aggregateId", event.AggregateID),
			zap.Error(err),
		)
		envelope = nil
	}

	letter := repository.DeadLetter{
		EventID:     event.EventID,
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		Version:     event.Version,
		Subscriber:  subscriber,
		Reason:      cause.Error(),
		Attempts:    attempts,
		Envelope:    envelope,
		FailedAt:    time.Now().UTC(),
	}
	if err := b.letters.Save(b.dispatchCtx, letter); err != nil {
		b.logger.Error("dead letter save failed",
			zap.String("eventType", event.EventType),
			zap.String("aggregateId", event.AggregateID),
			zap.String("subscriber", subscriber),
			zap.Error(err),
		)
		return
	}
	b.metrics.EventDeadLettered(event.EventType, subscriber)
}

// deadLetterEnvelope records an envelope that failed to decode. The raw
// bytes are preserved so the event can be replayed once the registry knows
// its type.
func (b *Bus) deadLetterEnvelope(ctx context.Context, raw []byte, cause error) error {
	var head struct {
		EventID     string `json:"eventId"`
		AggregateID string `json:"aggregateId"`
		EventType   string `json:"eventType"`
		Version     int    `json:"version"`
	}
	// Best effort: an envelope broken beyond the header still gets a letter,
	// just with empty key fields.
	_ = json.Unmarshal(raw, &head)

	b.logger.Warn("envelope rejected",
		zap.String("eventType", head.EventType),
		zap.String("aggregateId", head.AggregateID),
		zap.Error(cause),
	)

	letter := repository.DeadLetter{
		EventID:     head.EventID,
		EventType:   head.EventType,
		AggregateID: head.AggregateID,
		Version:     head.Version,
		Subscriber:  decodeSubscriber,
		Reason:      cause.Error(),
		Attempts:    1,
		Envelope:    append([]byte(nil), raw...),
		FailedAt:    time.Now().UTC(),
	}
	if err := b.letters.Save(ctx, letter); err != nil {
		return apperrors.Wrap(err, "bus.dead_letter_envelope")
	}
	b.metrics.EventDeadLettered(head.EventType, decodeSubscriber)
	return nil
}

// Close rejects new publishes and drains the queues. The context bounds the
// drain; when it expires, in-flight deliveries are cancelled and their
// events follow the normal dead-letter path.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.closing)

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancelDispatch()
		return nil
	case <-ctx.Done():
		b.cancelDispatch()
		<-done
		return apperrors.NewError(apperrors.CodeOperationTimeout, "bus drain exceeded deadline").
			WithCause(ctx.Err()).
			Build()
	}
}
