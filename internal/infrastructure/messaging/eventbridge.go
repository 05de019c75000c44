package messaging

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
)

// putEventsBatchMax is the EventBridge limit on entries per PutEvents call.
const putEventsBatchMax = 10

// EventBridgePublisher forwards domain events to an EventBridge bus so other
// services can react without joining this process. It implements Subscriber,
// so forwarding rides the in-process bus: a PutEvents failure retries and
// dead-letters like any other delivery.
type EventBridgePublisher struct {
	client  *eventbridge.Client
	busName string
	logger  *zap.Logger
}

// NewEventBridgePublisher targets the named bus; empty means the account's
// default bus.
func NewEventBridgePublisher(client *eventbridge.Client, busName string, logger *zap.Logger) *EventBridgePublisher {
	if busName == "" {
		busName = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:  client,
		busName: busName,
		logger:  logger,
	}
}

// Name implements Subscriber.
func (p *EventBridgePublisher) Name() string { return "eventbridge_forwarder" }

// Handle implements Subscriber by forwarding the single event.
func (p *EventBridgePublisher) Handle(ctx context.Context, event shared.Event) error {
	return p.Publish(ctx, event)
}

// Publish forwards events in PutEvents batches.
func (p *EventBridgePublisher) Publish(ctx context.Context, events ...shared.Event) error {
	for start := 0; start < len(events); start += putEventsBatchMax {
		end := start + putEventsBatchMax
		if end > len(events) {
			end = len(events)
		}
		if err := p.publishBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, events []shared.Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	for _, event := range events {
		entry, err := p.entryFor(event)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	output, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return apperrors.NewError(apperrors.CodeInternalError, "put events").
			WithCause(err).
			WithOperation("eventbridge.publish").
			Build()
	}

	if output.FailedEntryCount > 0 {
		for i, entry := range output.Entries {
			if entry.ErrorCode == nil {
				continue
			}
			p.logger.Error("eventbridge entry rejected",
				zap.String("eventType", events[i].EventType),
				zap.String("aggregateId", events[i].AggregateID),
				zap.String("code", aws.ToString(entry.ErrorCode)),
				zap.String("message", aws.ToString(entry.ErrorMessage)),
			)
		}
		return apperrors.NewError(apperrors.CodeInternalError, "events rejected by eventbridge").
			WithDetails("%d of %d entries failed", output.FailedEntryCount, len(entries)).
			WithOperation("eventbridge.publish").
			Build()
	}

	p.logger.Debug("events forwarded",
		zap.Int("count", len(entries)),
		zap.String("bus", p.busName),
	)
	return nil
}

func (p *EventBridgePublisher) entryFor(event shared.Event) (types.PutEventsRequestEntry, error) {
	detail, err := shared.MarshalEnvelope(event)
	if err != nil {
		return types.PutEventsRequestEntry{}, apperrors.NewError(apperrors.CodeInternalError, "marshal envelope").
			WithCause(err).
			WithResource(event.AggregateID).
			WithDetails("event type %s", event.EventType).
			Build()
	}

	return types.PutEventsRequestEntry{
		EventBusName: aws.String(p.busName),
		Source:       aws.String(sourceFor(event.EventType)),
		DetailType:   aws.String(event.EventType),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(event.Timestamp),
		Resources:    []string{event.AggregateID},
	}, nil
}

// sourceFor maps an event type to its owning context's EventBridge source.
// Derived failure events keep their source type's prefix, so they map to the
// same context.
func sourceFor(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "Book"):
		return "libris.books"
	case strings.HasPrefix(eventType, "Reservation"):
		return "libris.reservations"
	case strings.HasPrefix(eventType, "Wallet"):
		return "libris.wallets"
	default:
		return "libris.platform"
	}
}
