// Package shared holds the domain primitives every bounded context builds
// on: the event envelope, payload registry, and aggregate root base.
package shared

import (
	"time"

	"github.com/google/uuid"
)

// Metadata links an event to the business request that initiated the chain
// (correlation) and to the direct input that caused it (causation).
type Metadata struct {
	CorrelationID string    `json:"correlationId"`
	CausationID   string    `json:"causationId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	StoredAt      time.Time `json:"storedAt,omitempty"`
}

// Payload is implemented by every concrete event payload. The event type
// doubles as the discriminator for serialization; the schema version allows
// payload evolution without breaking old streams.
type Payload interface {
	EventType() string
	SchemaVersion() int
}

// Event is the canonical envelope appended to the event store and carried
// across the bus. Version is the per-aggregate sequence starting at 1;
// GlobalVersion is assigned at append time and is strictly increasing
// across all aggregates (gaps are permitted).
type Event struct {
	EventID       string    `json:"eventId"`
	AggregateID   string    `json:"aggregateId"`
	EventType     string    `json:"eventType"`
	Version       int       `json:"version"`
	GlobalVersion int64     `json:"globalVersion"`
	SchemaVersion int       `json:"schemaVersion"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       Payload   `json:"payload"`
	Metadata      Metadata  `json:"metadata"`
}

// NewEvent wraps a payload in an envelope at the given per-aggregate
// version. GlobalVersion is zero until the store assigns it.
func NewEvent(aggregateID string, version int, payload Payload, meta Metadata) Event {
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateID:   aggregateID,
		EventType:     payload.EventType(),
		Version:       version,
		SchemaVersion: payload.SchemaVersion(),
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
		Metadata:      meta,
	}
}

// parseEventTime accepts the RFC3339 timestamps produced by MarshalEnvelope
// and by other producers on the same bus (with or without sub-second
// precision), normalized to UTC.
func parseEventTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// NewMetadata starts a fresh correlation chain for an inbound command.
func NewMetadata(userID string) Metadata {
	return Metadata{
		CorrelationID: uuid.NewString(),
		UserID:        userID,
	}
}

// NextMetadata derives the metadata for events produced while handling
// parent: the correlation id is carried over (synthesized when absent) and
// the causation id becomes the parent's event id.
func NextMetadata(parent Event) Metadata {
	correlationID := parent.Metadata.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Metadata{
		CorrelationID: correlationID,
		CausationID:   parent.EventID,
		UserID:        parent.Metadata.UserID,
	}
}

// FailureSuffix is appended to a source event type to derive the name of
// the error event published after a subscriber exhausts its retries.
const FailureSuffix = "_FAILED"

// FailurePayload describes a subscriber failure for a source event. Its
// event type is derived from the source type, so there is no fixed name to
// register; it decodes through the registry's failure fallback.
type FailurePayload struct {
	FailureEventType string `json:"-"`
	SourceEventType  string `json:"sourceEventType"`
	Subscriber       string `json:"subscriber,omitempty"`
	Reason           string `json:"reason"`
	Code             string `json:"code"`
	CorrelationID    string `json:"correlationId"`
}

func (p FailurePayload) EventType() string {
	if p.FailureEventType != "" {
		return p.FailureEventType
	}
	return p.SourceEventType + FailureSuffix
}

func (p FailurePayload) SchemaVersion() int { return 1 }

// NewFailureEvent builds the <SourceType>_FAILED event for a source event a
// subscriber could not process. It keeps the source aggregate id and
// correlation id so operators can trace the failed chain.
func NewFailureEvent(source Event, subscriber, reason, code string) Event {
	payload := FailurePayload{
		SourceEventType: source.EventType,
		Subscriber:      subscriber,
		Reason:          reason,
		Code:            code,
		CorrelationID:   source.Metadata.CorrelationID,
	}
	meta := NextMetadata(source)
	e := NewEvent(source.AggregateID, source.Version, payload, meta)
	// Failure events are diagnostics, not part of the aggregate stream, so
	// they keep the source version rather than advancing it.
	return e
}
