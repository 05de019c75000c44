package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownEventType marks payloads the registry cannot decode. The bus
// routes such events to the dead-letter store instead of dropping them.
var ErrUnknownEventType = errors.New("unknown event type")

// PayloadFactory returns a zero value of a concrete payload, ready to be
// unmarshalled into.
type PayloadFactory func() Payload

type registryKey struct {
	eventType     string
	schemaVersion int
}

// PayloadRegistry maps (eventType, schemaVersion) to payload constructors.
// It is built once at startup and injected wherever envelopes are decoded;
// there is no package-level instance.
type PayloadRegistry struct {
	mu        sync.RWMutex
	factories map[registryKey]PayloadFactory
}

// NewPayloadRegistry creates an empty registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{factories: make(map[registryKey]PayloadFactory)}
}

// Register adds a payload factory. Registering the same type and schema
// version twice panics: that is a wiring bug, not a runtime condition.
func (r *PayloadRegistry) Register(eventType string, schemaVersion int, factory PayloadFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{eventType: eventType, schemaVersion: schemaVersion}
	if _, exists := r.factories[key]; exists {
		panic(fmt.Sprintf("payload already registered: %s v%d", eventType, schemaVersion))
	}
	r.factories[key] = factory
}

// Decode unmarshals raw payload bytes into the concrete type registered for
// (eventType, schemaVersion). Derived failure events fall back to
// FailurePayload so every <SourceType>_FAILED decodes without explicit
// registration.
func (r *PayloadRegistry) Decode(eventType string, schemaVersion int, raw []byte) (Payload, error) {
	r.mu.RLock()
	factory, ok := r.factories[registryKey{eventType: eventType, schemaVersion: schemaVersion}]
	r.mu.RUnlock()

	if !ok {
		if strings.HasSuffix(eventType, FailureSuffix) {
			var p FailurePayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
			}
			p.FailureEventType = eventType
			return p, nil
		}
		return nil, fmt.Errorf("%w: %s v%d", ErrUnknownEventType, eventType, schemaVersion)
	}

	payload := factory()
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return payload, nil
}

// Known reports whether the registry can decode the given event type at the
// given schema version.
func (r *PayloadRegistry) Known(eventType string, schemaVersion int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[registryKey{eventType: eventType, schemaVersion: schemaVersion}]
	return ok || strings.HasSuffix(eventType, FailureSuffix)
}

// Types returns every registered event type, sorted and deduplicated across
// schema versions. Subscribers that mirror the whole stream use this to
// enumerate the catalog.
func (r *PayloadRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.factories))
	types := make([]string, 0, len(r.factories))
	for key := range r.factories {
		if _, dup := seen[key.eventType]; dup {
			continue
		}
		seen[key.eventType] = struct{}{}
		types = append(types, key.eventType)
	}
	sort.Strings(types)
	return types
}

// envelopeJSON is the wire form of an Event; the payload stays raw until
// the registry resolves its concrete type.
type envelopeJSON struct {
	EventID       string          `json:"eventId"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Version       int             `json:"version"`
	GlobalVersion int64           `json:"globalVersion"`
	SchemaVersion int             `json:"schemaVersion"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      Metadata        `json:"metadata"`
}

// MarshalEnvelope serializes an event to its JSON wire form.
func MarshalEnvelope(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope parses the JSON wire form, dispatching the payload
// through the registry.
func (r *PayloadRegistry) UnmarshalEnvelope(data []byte) (Event, error) {
	var env envelopeJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	payload, err := r.Decode(env.EventType, env.SchemaVersion, env.Payload)
	if err != nil {
		return Event{}, err
	}

	timestamp, err := parseEventTime(env.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("decode envelope timestamp: %w", err)
	}

	return Event{
		EventID:       env.EventID,
		AggregateID:   env.AggregateID,
		EventType:     env.EventType,
		Version:       env.Version,
		GlobalVersion: env.GlobalVersion,
		SchemaVersion: env.SchemaVersion,
		Timestamp:     timestamp,
		Payload:       payload,
		Metadata:      env.Metadata,
	}, nil
}
