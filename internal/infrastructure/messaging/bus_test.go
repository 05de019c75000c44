package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/infrastructure/persistence/memory"
	"libris-backend/internal/repository"
)

type testPayload struct {
	Name string `json:"name"`
}

func (testPayload) EventType() string  { return "ThingHappened" }
func (testPayload) SchemaVersion() int { return 1 }

func newTestBus(t *testing.T, letters repository.DeadLetterStore) *Bus {
	t.Helper()
	registry := shared.NewPayloadRegistry()
	registry.Register("ThingHappened", 1, func() shared.Payload { return &testPayload{} })

	cfg := Config{
		Workers:   2,
		QueueSize: 64,
		Retry: repository.RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	}
	bus := NewBus(cfg, registry, letters, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})
	return bus
}

// recorder collects delivered events and signals each delivery.
type recorder struct {
	mu        sync.Mutex
	events    []shared.Event
	delivered chan struct{}
}

func newRecorder() *recorder {
	return &recorder{delivered: make(chan struct{}, 128)}
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Handle(_ context.Context, event shared.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.delivered <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T, n int) []shared.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.delivered:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.Event(nil), r.events...)
}

func TestBus_DeliversToSubscriber(t *testing.T) {
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	event := shared.NewEvent("agg-1", 1, &testPayload{Name: "x"}, shared.NewMetadata("user-1"))
	require.NoError(t, bus.Publish(context.Background(), event))

	got := rec.wait(t, 1)
	assert.Equal(t, event.EventID, got[0].EventID)
	assert.Equal(t, "ThingHappened", got[0].EventType)
}

func TestBus_SerializesPerAggregateInPublishOrder(t *testing.T) {
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	const n = 20
	events := make([]shared.Event, 0, n)
	for v := 1; v <= n; v++ {
		events = append(events, shared.NewEvent("agg-1", v, &testPayload{}, shared.Metadata{}))
	}
	require.NoError(t, bus.Publish(context.Background(), events...))

	got := rec.wait(t, n)
	for i, e := range got {
		assert.Equal(t, i+1, e.Version, "delivery %d out of order", i)
	}
}

func TestBus_RetriesTransientHandlerFailures(t *testing.T) {
	letters := memory.NewDeadLetterStore()
	bus := newTestBus(t, letters)

	var calls int
	done := make(chan struct{})
	bus.Subscribe("ThingHappened", NewSubscriber("flaky", func(context.Context, shared.Event) error {
		calls++
		if calls < 3 {
			return apperrors.Internal("not yet", nil)
		}
		close(done)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{})))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never succeeded")
	}
	count, err := letters.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBus_ExhaustedRetriesDeadLetterAndFailureEvent(t *testing.T) {
	letters := memory.NewDeadLetterStore()
	bus := newTestBus(t, letters)

	bus.Subscribe("ThingHappened", NewSubscriber("poisoned", func(context.Context, shared.Event) error {
		return apperrors.Internal("cannot process", nil)
	}))
	failures := newRecorder()
	bus.Subscribe("ThingHappened_FAILED", failures)

	source := shared.NewEvent("agg-1", 4, &testPayload{}, shared.NewMetadata("user-1"))
	require.NoError(t, bus.Publish(context.Background(), source))

	got := failures.wait(t, 1)
	failure := got[0]
	assert.Equal(t, "ThingHappened_FAILED", failure.EventType)
	assert.Equal(t, source.AggregateID, failure.AggregateID)
	assert.Equal(t, source.Metadata.CorrelationID, failure.Metadata.CorrelationID)
	payload, ok := failure.Payload.(shared.FailurePayload)
	require.True(t, ok)
	assert.Equal(t, "ThingHappened", payload.SourceEventType)
	assert.Equal(t, "poisoned", payload.Subscriber)
	assert.Equal(t, string(apperrors.CodeInternalError), payload.Code)

	page, err := letters.List(context.Background(), repository.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	letter := page.Data[0]
	assert.Equal(t, repository.LetterID("ThingHappened", "agg-1", 4, "poisoned"), letter.ID)
	assert.Equal(t, 3, letter.Attempts)
	assert.NotEmpty(t, letter.Envelope)
}

func TestBus_FailureEventFailuresOnlyDeadLetter(t *testing.T) {
	letters := memory.NewDeadLetterStore()
	bus := newTestBus(t, letters)

	bus.Subscribe("ThingHappened", NewSubscriber("poisoned", func(context.Context, shared.Event) error {
		return apperrors.Internal("cannot process", nil)
	}))
	failureSeen := make(chan struct{}, 4)
	bus.Subscribe("ThingHappened_FAILED", NewSubscriber("poisoned_too", func(context.Context, shared.Event) error {
		failureSeen <- struct{}{}
		return apperrors.Internal("still cannot process", nil)
	}))

	require.NoError(t, bus.Publish(context.Background(), shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{})))

	// Three attempts on the failure event, then it dead-letters without
	// spawning a failure of a failure.
	for i := 0; i < 3; i++ {
		select {
		case <-failureSeen:
		case <-time.After(2 * time.Second):
			t.Fatalf("failure event attempt %d never arrived", i+1)
		}
	}
	require.Eventually(t, func() bool {
		count, err := letters.Count(context.Background())
		return err == nil && count == 2
	}, 2*time.Second, 10*time.Millisecond)

	page, err := letters.List(context.Background(), repository.PageRequest{})
	require.NoError(t, err)
	types := map[string]bool{}
	for _, letter := range page.Data {
		types[letter.EventType] = true
	}
	assert.True(t, types["ThingHappened"])
	assert.True(t, types["ThingHappened_FAILED"])
}

func TestBus_PublishEnvelopeDeliversDecodedEvent(t *testing.T) {
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	event := shared.NewEvent("agg-1", 1, &testPayload{Name: "wire"}, shared.NewMetadata("user-1"))
	raw, err := shared.MarshalEnvelope(event)
	require.NoError(t, err)

	require.NoError(t, bus.PublishEnvelope(context.Background(), raw))

	got := rec.wait(t, 1)
	payload, ok := got[0].Payload.(*testPayload)
	require.True(t, ok)
	assert.Equal(t, "wire", payload.Name)
}

func TestBus_UnknownEnvelopeIsDeadLetteredNotDropped(t *testing.T) {
	letters := memory.NewDeadLetterStore()
	bus := newTestBus(t, letters)

	raw := []byte(`{"eventId":"e-1","aggregateId":"agg-9","eventType":"Mystery","version":2,"schemaVersion":1,"payload":{}}`)
	require.NoError(t, bus.PublishEnvelope(context.Background(), raw))

	page, err := letters.List(context.Background(), repository.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	letter := page.Data[0]
	assert.Equal(t, "Mystery", letter.EventType)
	assert.Equal(t, "agg-9", letter.AggregateID)
	assert.Equal(t, 2, letter.Version)
	assert.Equal(t, raw, letter.Envelope)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	id := bus.Subscribe("ThingHappened", rec)
	keep := newRecorder()
	bus.Subscribe("ThingHappened", keep)

	bus.Unsubscribe(id)
	require.NoError(t, bus.Publish(context.Background(), shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{})))

	keep.wait(t, 1)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.events)
}

func TestBus_CloseDrainsQueuedEvents(t *testing.T) {
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	const n = 10
	for v := 1; v <= n; v++ {
		require.NoError(t, bus.Publish(context.Background(), shared.NewEvent("agg-1", v, &testPayload{}, shared.Metadata{})))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.events, n)
}

func TestBus_PublishAfterCloseFails(t *testing.T) {
	bus := newTestBus(t, memory.NewDeadLetterStore())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	err := bus.Publish(context.Background(), shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{}))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternalError))
}
