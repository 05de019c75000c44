package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/infrastructure/persistence/memory"
)

// appendOnly puts events into the log without publishing them, which is
// exactly the gap the catch-up exists to close.
func appendOnly(t *testing.T, store *memory.EventStore, events ...shared.Event) []shared.Event {
	t.Helper()
	stored, err := store.AppendEvents(context.Background(), events)
	require.NoError(t, err)
	return stored
}

func TestCatchUp_RepublishesUndeliveredLog(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	stored := appendOnly(t, store,
		shared.NewEvent("agg-1", 1, &testPayload{Name: "a"}, shared.NewMetadata("user-1")),
		shared.NewEvent("agg-1", 2, &testPayload{Name: "b"}, shared.NewMetadata("user-1")),
		shared.NewEvent("agg-1", 3, &testPayload{Name: "c"}, shared.NewMetadata("user-1")),
	)

	catchup := NewCatchUp(store, bus, checkpoints, CheckpointWorker, time.Hour, nil)
	published, err := catchup.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, published)

	got := rec.wait(t, 3)
	for i, e := range got {
		assert.Equal(t, stored[i].EventID, e.EventID, "delivery %d", i)
	}

	cursor, err := checkpoints.Load(context.Background(), CheckpointWorker)
	require.NoError(t, err)
	assert.Equal(t, stored[2].GlobalVersion, cursor)
}

func TestCatchUp_SweepsAreIncremental(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)
	catchup := NewCatchUp(store, bus, checkpoints, CheckpointWorker, time.Hour, nil)

	appendOnly(t, store, shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{}))
	published, err := catchup.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, published)
	rec.wait(t, 1)

	appendOnly(t, store,
		shared.NewEvent("agg-1", 2, &testPayload{}, shared.Metadata{}),
		shared.NewEvent("agg-2", 1, &testPayload{}, shared.Metadata{}),
	)
	published, err = catchup.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	rec.wait(t, 2)

	// Nothing new: the cursor holds and no event goes out again.
	published, err = catchup.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestCatchUp_ResumesFromSavedCursor(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	stored := appendOnly(t, store,
		shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{}),
		shared.NewEvent("agg-1", 2, &testPayload{}, shared.Metadata{}),
		shared.NewEvent("agg-1", 3, &testPayload{}, shared.Metadata{}),
		shared.NewEvent("agg-1", 4, &testPayload{}, shared.Metadata{}),
	)
	require.NoError(t, checkpoints.Save(context.Background(), CheckpointWorker, stored[1].GlobalVersion))

	catchup := NewCatchUp(store, bus, checkpoints, CheckpointWorker, time.Hour, nil)
	published, err := catchup.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	got := rec.wait(t, 2)
	assert.Equal(t, 3, got[0].Version)
	assert.Equal(t, 4, got[1].Version)
}

func TestCatchUp_PagesThroughBacklog(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	// Big enough to split across pages, small enough that the recorder's
	// signal buffer absorbs every delivery before wait starts draining.
	const n = catchupBatch + 20
	events := make([]shared.Event, 0, n)
	for v := 1; v <= n; v++ {
		events = append(events, shared.NewEvent("agg-1", v, &testPayload{}, shared.Metadata{}))
	}
	appendOnly(t, store, events...)

	catchup := NewCatchUp(store, bus, checkpoints, CheckpointWorker, time.Hour, nil)
	published, err := catchup.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, published)

	got := rec.wait(t, n)
	for i, e := range got {
		require.Equal(t, i+1, e.Version, "delivery %d out of order across pages", i)
	}

	cursor, err := checkpoints.Load(context.Background(), CheckpointWorker)
	require.NoError(t, err)
	assert.Equal(t, int64(n), cursor)
}

// flakyCheckpoints fails a number of saves before recovering.
type flakyCheckpoints struct {
	*memory.CheckpointStore
	saveFailures int
}

func (s *flakyCheckpoints) Save(ctx context.Context, name string, globalVersion int64) error {
	if s.saveFailures > 0 {
		s.saveFailures--
		return apperrors.Internal("checkpoint write lost", nil)
	}
	return s.CheckpointStore.Save(ctx, name, globalVersion)
}

func TestCatchUp_LostCheckpointWriteRepublishesPage(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := &flakyCheckpoints{CheckpointStore: memory.NewCheckpointStore(), saveFailures: 1}
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	stored := appendOnly(t, store,
		shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{}),
		shared.NewEvent("agg-1", 2, &testPayload{}, shared.Metadata{}),
	)

	catchup := NewCatchUp(store, bus, checkpoints, CheckpointWorker, time.Hour, nil)
	_, err := catchup.Sweep(context.Background())
	require.Error(t, err)

	// The cursor never advanced, so the next sweep repeats the page. The
	// repeats are ordinary at-least-once redelivery for subscribers.
	published, err := catchup.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	got := rec.wait(t, 4)
	assert.Equal(t, []int{1, 2, 1, 2}, []int{got[0].Version, got[1].Version, got[2].Version, got[3].Version})

	cursor, err := checkpoints.Load(context.Background(), CheckpointWorker)
	require.NoError(t, err)
	assert.Equal(t, stored[1].GlobalVersion, cursor)
}

func TestCatchUp_RunSweepsUntilContextCancel(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	bus := newTestBus(t, memory.NewDeadLetterStore())
	rec := newRecorder()
	bus.Subscribe("ThingHappened", rec)

	appendOnly(t, store, shared.NewEvent("agg-1", 1, &testPayload{}, shared.Metadata{}))

	catchup := NewCatchUp(store, bus, checkpoints, CheckpointWorker, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		catchup.Run(ctx)
		close(done)
	}()

	rec.wait(t, 1)
	appendOnly(t, store, shared.NewEvent("agg-1", 2, &testPayload{}, shared.Metadata{}))
	got := rec.wait(t, 1) // a later tick picks up the new event
	assert.Equal(t, 2, got[len(got)-1].Version)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("catch-up did not stop on cancel")
	}
}
