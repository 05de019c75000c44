package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"libris-backend/internal/config"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/infrastructure/observability"
	"libris-backend/internal/infrastructure/persistence/memory"
	"libris-backend/internal/repository"
)

type stubPayload struct {
	Name string `json:"name"`
}

func (stubPayload) EventType() string  { return "ThingHappened" }
func (stubPayload) SchemaVersion() int { return 1 }

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name        string
		environment config.Environment
		level       string
		threshold   zapcore.Level
	}{
		{"production warn", config.Production, "warn", zap.WarnLevel},
		{"development debug", config.Development, "debug", zap.DebugLevel},
		{"unknown level falls back to info", config.Development, "verbose", zap.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := observability.NewLogger(tt.environment, tt.level)
			require.NoError(t, err)
			defer func() { _ = logger.Sync() }()

			assert.True(t, logger.Core().Enabled(tt.threshold))
			if tt.threshold > zap.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.threshold-1))
			}
		})
	}
}

func TestCollector_CommandAndQueryMetrics(t *testing.T) {
	collector := observability.NewCollector("libris")

	collector.ObserveCommand("AddBook", nil, 5*time.Millisecond)
	collector.ObserveCommand("AddBook", errors.New("boom"), 5*time.Millisecond)
	collector.ObserveQuery("GetBookByID", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CommandsTotal.WithLabelValues("AddBook", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CommandsTotal.WithLabelValues("AddBook", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.QueriesTotal.WithLabelValues("GetBookByID", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.CommandDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.QueryDuration))
}

func TestCollector_BusMetrics(t *testing.T) {
	collector := observability.NewCollector("libris")

	collector.EventPublished("BOOK_ADDED")
	collector.EventDelivered("BOOK_ADDED", "books-projection", 2, 10*time.Millisecond)
	collector.EventDeadLettered("BOOK_ADDED", "books-projection")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.EventsPublished.WithLabelValues("BOOK_ADDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.EventsDelivered.WithLabelValues("BOOK_ADDED", "books-projection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.EventsDeadLettered.WithLabelValues("BOOK_ADDED", "books-projection")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.DeliveryAttempts))
}

func TestCollector_HandlerExposesFamilies(t *testing.T) {
	collector := observability.NewCollector("libris")
	collector.EventPublished("BOOK_ADDED")

	server := httptest.NewServer(collector.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "libris_events_published_total")
}

func TestMetricsMiddleware_RecordsRouteAndStatus(t *testing.T) {
	collector := observability.NewCollector("libris")

	router := chi.NewRouter()
	router.Use(observability.MetricsMiddleware(collector))
	router.Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/books/42")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "/books/{id}", "200")),
		"matched requests are labelled by route pattern")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "unmatched", "404")),
		"unmatched requests share one label to bound cardinality")
}

func TestTracingMiddleware_SetsTraceHeader(t *testing.T) {
	tp, err := observability.InitTracing("libris-test", config.Development, "localhost:4317")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
		_ = tp.Shutdown(ctx) // export fails without a collector listening
	})

	router := chi.NewRouter()
	router.Use(observability.TracingMiddleware("libris-test"))
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Len(t, resp.Header.Get("X-Trace-ID"), 32)
	assert.NotEmpty(t, resp.Header.Get("Traceparent"))
}

func TestInitTracing_ShutsDownCleanly(t *testing.T) {
	tp, err := observability.InitTracing("libris-test", config.Production, "localhost:4317")
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())

	// No spans were recorded, so shutdown flushes an empty batch and does
	// not need a live collector.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestMeasuredEventStore_RecordsOperations(t *testing.T) {
	collector := observability.NewCollector("libris")
	store := observability.NewMeasuredEventStore(memory.NewEventStore(), collector)

	events := []shared.Event{
		shared.NewEvent("book-1", 1, &stubPayload{Name: "a"}, shared.NewMetadata("user-1")),
		shared.NewEvent("book-1", 2, &stubPayload{Name: "b"}, shared.NewMetadata("user-1")),
	}
	stored, err := store.AppendEvents(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// Resubmitting an already stored event must fail and count an errored
	// append.
	_, err = store.AppendEvents(context.Background(), events[:1])
	require.Error(t, err)

	loaded, err := store.LoadEvents(context.Background(), "book-1")
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	tail, err := store.LoadEventsFrom(context.Background(), "book-1", 2)
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	all, err := store.LoadAllEvents(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.EventsAppended))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("append_events", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("append_events", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("load_events", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("load_events_from", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues("load_all_events", "ok")))
}

func TestTraceEventStore_Delegates(t *testing.T) {
	store := observability.TraceEventStore(memory.NewEventStore(), otel.Tracer("test"))

	event := shared.NewEvent("book-1", 1, &stubPayload{Name: "a"}, shared.NewMetadata("user-1"))
	stored, err := store.AppendEvents(context.Background(), []shared.Event{event})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(1), stored[0].GlobalVersion)

	loaded, err := store.LoadEvents(context.Background(), "book-1")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestMeasuredSagaStore_CountsTransitionsAndOutcomes(t *testing.T) {
	collector := observability.NewCollector("libris")
	store := observability.NewMeasuredSagaStore(memory.NewSagaStore(), collector)

	now := time.Now().UTC()
	state := &repository.SagaState{
		ReservationID: "res-1",
		UserID:        "user-1",
		BookID:        "book-1",
		Step:          repository.SagaStepAwaitingBookValidation,
		Status:        repository.SagaStatusRunning,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.Upsert(context.Background(), state))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SagaTransitions.WithLabelValues(repository.SagaStepAwaitingBookValidation)))
	assert.Equal(t, 0, testutil.CollectAndCount(collector.SagaOutcomes),
		"outcomes are only counted on terminal writes")

	state.Step = repository.SagaStepCompleted
	state.Status = repository.SagaStatusCompleted
	require.NoError(t, store.Upsert(context.Background(), state))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SagaTransitions.WithLabelValues(repository.SagaStepCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SagaOutcomes.WithLabelValues(repository.SagaStatusCompleted)))

	// Failed upserts are not counted.
	err := store.Upsert(context.Background(), &repository.SagaState{})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SagaTransitions.WithLabelValues(repository.SagaStepCompleted)))

	fetched, err := store.GetByReservationID(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, repository.SagaStepCompleted, fetched.Step)

	stalled, err := store.ListStalled(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stalled, "terminal sagas are never stalled")
}
