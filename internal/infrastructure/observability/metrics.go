// Package observability provides the service's logging, metrics and
// tracing plumbing: a zap logger factory, a Prometheus collector, an OTLP
// tracer provider, HTTP middleware, and instrumented wrappers for the
// event store and the saga store.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"libris-backend/internal/infrastructure/messaging"
)

// Collector holds every Prometheus metric family the service records. Each
// collector owns its registry, so tests can build as many as they like
// without duplicate-registration panics.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Command and query metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec

	// Event bus metrics
	EventsPublished    *prometheus.CounterVec
	EventsDelivered    *prometheus.CounterVec
	DeliveryDuration   *prometheus.HistogramVec
	DeliveryAttempts   *prometheus.HistogramVec
	EventsDeadLettered *prometheus.CounterVec

	// Event store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	EventsAppended  prometheus.Counter

	// Saga metrics
	SagaTransitions *prometheus.CounterVec
	SagaOutcomes    *prometheus.CounterVec
}

// Compile-time check that the collector can be plugged into the event bus.
var _ messaging.Metrics = (*Collector)(nil)

// NewCollector creates a collector with all families registered under the
// given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	commandsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of commands executed",
		},
		[]string{"command", "status"},
	)

	commandDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries executed",
		},
		[]string{"query", "status"},
	)

	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	eventsPublished := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events accepted by the bus",
		},
		[]string{"event_type"},
	)

	eventsDelivered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Total number of successful subscriber deliveries",
		},
		[]string{"event_type", "subscriber"},
	)

	deliveryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_delivery_duration_seconds",
			Help:      "Delivery duration in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"event_type", "subscriber"},
	)

	deliveryAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_delivery_attempts",
			Help:      "Attempts needed per successful delivery",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		},
		[]string{"event_type", "subscriber"},
	)

	eventsDeadLettered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dead_lettered_total",
			Help:      "Total number of deliveries parked in the dead letter store",
		},
		[]string{"event_type", "subscriber"},
	)

	storeOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_store_operations_total",
			Help:      "Total number of event store operations",
		},
		[]string{"operation", "status"},
	)

	storeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_store_operation_duration_seconds",
			Help:      "Event store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	eventsAppended := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Total number of events appended to the log",
		},
	)

	sagaTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_transitions_total",
			Help:      "Total number of saga step transitions persisted",
		},
		[]string{"step"},
	)

	sagaOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_outcomes_total",
			Help:      "Total number of sagas reaching a terminal status",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		commandsTotal,
		commandDuration,
		queriesTotal,
		queryDuration,
		eventsPublished,
		eventsDelivered,
		deliveryDuration,
		deliveryAttempts,
		eventsDeadLettered,
		storeOperations,
		storeDuration,
		eventsAppended,
		sagaTransitions,
		sagaOutcomes,
	)

	return &Collector{
		registry:           registry,
		HTTPRequests:       httpRequests,
		HTTPDuration:       httpDuration,
		CommandsTotal:      commandsTotal,
		CommandDuration:    commandDuration,
		QueriesTotal:       queriesTotal,
		QueryDuration:      queryDuration,
		EventsPublished:    eventsPublished,
		EventsDelivered:    eventsDelivered,
		DeliveryDuration:   deliveryDuration,
		DeliveryAttempts:   deliveryAttempts,
		EventsDeadLettered: eventsDeadLettered,
		StoreOperations:    storeOperations,
		StoreDuration:      storeDuration,
		EventsAppended:     eventsAppended,
		SagaTransitions:    sagaTransitions,
		SagaOutcomes:       sagaOutcomes,
	}
}

// GetRegistry returns the Prometheus registry for this collector.
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// EventPublished implements the bus metrics hook.
func (c *Collector) EventPublished(eventType string) {
	c.EventsPublished.WithLabelValues(eventType).Inc()
}

// EventDelivered implements the bus metrics hook.
func (c *Collector) EventDelivered(eventType, subscriber string, attempts int, elapsed time.Duration) {
	c.EventsDelivered.WithLabelValues(eventType, subscriber).Inc()
	c.DeliveryAttempts.WithLabelValues(eventType, subscriber).Observe(float64(attempts))
	c.DeliveryDuration.WithLabelValues(eventType, subscriber).Observe(elapsed.Seconds())
}

// EventDeadLettered implements the bus metrics hook.
func (c *Collector) EventDeadLettered(eventType, subscriber string) {
	c.EventsDeadLettered.WithLabelValues(eventType, subscriber).Inc()
}

// ObserveCommand records one command execution.
func (c *Collector) ObserveCommand(command string, err error, elapsed time.Duration) {
	c.CommandsTotal.WithLabelValues(command, statusLabel(err)).Inc()
	c.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveQuery records one query execution.
func (c *Collector) ObserveQuery(query string, err error, elapsed time.Duration) {
	c.QueriesTotal.WithLabelValues(query, statusLabel(err)).Inc()
	c.QueryDuration.WithLabelValues(query).Observe(elapsed.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
