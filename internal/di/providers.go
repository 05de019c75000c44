// Package di assembles the service: providers construct each component,
// the container sequences them and owns shutdown, and the router binds the
// HTTP surface.
package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/chi/v5"
	"github.com/google/wire"
	"go.uber.org/zap"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/application/projections"
	"libris-backend/internal/application/queries"
	"libris-backend/internal/application/sagas"
	"libris-backend/internal/config"
	"libris-backend/internal/domain/book"
	"libris-backend/internal/domain/reservation"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/domain/wallet"
	"libris-backend/internal/infrastructure/cache"
	"libris-backend/internal/infrastructure/messaging"
	"libris-backend/internal/infrastructure/observability"
	dynamodbstore "libris-backend/internal/infrastructure/persistence/dynamodb"
	"libris-backend/internal/interfaces/http/handlers"
	"libris-backend/internal/middleware"
	"libris-backend/internal/repository"
)

// Providers are grouped per layer in the order the container initializes
// them. NewContainer calls them directly; the wire sets mirror the manual
// graph so it stays regenerable if an injector is adopted.

// SuperSet is the full provider graph.
var SuperSet = wire.NewSet(
	ConfigProviders,
	InfrastructureProviders,
	ApplicationProviders,
	InterfaceProviders,
)

// ConfigProviders load configuration and the logger derived from it.
var ConfigProviders = wire.NewSet(
	provideConfig,
	provideLogger,
)

// InfrastructureProviders construct observability, persistence, caching and
// the event bus.
var InfrastructureProviders = wire.NewSet(
	provideCollector,
	providePayloadRegistry,
	provideDynamoDBClient,
	provideTables,
	provideEventStore,
	provideBookReadModel,
	provideReservationReadModel,
	provideWalletReadModel,
	provideSagaStore,
	provideDeadLetterStore,
	provideCheckpointStore,
	provideQueryCache,
	provideBus,
	provideCatchup,
)

// ApplicationProviders construct the write side, the read side, the
// projections and the saga.
var ApplicationProviders = wire.NewSet(
	provideBookCommands,
	provideReservationCommands,
	provideWalletCommands,
	provideQueryConfig,
	provideBookQueries,
	provideReservationQueries,
	provideWalletQueries,
	provideProjections,
	provideSaga,
	provideSagaHandlers,
	provideWatchdog,
)

// InterfaceProviders construct the HTTP surface.
var InterfaceProviders = wire.NewSet(
	provideVerifier,
	provideBookHandler,
	provideReservationHandler,
	provideWalletHandler,
	provideHealthChecks,
	provideHealthHandler,
	provideRouter,
)

func provideConfig() (*config.Config, error) {
	return config.Load()
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Environment, cfg.Logging.Level)
}

func provideCollector() *observability.Collector {
	return observability.NewCollector(metricsNamespace)
}

// providePayloadRegistry assembles the event catalog. Every bounded context
// registers its payloads here; an event type missing from the registry dead
// letters on arrival, so this list is the single place to extend.
func providePayloadRegistry() *shared.PayloadRegistry {
	registry := shared.NewPayloadRegistry()
	book.RegisterPayloads(registry)
	reservation.RegisterPayloads(registry)
	wallet.RegisterPayloads(registry)
	return registry
}

func provideDynamoDBClient(ctx context.Context, cfg *config.Config) (*awsdynamodb.Client, error) {
	return dynamodbstore.NewClient(ctx, dynamodbstore.ClientOptions{
		Region:   cfg.EventStore.Region,
		Endpoint: cfg.EventStore.Endpoint,
	})
}

func provideTables(cfg *config.Config) dynamodbstore.TableSet {
	return dynamodbstore.NewTableSet(cfg.EventStore.TablePrefix)
}

func provideEventStore(client *awsdynamodb.Client, tables dynamodbstore.TableSet, registry *shared.PayloadRegistry, collector *observability.Collector, logger *zap.Logger) repository.EventStore {
	store := dynamodbstore.NewEventStore(client, tables.Events, tables.Counters, registry, logger)
	return observability.NewMeasuredEventStore(store, collector)
}

func provideBookReadModel(client *awsdynamodb.Client, tables dynamodbstore.TableSet, logger *zap.Logger) repository.BookReadModel {
	return dynamodbstore.NewBookStore(client, tables.Books, logger)
}

func provideReservationReadModel(client *awsdynamodb.Client, tables dynamodbstore.TableSet, logger *zap.Logger) repository.ReservationReadModel {
	return dynamodbstore.NewReservationStore(client, tables.Reservations, logger)
}

func provideWalletReadModel(client *awsdynamodb.Client, tables dynamodbstore.TableSet, logger *zap.Logger) repository.WalletReadModel {
	return dynamodbstore.NewWalletStore(client, tables.Wallets, logger)
}

func provideSagaStore(client *awsdynamodb.Client, tables dynamodbstore.TableSet, collector *observability.Collector, logger *zap.Logger) repository.SagaStore {
	store := dynamodbstore.NewSagaStore(client, tables.Sagas, logger)
	return observability.NewMeasuredSagaStore(store, collector)
}

func provideDeadLetterStore(client *awsdynamodb.Client, tables dynamodbstore.TableSet, logger *zap.Logger) repository.DeadLetterStore {
	return dynamodbstore.NewDeadLetterStore(client, tables.DeadLetters, logger)
}

// provideCheckpointStore keeps consumer cursors in the counters table,
// beside the global version they index into.
func provideCheckpointStore(client *awsdynamodb.Client, tables dynamodbstore.TableSet) repository.CheckpointStore {
	return dynamodbstore.NewCheckpointStore(client, tables.Counters)
}

func provideQueryCache(cfg *config.Config, logger *zap.Logger) repository.QueryCache {
	return cache.NewQueryCache(cfg.Cache.MaxItems, logger)
}

func provideBus(cfg *config.Config, registry *shared.PayloadRegistry, letters repository.DeadLetterStore, collector *observability.Collector, logger *zap.Logger) *messaging.Bus {
	return messaging.NewBus(messaging.Config{
		Workers:   cfg.Bus.Workers,
		QueueSize: cfg.Bus.QueueSize,
		Retry: repository.RetryConfig{
			MaxAttempts:   cfg.Bus.Retry.MaxAttempts,
			BaseDelay:     cfg.Bus.Retry.BaseDelay,
			MaxDelay:      cfg.Bus.Retry.MaxDelay,
			BackoffFactor: cfg.Bus.Retry.BackoffFactor,
			JitterFactor:  cfg.Bus.Retry.JitterFactor,
		},
	}, registry, letters, collector, logger)
}

// provideCatchup builds the worker's log catch-up: it republishes events
// from the global log past the persisted cursor, covering deliveries the API
// process lost between append and dispatch.
func provideCatchup(events repository.EventStore, bus *messaging.Bus, checkpoints repository.CheckpointStore, cfg *config.Config, logger *zap.Logger) *messaging.CatchUp {
	return messaging.NewCatchUp(events, bus, checkpoints, messaging.CheckpointWorker, cfg.Bus.CatchupInterval, logger)
}

// provideEventBridgeClient dials EventBridge in the event store's region.
// Only called when forwarding is configured, so it is not part of the sets.
func provideEventBridgeClient(ctx context.Context, cfg *config.Config) (*eventbridge.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.EventStore.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.EventStore.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return eventbridge.NewFromConfig(awsCfg), nil
}

// Command handlers retry conflicted appends with the shared backoff policy.
// The configured bus retry governs delivery to subscribers, not appends.

func provideBookCommands(events repository.EventStore, books repository.BookReadModel, bus *messaging.Bus, logger *zap.Logger) *commands.BookCommandHandler {
	return commands.NewBookCommandHandler(events, books, bus, repository.DefaultRetryConfig(), logger)
}

func provideReservationCommands(events repository.EventStore, books repository.BookReadModel, bus *messaging.Bus, logger *zap.Logger) *commands.ReservationCommandHandler {
	return commands.NewReservationCommandHandler(events, books, bus, repository.DefaultRetryConfig(), logger)
}

func provideWalletCommands(events repository.EventStore, wallets repository.WalletReadModel, bus *messaging.Bus, logger *zap.Logger) *commands.WalletCommandHandler {
	return commands.NewWalletCommandHandler(events, wallets, bus, repository.DefaultRetryConfig(), logger)
}

func provideQueryConfig(cfg *config.Config) queries.Config {
	return queries.Config{
		Pagination: repository.PaginationDefaults{
			DefaultLimit: cfg.Pagination.DefaultLimit,
			MaxLimit:     cfg.Pagination.MaxLimit,
		},
		CacheTTL: cfg.Cache.TTL,
	}
}

func provideBookQueries(books repository.BookReadModel, cache repository.QueryCache, cfg queries.Config) *queries.BookQueryService {
	return queries.NewBookQueryService(books, cache, cfg)
}

func provideReservationQueries(reservations repository.ReservationReadModel, cache repository.QueryCache, cfg queries.Config) *queries.ReservationQueryService {
	return queries.NewReservationQueryService(reservations, cache, cfg)
}

func provideWalletQueries(wallets repository.WalletReadModel, cache repository.QueryCache, cfg queries.Config) *queries.WalletQueryService {
	return queries.NewWalletQueryService(wallets, cache, cfg)
}

func provideProjections(books repository.BookReadModel, reservations repository.ReservationReadModel, wallets repository.WalletReadModel, cache repository.QueryCache, logger *zap.Logger) []projections.Handler {
	return []projections.Handler{
		projections.NewBookProjection(books, cache, logger),
		projections.NewReservationProjection(reservations, cache, logger),
		projections.NewWalletProjection(wallets, cache, logger),
	}
}

func provideSaga(store repository.SagaStore, reservations *commands.ReservationCommandHandler, bus *messaging.Bus, cfg *config.Config, logger *zap.Logger) *sagas.ReservationPaymentSaga {
	return sagas.NewReservationPaymentSaga(store, reservations, bus, sagas.Config{
		StepTimeout: cfg.Saga.StepTimeout,
		MaxRetries:  cfg.Saga.MaxRetries,
		LoanFeeRate: cfg.Saga.LoanFeeRate,
	}, logger)
}

// provideSagaHandlers returns every process manager in subscription order:
// the coordinator first, then the context responders it converses with.
func provideSagaHandlers(saga *sagas.ReservationPaymentSaga, books repository.BookReadModel, walletCommands *commands.WalletCommandHandler, reservationCommands *commands.ReservationCommandHandler, bus *messaging.Bus, cfg *config.Config, logger *zap.Logger) []sagas.Handler {
	return []sagas.Handler{
		saga,
		sagas.NewBookValidationHandler(books, bus, logger),
		sagas.NewPaymentHandler(walletCommands, bus, logger),
		sagas.NewLateFeeHandler(walletCommands, reservationCommands, cfg.Fees.LateFeePerDay, logger),
	}
}

// provideWatchdog builds the stuck-step sweeper. The zero interval defers
// to the watchdog's default of half the saga step timeout.
func provideWatchdog(saga *sagas.ReservationPaymentSaga, logger *zap.Logger) *sagas.Watchdog {
	return sagas.NewWatchdog(saga, 0, logger)
}

// provideVerifier builds the Supabase token verifier. Without a configured
// project it returns nil: bearer tokens are then rejected while the gateway
// authorizer path keeps working.
func provideVerifier(cfg *config.Config, logger *zap.Logger) (middleware.TokenVerifier, error) {
	if cfg.Auth.SupabaseURL == "" {
		logger.Warn("supabase auth not configured, bearer tokens will be rejected")
		return nil, nil
	}
	return middleware.NewSupabaseVerifier(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey)
}

func provideBookHandler(cmd *commands.BookCommandHandler, qry *queries.BookQueryService, collector *observability.Collector, logger *zap.Logger) *handlers.BookHandler {
	return handlers.NewBookHandler(cmd, qry, collector, logger)
}

func provideReservationHandler(cmd *commands.ReservationCommandHandler, qry *queries.ReservationQueryService, books *queries.BookQueryService, collector *observability.Collector, logger *zap.Logger) *handlers.ReservationHandler {
	return handlers.NewReservationHandler(cmd, qry, books, collector, logger)
}

func provideWalletHandler(cmd *commands.WalletCommandHandler, qry *queries.WalletQueryService, collector *observability.Collector, logger *zap.Logger) *handlers.WalletHandler {
	return handlers.NewWalletHandler(cmd, qry, collector, logger)
}

// provideHealthChecks wires the dependency probes reported by GET /health.
func provideHealthChecks(client *awsdynamodb.Client, tables dynamodbstore.TableSet) map[string]handlers.CheckFunc {
	return map[string]handlers.CheckFunc{
		"dynamodb": func(ctx context.Context) error {
			_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{
				TableName: aws.String(tables.Events),
			})
			return err
		},
	}
}

func provideHealthHandler(checks map[string]handlers.CheckFunc, logger *zap.Logger) *handlers.HealthHandler {
	return handlers.NewHealthHandler(Version, checks, logger)
}

func provideRouter(
	books *handlers.BookHandler,
	reservations *handlers.ReservationHandler,
	wallets *handlers.WalletHandler,
	health *handlers.HealthHandler,
	verifier middleware.TokenVerifier,
	collector *observability.Collector,
	logger *zap.Logger,
	cfg *config.Config,
) *chi.Mux {
	return SetupRouter(RouterDeps{
		Books:        books,
		Reservations: reservations,
		Wallets:      wallets,
		Health:       health,
		Verifier:     verifier,
		Collector:    collector,
		Logger:       logger,
		Config:       cfg,
	})
}
