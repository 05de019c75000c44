//go:build !wireinject
// +build !wireinject

package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/application/projections"
	"libris-backend/internal/application/queries"
	"libris-backend/internal/application/sagas"
	"libris-backend/internal/config"
	"libris-backend/internal/domain/shared"
	"libris-backend/internal/infrastructure/messaging"
	"libris-backend/internal/infrastructure/observability"
	dynamodbstore "libris-backend/internal/infrastructure/persistence/dynamodb"
	"libris-backend/internal/interfaces/http/handlers"
	"libris-backend/internal/middleware"
	"libris-backend/internal/repository"
)

const (
	serviceName      = "libris-backend"
	metricsNamespace = "libris"
)

// Version is stamped at build time:
//
//	go build -ldflags "-X libris-backend/internal/di.Version=v1.2.3"
var Version = "dev"

type shutdownStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Container holds every long-lived component of the service. It is built
// once at startup by NewContainer and torn down by Shutdown; nothing in it
// is created lazily.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Collector *observability.Collector
	Tracing   *observability.TracerProvider

	Registry *shared.PayloadRegistry
	DynamoDB *awsdynamodb.Client
	Tables   dynamodbstore.TableSet

	EventStore   repository.EventStore
	Books        repository.BookReadModel
	Reservations repository.ReservationReadModel
	Wallets      repository.WalletReadModel
	SagaStore    repository.SagaStore
	DeadLetters  repository.DeadLetterStore
	Checkpoints  repository.CheckpointStore
	Cache        repository.QueryCache

	Bus     *messaging.Bus
	Catchup *messaging.CatchUp

	BookCommands        *commands.BookCommandHandler
	ReservationCommands *commands.ReservationCommandHandler
	WalletCommands      *commands.WalletCommandHandler

	BookQueries        *queries.BookQueryService
	ReservationQueries *queries.ReservationQueryService
	WalletQueries      *queries.WalletQueryService

	Saga     *sagas.ReservationPaymentSaga
	Watchdog *sagas.Watchdog

	Verifier      middleware.TokenVerifier
	BookHandler   *handlers.BookHandler
	ResHandler    *handlers.ReservationHandler
	WalletHandler *handlers.WalletHandler
	HealthHandler *handlers.HealthHandler
	Router        *chi.Mux

	shutdownSteps []shutdownStep
}

// NewContainer loads configuration and wires the full service. A failed
// initialization releases whatever was already started before returning.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := provideConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := provideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	c := &Container{Config: cfg, Logger: logger}
	if err := c.initialize(ctx); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := c.Shutdown(cleanupCtx); cerr != nil {
			logger.Error("cleanup after failed init", zap.Error(cerr))
		}
		return nil, err
	}

	logger.Info("container initialized",
		zap.String("environment", string(cfg.Environment)),
		zap.String("version", Version),
		zap.Strings("configSources", cfg.LoadedFrom),
	)
	return c, nil
}

// initialize wires components in dependency order. Shutdown steps are
// registered as their owners come up, so a partial failure unwinds cleanly.
func (c *Container) initialize(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger

	// 1. Observability.
	c.addShutdown("logger", func(context.Context) error {
		_ = logger.Sync()
		return nil
	})
	c.Collector = provideCollector()
	if cfg.Observability.TracingEndpoint != "" {
		tracing, err := observability.InitTracing(serviceName, cfg.Environment, cfg.Observability.TracingEndpoint)
		if err != nil {
			logger.Warn("tracing unavailable, continuing without span export", zap.Error(err))
		} else {
			c.Tracing = tracing
			c.addShutdown("tracing", tracing.Shutdown)
		}
	}

	// 2. Event catalog.
	c.Registry = providePayloadRegistry()

	// 3. DynamoDB.
	client, err := provideDynamoDBClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("dynamodb client: %w", err)
	}
	c.DynamoDB = client
	c.Tables = provideTables(cfg)

	// Tables are only created against a local endpoint; deployed
	// environments provision them ahead of the service.
	if cfg.EventStore.Endpoint != "" {
		if err := dynamodbstore.EnsureTables(ctx, client, c.Tables, logger); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}

	// 4. Stores.
	c.EventStore = provideEventStore(client, c.Tables, c.Registry, c.Collector, logger)
	c.Books = provideBookReadModel(client, c.Tables, logger)
	c.Reservations = provideReservationReadModel(client, c.Tables, logger)
	c.Wallets = provideWalletReadModel(client, c.Tables, logger)
	c.SagaStore = provideSagaStore(client, c.Tables, c.Collector, logger)
	c.DeadLetters = provideDeadLetterStore(client, c.Tables, logger)
	c.Checkpoints = provideCheckpointStore(client, c.Tables)
	c.Cache = provideQueryCache(cfg, logger)

	// 5. Event bus.
	c.Bus = provideBus(cfg, c.Registry, c.DeadLetters, c.Collector, logger)
	c.addShutdown("event bus", c.Bus.Close)

	// 6. Write side, read side.
	c.BookCommands = provideBookCommands(c.EventStore, c.Books, c.Bus, logger)
	c.ReservationCommands = provideReservationCommands(c.EventStore, c.Books, c.Bus, logger)
	c.WalletCommands = provideWalletCommands(c.EventStore, c.Wallets, c.Bus, logger)

	queryCfg := provideQueryConfig(cfg)
	c.BookQueries = provideBookQueries(c.Books, c.Cache, queryCfg)
	c.ReservationQueries = provideReservationQueries(c.Reservations, c.Cache, queryCfg)
	c.WalletQueries = provideWalletQueries(c.Wallets, c.Cache, queryCfg)

	// 7. Subscribers: projections first, then the saga and its responders.
	projections.Register(c.Bus, provideProjections(c.Books, c.Reservations, c.Wallets, c.Cache, logger)...)

	c.Saga = provideSaga(c.SagaStore, c.ReservationCommands, c.Bus, cfg, logger)
	sagas.Register(c.Bus, provideSagaHandlers(c.Saga, c.Books, c.WalletCommands, c.ReservationCommands, c.Bus, cfg, logger)...)
	c.Watchdog = provideWatchdog(c.Saga, logger)
	c.Catchup = provideCatchup(c.EventStore, c.Bus, c.Checkpoints, cfg, logger)

	// 8. Optional EventBridge fan-out of the whole catalog.
	if cfg.Events.BusName != "" {
		ebClient, err := provideEventBridgeClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("eventbridge client: %w", err)
		}
		forwarder := messaging.NewEventBridgePublisher(ebClient, cfg.Events.BusName, logger)
		for _, eventType := range c.Registry.Types() {
			c.Bus.Subscribe(eventType, forwarder)
		}
		logger.Info("eventbridge forwarding enabled", zap.String("eventBus", cfg.Events.BusName))
	}

	// 9. HTTP surface.
	c.Verifier, err = provideVerifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("token verifier: %w", err)
	}
	c.BookHandler = provideBookHandler(c.BookCommands, c.BookQueries, c.Collector, logger)
	c.ResHandler = provideReservationHandler(c.ReservationCommands, c.ReservationQueries, c.BookQueries, c.Collector, logger)
	c.WalletHandler = provideWalletHandler(c.WalletCommands, c.WalletQueries, c.Collector, logger)
	c.HealthHandler = provideHealthHandler(provideHealthChecks(client, c.Tables), logger)
	c.Router = provideRouter(c.BookHandler, c.ResHandler, c.WalletHandler, c.HealthHandler, c.Verifier, c.Collector, logger, cfg)

	return c.Validate()
}

func (c *Container) addShutdown(name string, fn func(ctx context.Context) error) {
	c.shutdownSteps = append(c.shutdownSteps, shutdownStep{name: name, fn: fn})
}

// Shutdown releases everything the container started, in reverse order of
// initialization. It is safe to call on a partially initialized container
// and to call more than once.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c.shutdownSteps) - 1; i >= 0; i-- {
		step := c.shutdownSteps[i]
		if err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	c.shutdownSteps = nil
	return errors.Join(errs...)
}

// Validate confirms every component a request can reach is wired.
func (c *Container) Validate() error {
	components := []struct {
		name string
		ok   bool
	}{
		{"config", c.Config != nil},
		{"logger", c.Logger != nil},
		{"event store", c.EventStore != nil},
		{"book read model", c.Books != nil},
		{"reservation read model", c.Reservations != nil},
		{"wallet read model", c.Wallets != nil},
		{"saga store", c.SagaStore != nil},
		{"event bus", c.Bus != nil},
		{"saga", c.Saga != nil},
		{"watchdog", c.Watchdog != nil},
		{"log catch-up", c.Catchup != nil},
		{"router", c.Router != nil},
	}
	for _, component := range components {
		if !component.ok {
			return fmt.Errorf("container missing %s", component.name)
		}
	}
	return nil
}
