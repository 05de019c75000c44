// Package config loads service configuration from three layered sources:
// defaults in code, optional YAML files, and environment variables, each
// layer overriding the one below it. The loaded Config is validated before
// anything gets to use it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment is the deployment environment the service runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// getEnvironment resolves the deployment environment from ENVIRONMENT.
// Anything unrecognized falls back to development.
func getEnvironment() Environment {
	switch strings.ToLower(os.Getenv("ENVIRONMENT")) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// Config is the root configuration for the service.
type Config struct {
	Environment Environment `yaml:"environment"`

	Server        Server        `yaml:"server"`
	EventStore    EventStore    `yaml:"eventStore"`
	Bus           Bus           `yaml:"bus"`
	Events        Events        `yaml:"events"`
	Saga          Saga          `yaml:"saga"`
	Pagination    Pagination    `yaml:"pagination"`
	Fees          Fees          `yaml:"fees"`
	Cache         Cache         `yaml:"cache"`
	Logging       Logging       `yaml:"logging"`
	Observability Observability `yaml:"observability"`
	Auth          Auth          `yaml:"auth"`

	// LoadedFrom records the sources that contributed to this Config,
	// in load order. Diagnostic only.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// EventStore selects the DynamoDB deployment holding the event log, the
// projections and the saga state. Endpoint is only set when targeting a
// local DynamoDB; empty means the regional AWS endpoint.
type EventStore struct {
	TablePrefix string `yaml:"tablePrefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
}

// Bus sizes the in-process event bus.
type Bus struct {
	Workers   int   `yaml:"workers"`
	QueueSize int   `yaml:"queueSize"`
	Retry     Retry `yaml:"retry"`
	// CatchupInterval is how often the worker re-reads the global log to
	// republish events whose in-process delivery was lost.
	CatchupInterval time.Duration `yaml:"catchupInterval"`
}

// Retry is the delivery retry policy applied per subscriber.
type Retry struct {
	MaxAttempts   int           `yaml:"maxAttempts"`
	BaseDelay     time.Duration `yaml:"baseDelay"`
	MaxDelay      time.Duration `yaml:"maxDelay"`
	BackoffFactor float64       `yaml:"backoffFactor"`
	JitterFactor  float64       `yaml:"jitterFactor"`
}

// Events configures the EventBridge fan-out of committed domain events.
// An empty bus name disables forwarding.
type Events struct {
	BusName string `yaml:"busName"`
}

// Saga tunes the reservation payment saga and its watchdog.
type Saga struct {
	// StepTimeout is how long a waiting step may go without progress
	// before the watchdog reissues its request.
	StepTimeout time.Duration `yaml:"stepTimeout"`
	// MaxRetries caps reissued requests per step.
	MaxRetries int `yaml:"maxRetries"`
	// LoanFeeRate is the fraction of the retail price charged when a
	// reservation activates.
	LoanFeeRate float64 `yaml:"loanFeeRate"`
}

// Pagination bounds list queries.
type Pagination struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxLimit     int `yaml:"maxLimit"`
}

// Fees holds the lending fee schedule.
type Fees struct {
	// LateFeePerDay accrues for every day a reservation is overdue,
	// capped at the book's retail price.
	LateFeePerDay float64 `yaml:"lateFeePerDay"`
}

// Cache sizes the in-memory query cache.
type Cache struct {
	MaxItems int           `yaml:"maxItems"`
	TTL      time.Duration `yaml:"ttl"`
}

// Logging controls the zap logger.
type Logging struct {
	// Level is one of debug, info, warn, error. Empty picks a default
	// for the environment.
	Level string `yaml:"level"`
}

// Observability configures tracing and metrics exposure.
type Observability struct {
	// TracingEndpoint is the OTLP gRPC collector address. Empty disables
	// trace export.
	TracingEndpoint string `yaml:"tracingEndpoint"`
	MetricsPath     string `yaml:"metricsPath"`
}

// Auth holds the Supabase project used to resolve bearer tokens.
type Auth struct {
	SupabaseURL     string `yaml:"supabaseUrl"`
	SupabaseAnonKey string `yaml:"supabaseAnonKey"`
}

// IsDevelopment reports whether the service runs in development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// applyEnvironmentDefaults fills settings that default differently per
// environment. It only touches fields no source has set.
func (c *Config) applyEnvironmentDefaults() {
	if c.Logging.Level == "" {
		if c.Environment == Development {
			c.Logging.Level = "debug"
		} else {
			c.Logging.Level = "info"
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}
	if c.EventStore.TablePrefix == "" {
		return fmt.Errorf("event store table prefix is required")
	}
	if c.Bus.Workers < 1 {
		return fmt.Errorf("bus workers must be at least 1")
	}
	if c.Bus.QueueSize < 1 {
		return fmt.Errorf("bus queue size must be at least 1")
	}
	if c.Bus.CatchupInterval <= 0 {
		return fmt.Errorf("bus catchup interval must be positive")
	}
	if c.Saga.StepTimeout <= 0 {
		return fmt.Errorf("saga step timeout must be positive")
	}
	if c.Saga.MaxRetries < 0 {
		return fmt.Errorf("saga max retries cannot be negative")
	}
	if c.Saga.LoanFeeRate < 0 || c.Saga.LoanFeeRate > 1 {
		return fmt.Errorf("loan fee rate %g out of range [0, 1]", c.Saga.LoanFeeRate)
	}
	if c.Pagination.DefaultLimit < 1 {
		return fmt.Errorf("pagination default limit must be at least 1")
	}
	if c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("pagination max limit %d below default limit %d",
			c.Pagination.MaxLimit, c.Pagination.DefaultLimit)
	}
	if c.Fees.LateFeePerDay < 0 {
		return fmt.Errorf("late fee per day cannot be negative")
	}
	if c.Cache.MaxItems < 1 {
		return fmt.Errorf("cache max items must be at least 1")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	if c.Environment == Production {
		if c.Auth.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required in production")
		}
		if c.Auth.SupabaseAnonKey == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY is required in production")
		}
	}

	return nil
}
