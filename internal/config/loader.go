package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader assembles a Config from layered sources. File formats are
// pluggable through FileLoader so YAML and JSON files are handled the
// same way.
type Loader struct {
	// basePath is the directory holding configuration files.
	basePath string

	// environment selects the environment-specific overlay file.
	environment Environment

	// sources tracks where configuration was loaded from.
	sources []string

	// fileLoaders maps file extensions to their format loaders.
	fileLoaders map[string]FileLoader
}

// FileLoader decodes one configuration file format.
type FileLoader interface {
	Load(reader io.Reader, target interface{}) error
	Extension() string
}

// fileExtensions is the order in which formats are tried for each layer.
var fileExtensions = []string{"yaml", "json"}

// NewLoader creates a loader rooted at basePath for the given environment.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}

	loader := &Loader{
		basePath:    basePath,
		environment: env,
		sources:     make([]string, 0),
		fileLoaders: make(map[string]FileLoader),
	}

	loader.RegisterLoader(&YAMLLoader{})
	loader.RegisterLoader(&JSONLoader{})

	return loader
}

// RegisterLoader registers a loader for its file extension.
func (l *Loader) RegisterLoader(loader FileLoader) {
	l.fileLoaders[loader.Extension()] = loader
}

// Load assembles the configuration. Loading order, lowest to highest
// priority:
//  1. Default values (in code)
//  2. Base configuration file (base.yaml)
//  3. Environment-specific file (e.g. production.yaml)
//  4. Local overrides file (local.yaml, development only)
//  5. Environment variables
func (l *Loader) Load() (*Config, error) {
	cfg := l.defaultConfig()
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !os.IsNotExist(err) {
			// Local overrides are a convenience, not a requirement.
			fmt.Fprintf(os.Stderr, "warning: failed to load local config: %v\n", err)
		}
	}

	l.loadEnvironmentVariables(cfg)
	l.sources = append(l.sources, "environment")

	cfg.LoadedFrom = l.sources
	cfg.applyEnvironmentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays one named layer, trying each registered format.
func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, ext := range fileExtensions {
		loader, ok := l.fileLoaders[ext]
		if !ok {
			continue
		}
		path := filepath.Join(l.basePath, fmt.Sprintf("%s.%s", name, ext))

		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		loadErr := loader.Load(file, cfg)
		file.Close()
		if loadErr != nil {
			return fmt.Errorf("failed to parse %s: %w", path, loadErr)
		}

		l.sources = append(l.sources, path)
		return nil
	}

	return os.ErrNotExist
}

// loadEnvironmentVariables overlays environment variables, the highest
// priority source. Unparseable values are ignored in favor of the layer
// below.
func (l *Loader) loadEnvironmentVariables(cfg *Config) {
	// Server
	if val := os.Getenv("PORT"); val != "" {
		if port := parseInt(val); port > 0 {
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}

	// Event store
	if val := os.Getenv("EVENT_STORE_DB"); val != "" {
		cfg.EventStore.TablePrefix = val
	}
	if val := os.Getenv("EVENT_STORE_CONN_STRING"); val != "" {
		cfg.EventStore.Endpoint = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.EventStore.Region = val
	}

	// Bus
	if val := os.Getenv("BUS_WORKERS"); val != "" {
		if n := parseInt(val); n > 0 {
			cfg.Bus.Workers = n
		}
	}
	if val := os.Getenv("BUS_QUEUE_SIZE"); val != "" {
		if n := parseInt(val); n > 0 {
			cfg.Bus.QueueSize = n
		}
	}
	if val := os.Getenv("BUS_CATCHUP_INTERVAL"); val != "" {
		if interval, err := time.ParseDuration(val); err == nil && interval > 0 {
			cfg.Bus.CatchupInterval = interval
		}
	}
	if val := os.Getenv("EVENT_BUS_NAME"); val != "" {
		cfg.Events.BusName = val
	}

	// Saga. The step timeout is given in milliseconds.
	if val := os.Getenv("SAGA_STEP_TIMEOUT"); val != "" {
		if ms := parseInt(val); ms > 0 {
			cfg.Saga.StepTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("SAGA_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.Saga.MaxRetries = n
		}
	}
	if val := os.Getenv("LOAN_FEE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Saga.LoanFeeRate = rate
		}
	}

	// Pagination
	if val := os.Getenv("PAGINATION_DEFAULT_LIMIT"); val != "" {
		if n := parseInt(val); n > 0 {
			cfg.Pagination.DefaultLimit = n
		}
	}
	if val := os.Getenv("PAGINATION_MAX_LIMIT"); val != "" {
		if n := parseInt(val); n > 0 {
			cfg.Pagination.MaxLimit = n
		}
	}

	// Fees
	if val := os.Getenv("LATE_FEE_PER_DAY"); val != "" {
		if fee, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Fees.LateFeePerDay = fee
		}
	}

	// Cache
	if val := os.Getenv("CACHE_MAX_ITEMS"); val != "" {
		if n := parseInt(val); n > 0 {
			cfg.Cache.MaxItems = n
		}
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil && ttl > 0 {
			cfg.Cache.TTL = ttl
		}
	}

	// Logging and observability
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("TRACING_ENDPOINT"); val != "" {
		cfg.Observability.TracingEndpoint = val
	}

	// Auth
	if val := os.Getenv("SUPABASE_URL"); val != "" {
		cfg.Auth.SupabaseURL = val
	}
	if val := os.Getenv("SUPABASE_ANON_KEY"); val != "" {
		cfg.Auth.SupabaseAnonKey = val
	}
}

// defaultConfig returns the in-code defaults. The service can run against
// a local DynamoDB with nothing but these.
func (l *Loader) defaultConfig() *Config {
	return &Config{
		Environment: l.environment,
		Server: Server{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		EventStore: EventStore{
			TablePrefix: "libris_",
		},
		Bus: Bus{
			Workers:   4,
			QueueSize: 256,
			Retry: Retry{
				MaxAttempts:   5,
				BaseDelay:     25 * time.Millisecond,
				MaxDelay:      time.Second,
				BackoffFactor: 2.0,
				JitterFactor:  0.25,
			},
			CatchupInterval: 15 * time.Second,
		},
		Saga: Saga{
			StepTimeout: 30 * time.Second,
			MaxRetries:  3,
			LoanFeeRate: 0.1,
		},
		Pagination: Pagination{
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Fees: Fees{
			LateFeePerDay: 0.2,
		},
		Cache: Cache{
			MaxItems: 1024,
			TTL:      30 * time.Second,
		},
		Observability: Observability{
			MetricsPath: "/metrics",
		},
	}
}

// YAMLLoader loads configuration from YAML files.
type YAMLLoader struct{}

func (y *YAMLLoader) Load(reader io.Reader, target interface{}) error {
	decoder := yaml.NewDecoder(reader)
	return decoder.Decode(target)
}

func (y *YAMLLoader) Extension() string {
	return "yaml"
}

// JSONLoader loads configuration from JSON files.
type JSONLoader struct{}

func (j *JSONLoader) Load(reader io.Reader, target interface{}) error {
	decoder := json.NewDecoder(reader)
	return decoder.Decode(target)
}

func (j *JSONLoader) Extension() string {
	return "json"
}

func parseInt(s string) int {
	val, _ := strconv.Atoi(s)
	return val
}

// basePath resolves the configuration directory, CONFIG_DIR or "config".
func basePath() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}

// Load loads the configuration from the standard hierarchy.
func Load() (*Config, error) {
	return NewLoader(basePath(), getEnvironment()).Load()
}

// MustLoad loads the configuration and panics on error. For use in main()
// only.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
