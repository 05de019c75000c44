package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"libris-backend/internal/config"
)

// clearConfigEnv blanks every variable the loader reads so tests start
// from the in-code defaults regardless of the host environment.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "CONFIG_DIR", "PORT", "SERVER_HOST",
		"EVENT_STORE_DB", "EVENT_STORE_CONN_STRING", "AWS_REGION",
		"BUS_WORKERS", "BUS_QUEUE_SIZE", "BUS_CATCHUP_INTERVAL", "EVENT_BUS_NAME",
		"SAGA_STEP_TIMEOUT", "SAGA_MAX_RETRIES", "LOAN_FEE_RATE",
		"PAGINATION_DEFAULT_LIMIT", "PAGINATION_MAX_LIMIT",
		"LATE_FEE_PER_DAY", "CACHE_MAX_ITEMS", "CACHE_TTL",
		"LOG_LEVEL", "TRACING_ENDPOINT", "SUPABASE_URL", "SUPABASE_ANON_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG_DIR", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.Development, cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "libris_", cfg.EventStore.TablePrefix)
	assert.Empty(t, cfg.EventStore.Endpoint)
	assert.Equal(t, 4, cfg.Bus.Workers)
	assert.Equal(t, 256, cfg.Bus.QueueSize)
	assert.Equal(t, 5, cfg.Bus.Retry.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Bus.CatchupInterval)
	assert.Equal(t, 30*time.Second, cfg.Saga.StepTimeout)
	assert.Equal(t, 3, cfg.Saga.MaxRetries)
	assert.Equal(t, 0.1, cfg.Saga.LoanFeeRate)
	assert.Equal(t, 10, cfg.Pagination.DefaultLimit)
	assert.Equal(t, 100, cfg.Pagination.MaxLimit)
	assert.Equal(t, 0.2, cfg.Fees.LateFeePerDay)
	assert.Equal(t, "debug", cfg.Logging.Level, "development defaults to debug logging")
	assert.True(t, cfg.IsDevelopment())
	assert.Contains(t, cfg.LoadedFrom, "defaults")
	assert.Contains(t, cfg.LoadedFrom, "environment")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("PORT", "9090")
	t.Setenv("EVENT_STORE_DB", "staging_")
	t.Setenv("EVENT_STORE_CONN_STRING", "http://localhost:8000")
	t.Setenv("BUS_WORKERS", "8")
	t.Setenv("BUS_QUEUE_SIZE", "512")
	t.Setenv("BUS_CATCHUP_INTERVAL", "30s")
	t.Setenv("EVENT_BUS_NAME", "libris-events")
	t.Setenv("SAGA_STEP_TIMEOUT", "45000")
	t.Setenv("SAGA_MAX_RETRIES", "5")
	t.Setenv("LOAN_FEE_RATE", "0.25")
	t.Setenv("PAGINATION_DEFAULT_LIMIT", "25")
	t.Setenv("PAGINATION_MAX_LIMIT", "50")
	t.Setenv("LATE_FEE_PER_DAY", "0.35")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("TRACING_ENDPOINT", "otel-collector:4317")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.Staging, cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "staging_", cfg.EventStore.TablePrefix)
	assert.Equal(t, "http://localhost:8000", cfg.EventStore.Endpoint)
	assert.Equal(t, 8, cfg.Bus.Workers)
	assert.Equal(t, 512, cfg.Bus.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Bus.CatchupInterval)
	assert.Equal(t, "libris-events", cfg.Events.BusName)
	assert.Equal(t, 45*time.Second, cfg.Saga.StepTimeout, "step timeout env var is in milliseconds")
	assert.Equal(t, 5, cfg.Saga.MaxRetries)
	assert.Equal(t, 0.25, cfg.Saga.LoanFeeRate)
	assert.Equal(t, 25, cfg.Pagination.DefaultLimit)
	assert.Equal(t, 50, cfg.Pagination.MaxLimit)
	assert.Equal(t, 0.35, cfg.Fees.LateFeePerDay)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "otel-collector:4317", cfg.Observability.TracingEndpoint)
	assert.Equal(t, "https://project.supabase.co", cfg.Auth.SupabaseURL)
}

func TestLoad_FileLayering(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.yaml", `
server:
  port: 7001
saga:
  stepTimeout: 45s
pagination:
  defaultLimit: 20
`)
	writeConfigFile(t, dir, "development.yaml", `
server:
  port: 7002
`)
	writeConfigFile(t, dir, "local.yaml", `
server:
  port: 7004
`)

	// Development reads every layer; local.yaml wins among the files.
	cfg, err := config.NewLoader(dir, config.Development).Load()
	require.NoError(t, err)
	assert.Equal(t, 7004, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Saga.StepTimeout)
	assert.Equal(t, 20, cfg.Pagination.DefaultLimit)
	assert.Equal(t, 100, cfg.Pagination.MaxLimit, "untouched fields keep their defaults")
	assert.Len(t, cfg.LoadedFrom, 5, "defaults, three files, environment")

	// Staging has no overlay file and never reads local.yaml.
	cfg, err = config.NewLoader(dir, config.Staging).Load()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Environment variables outrank every file.
	t.Setenv("PORT", "7003")
	cfg, err = config.NewLoader(dir, config.Development).Load()
	require.NoError(t, err)
	assert.Equal(t, 7003, cfg.Server.Port)
}

func TestLoad_JSONFallback(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.json", `{"server": {"port": 7005}}`)

	cfg, err := config.NewLoader(dir, config.Development).Load()
	require.NoError(t, err)
	assert.Equal(t, 7005, cfg.Server.Port)

	// YAML takes precedence when both formats exist for a layer.
	writeConfigFile(t, dir, "base.yaml", "server:\n  port: 7006\n")
	cfg, err = config.NewLoader(dir, config.Development).Load()
	require.NoError(t, err)
	assert.Equal(t, 7006, cfg.Server.Port)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.yaml", "server: [broken\n")

	_, err := config.NewLoader(dir, config.Development).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base")
}

func validConfig() *config.Config {
	return &config.Config{
		Environment: config.Development,
		Server: config.Server{
			Port:            8080,
			Host:            "localhost",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		EventStore: config.EventStore{TablePrefix: "libris_"},
		Bus:        config.Bus{Workers: 4, QueueSize: 256, CatchupInterval: 15 * time.Second},
		Saga:       config.Saga{StepTimeout: 30 * time.Second, MaxRetries: 3, LoanFeeRate: 0.1},
		Pagination: config.Pagination{DefaultLimit: 10, MaxLimit: 100},
		Fees:       config.Fees{LateFeePerDay: 0.2},
		Cache:      config.Cache{MaxItems: 1024, TTL: 30 * time.Second},
		Logging:    config.Logging{Level: "info"},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *config.Config) { c.Server.Port = 0 },
			wantErr: "out of range",
		},
		{
			name:    "missing table prefix",
			mutate:  func(c *config.Config) { c.EventStore.TablePrefix = "" },
			wantErr: "table prefix",
		},
		{
			name:    "zero bus workers",
			mutate:  func(c *config.Config) { c.Bus.Workers = 0 },
			wantErr: "bus workers",
		},
		{
			name:    "zero catchup interval",
			mutate:  func(c *config.Config) { c.Bus.CatchupInterval = 0 },
			wantErr: "catchup interval",
		},
		{
			name:    "zero saga step timeout",
			mutate:  func(c *config.Config) { c.Saga.StepTimeout = 0 },
			wantErr: "step timeout",
		},
		{
			name:    "loan fee rate above one",
			mutate:  func(c *config.Config) { c.Saga.LoanFeeRate = 1.5 },
			wantErr: "loan fee rate",
		},
		{
			name:    "max limit below default limit",
			mutate:  func(c *config.Config) { c.Pagination.MaxLimit = 5 },
			wantErr: "below default limit",
		},
		{
			name:    "negative late fee",
			mutate:  func(c *config.Config) { c.Fees.LateFeePerDay = -0.1 },
			wantErr: "cannot be negative",
		},
		{
			name:    "zero cache ttl",
			mutate:  func(c *config.Config) { c.Cache.TTL = 0 },
			wantErr: "cache TTL",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *config.Config) { c.Logging.Level = "verbose" },
			wantErr: "unknown log level",
		},
		{
			name: "production requires supabase",
			mutate: func(c *config.Config) {
				c.Environment = config.Production
				c.Auth = config.Auth{}
			},
			wantErr: "SUPABASE_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionFailsWithoutAuth(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("ENVIRONMENT", "production")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestWatcher_InertOutsideDevelopment(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = config.Production

	w, err := config.NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	w.OnChange(func(*config.Config) { t.Error("callback must not fire when hot reload is off") })
	assert.Same(t, cfg, w.GetConfig())

	w.Stop()
	w.Stop() // idempotent
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)
	writeConfigFile(t, dir, "base.yaml", "server:\n  port: 7001\n")

	initial, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 7001, initial.Server.Port)

	w, err := config.NewWatcher(initial, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan *config.Config, 1)
	w.OnChange(func(c *config.Config) {
		select {
		case reloaded <- c:
		default:
		}
	})

	writeConfigFile(t, dir, "base.yaml", "server:\n  port: 7002\n")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 7002, cfg.Server.Port)
		assert.Equal(t, 7002, w.GetConfig().Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration change was not picked up")
	}
}
