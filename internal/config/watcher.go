package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDelay coalesces the burst of filesystem events an editor save
// produces into a single reload.
const debounceDelay = 500 * time.Millisecond

// Watcher hot reloads the configuration when its files change. Reloading
// is only armed in development; elsewhere the watcher is inert and
// GetConfig keeps returning the initial configuration.
type Watcher struct {
	config    *Config
	callbacks []func(*Config)
	mu        sync.RWMutex
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewWatcher creates a watcher seeded with the initial configuration.
func NewWatcher(initial *Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		config:    initial,
		callbacks: make([]func(*Config), 0),
		logger:    logger,
		stopCh:    make(chan struct{}),
	}

	if initial.Environment != Development {
		logger.Info("configuration hot reload disabled",
			zap.String("environment", string(initial.Environment)),
		)
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fsWatcher

	if err := w.watchConfigDir(); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.watchLoop()

	logger.Info("configuration hot reload enabled",
		zap.String("dir", basePath()),
	)
	return w, nil
}

// watchConfigDir registers the configuration directory. Watching the
// directory rather than individual files survives the rename-and-replace
// dance most editors do on save.
func (w *Watcher) watchConfigDir() error {
	dir := basePath()
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			w.logger.Warn("config directory missing, hot reload idle",
				zap.String("dir", dir),
			)
			return nil
		}
		return fmt.Errorf("failed to stat config directory: %w", err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	return nil
}

// watchLoop reacts to file events, debouncing rapid successions into one
// reload.
func (w *Watcher) watchLoop() {
	defer w.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !isConfigFile(event.Name) {
				continue
			}
			w.logger.Debug("configuration file changed",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()),
			)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

// reload loads a fresh configuration and swaps it in if it is valid and
// actually different. An invalid file keeps the previous configuration
// running.
func (w *Watcher) reload() {
	fresh, err := Load()
	if err != nil {
		w.logger.Error("configuration reload rejected", zap.Error(err))
		return
	}

	w.mu.Lock()
	if fingerprint(w.config) == fingerprint(fresh) {
		w.mu.Unlock()
		w.logger.Debug("configuration unchanged after reload")
		return
	}
	w.config = fresh
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded",
		zap.Strings("sources", fresh.LoadedFrom),
		zap.Int("callbacks", len(callbacks)),
	)

	for i, callback := range callbacks {
		go func(idx int, cb func(*Config)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("config change callback panicked",
						zap.Int("callback", idx),
						zap.Any("panic", r),
					)
				}
			}()
			cb(fresh)
		}(i, callback)
	}
}

// OnChange registers a callback invoked with each reloaded configuration.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// GetConfig returns the current configuration.
func (w *Watcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

// fingerprint reduces a Config to a comparable string covering the fields
// a reload is allowed to change at runtime.
func fingerprint(c *Config) string {
	return fmt.Sprintf("%d|%s|%s|%s|%v|%d|%g|%g|%d|%d|%s",
		c.Server.Port,
		c.EventStore.TablePrefix,
		c.EventStore.Endpoint,
		c.Logging.Level,
		c.Saga.StepTimeout,
		c.Saga.MaxRetries,
		c.Saga.LoanFeeRate,
		c.Fees.LateFeePerDay,
		c.Pagination.DefaultLimit,
		c.Pagination.MaxLimit,
		c.Events.BusName,
	)
}

// isConfigFile reports whether a path looks like one of the files the
// loader reads.
func isConfigFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
