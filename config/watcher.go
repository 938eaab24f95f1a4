package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pershow/cardagent/internal/logger"
	"go.uber.org/zap"
)

// ChangeHandler is called with the previous and reloaded configuration after
// a successful reload. Used to rotate provider credentials without a restart.
type ChangeHandler func(oldCfg, newCfg *Config) error

// Watcher reloads the configuration when the config file changes on disk.
type Watcher struct {
	configPath    string
	watcher       *fsnotify.Watcher
	handlers      []ChangeHandler
	mu            sync.RWMutex
	debounceDelay time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWatcher creates a watcher for configPath. The parent directory is
// watched, not the file itself, because editors replace files by rename.
func NewWatcher(configPath string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	configDir := filepath.Dir(configPath)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		configPath:    configPath,
		watcher:       watcher,
		handlers:      make([]ChangeHandler, 0),
		debounceDelay: 500 * time.Millisecond,
		ctx:           ctx,
		cancel:        cancel,
	}

	logger.Info("Config watcher created",
		zap.String("config_path", configPath),
		zap.String("watch_dir", configDir))

	return w, nil
}

// OnChange registers a change handler.
func (w *Watcher) OnChange(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.watch()
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) watch() {
	logger.Info("Config watcher started")

	var debounceTimer *time.Timer

	for {
		select {
		case <-w.ctx.Done():
			logger.Info("Config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Name != w.configPath {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				logger.Debug("Config file changed",
					zap.String("event", event.Op.String()),
					zap.String("file", event.Name))

				// Debounce: editors emit several events per save.
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounceDelay, func() {
					w.handleConfigChange()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleConfigChange() {
	logger.Info("Reloading configuration", zap.String("path", w.configPath))

	oldCfg := Get()
	if oldCfg == nil {
		logger.Warn("No previous config to compare")
		return
	}

	newCfg, err := Load(w.configPath)
	if err != nil {
		logger.Error("Failed to reload config", zap.Error(err))
		return
	}

	if err := Validate(newCfg); err != nil {
		logger.Error("Invalid config after reload", zap.Error(err))
		return
	}

	w.mu.RLock()
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for i, handler := range handlers {
		if err := handler(oldCfg, newCfg); err != nil {
			logger.Error("Config change handler failed",
				zap.Int("handler_index", i),
				zap.Error(err))
			// Keep running the remaining handlers.
		}
	}

	logger.Info("Configuration reloaded")
}
