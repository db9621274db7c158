package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload
// support. A reload is triggered by changes to the config file or to the
// manifest it points at.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string  // config file; empty for a static holder
	static   *Config // config of a static holder
	manifest string  // manifest path override
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithManifestPath replaces the manifest path of every loaded config.
// WatchFile follows the replacement.
func WithManifestPath(path string) HolderOption {
	return func(h *Holder) {
		h.manifest = path
	}
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger, opts ...HolderOption) (*Holder, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := newHolder(logger, opts)
	h.path = absPath

	cfg, err := h.load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	h.config = cfg
	return h, nil
}

// NewStaticHolder holds cfg without a backing config file. Reload hands
// listeners the same settings again, so only the manifest changes, and
// WatchFile watches only the manifest.
func NewStaticHolder(cfg *Config, logger zerolog.Logger, opts ...HolderOption) *Holder {
	h := newHolder(logger, opts)
	c := *cfg
	h.static = &c
	h.config, _ = h.load()
	return h
}

func newHolder(logger zerolog.Logger, opts []HolderOption) *Holder {
	h := &Holder{
		logger: logger,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// load reads the config file, or copies the static config, and applies
// the manifest override.
func (h *Holder) load() (*Config, error) {
	var cfg *Config
	if h.path == "" {
		c := *h.static
		cfg = &c
	} else {
		loaded, err := Load(h.path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if h.manifest != "" {
		cfg.Manifest.Path = h.manifest
	}
	return cfg, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reloads the configuration from disk and notifies listeners.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Str("manifest", h.manifestPath()).Msg("reloading configuration")

	newCfg, err := h.load()
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)

	for _, fn := range listeners {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called after every successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the config file and the manifest for changes.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch directories (more reliable for editors that do atomic saves)
	dirs := make(map[string]bool)
	if h.path != "" {
		dirs[filepath.Dir(h.path)] = true
	}
	if manifest := h.manifestPath(); manifest != "" {
		dirs[filepath.Dir(manifest)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch directory %s: %w", dir, err)
		}
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Str("manifest", h.manifestPath()).Msg("watching files for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) manifestPath() string {
	p := h.Get().Manifest.Path
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func (h *Holder) watches(name string) bool {
	return (h.path != "" && name == h.path) || name == h.manifestPath()
}

func (h *Holder) watchLoop() {
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			name, err := filepath.Abs(event.Name)
			if err != nil || !h.watches(name) {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("watched file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}

	if old.Manifest.Path != new.Manifest.Path {
		h.logger.Warn().
			Str("old", old.Manifest.Path).
			Str("new", new.Manifest.Path).
			Msg("manifest path changed; restart to watch the new location")
	}

	if old.Audit != new.Audit || old.Server != new.Server {
		h.logger.Warn().Msg("server and audit settings require a restart")
	}
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"manifest.path",
		"logging.level",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"audit.driver",
		"audit.dsn",
		"metrics.enabled",
		"metrics.path",
	}
}
