package watcher

import (
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/langrun/internal/config"
)

// ReloadFunc receives a freshly loaded configuration, or the error that
// prevented loading it. A failed reload never replaces the current config.
type ReloadFunc func(cfg config.Config, err error)

// Reloader reloads one configuration file whenever it changes.
type Reloader struct {
	path    string
	watcher *Watcher
	logger  zerolog.Logger

	// prepare adjusts a loaded config before validation.
	prepare func(*config.Config)

	mu       sync.RWMutex
	current  config.Config
	handlers []ReloadFunc
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithPrepare sets a hook applied to every loaded config after environment
// overrides and before validation.
func WithPrepare(fn func(*config.Config)) ReloaderOption {
	return func(r *Reloader) {
		r.prepare = fn
	}
}

// WithReloadLogger sets the reloader logger.
func WithReloadLogger(logger zerolog.Logger) ReloaderOption {
	return func(r *Reloader) {
		r.logger = logger
	}
}

// NewReloader watches path using w. initial is the config currently in use.
func NewReloader(w *Watcher, path string, initial config.Config, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		path:    path,
		watcher: w,
		logger:  zerolog.Nop(),
		current: initial,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := w.Watch(path); err != nil {
		return nil, err
	}
	w.OnChange(r.onEvent)
	return r, nil
}

// OnReload registers a reload handler.
func (r *Reloader) OnReload(fn ReloadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Current returns the last successfully loaded config.
func (r *Reloader) Current() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Reloader) onEvent(ev Event) {
	if ev.Op == OpRemove || ev.Op == OpRename {
		r.logger.Warn().Str("path", ev.Path).Stringer("op", ev.Op).Msg("config file went away, keeping current config")
		return
	}
	r.Reload()
}

// Reload loads the file now and notifies handlers.
func (r *Reloader) Reload() {
	cfg, err := config.Load(r.path)
	if err == nil {
		err = config.ApplyEnv(&cfg, os.LookupEnv)
	}
	if err == nil {
		if r.prepare != nil {
			r.prepare(&cfg)
		}
		err = cfg.Validate()
	}

	r.mu.Lock()
	if err == nil {
		r.current = cfg
	}
	handlers := make([]ReloadFunc, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	if err != nil {
		r.logger.Error().Err(err).Str("path", r.path).Msg("config reload failed")
	} else {
		r.logger.Info().Str("path", r.path).Msg("config reloaded")
	}

	for _, h := range handlers {
		h(cfg, err)
	}
}
