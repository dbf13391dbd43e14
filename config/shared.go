// ABOUTME: Thread-safe shared options for live tuning between run and UI
// ABOUTME: Copy-on-read wrapper plus an fsnotify watcher for config files

package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Shared wraps Options with a mutex so the optimization loop and the
// monitor can exchange tunable parameters mid-run.
type Shared struct {
	mu   sync.RWMutex
	opts Options
}

// NewShared wraps an options value.
func NewShared(opts Options) *Shared {
	return &Shared{opts: opts}
}

// Get returns a copy of the current options (thread-safe read).
func (s *Shared) Get() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.opts
}

// Update replaces the options (thread-safe write).
func (s *Shared) Update(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

// Watch reloads the config file into shared whenever it changes on disk.
// Readers that call Get after a reload see the new values; the executor's
// wait-factor policy and the coefficients already given to swarm particles
// are fixed when they are built. Invalid edits are logged and skipped.
// The returned stop function ends the watch.
func Watch(path string, shared *Shared, logger *zap.Logger) (stop func(), err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()

		return nil, err
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				opts, err := Load(path)
				if err != nil {
					logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))

					continue
				}

				if err := opts.Validate(); err != nil {
					logger.Warn("ignoring invalid config edit", zap.String("path", path), zap.Error(err))

					continue
				}

				shared.Update(opts)
				logger.Info("config reloaded", zap.String("path", path))

			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}

				logger.Warn("config watcher error", zap.Error(werr))

			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
