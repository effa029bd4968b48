// Package file provides the integration config store: a flat YAML file of
// settings overlaid by EDGE_CONFIG_ environment variables, reloaded when the
// file changes.
package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
)

// DefaultEnvPrefix prefixes environment overrides: EDGE_CONFIG_GET_RESULT_PATH
// sets GET_RESULT_PATH.
const DefaultEnvPrefix = "EDGE_CONFIG_"

// Store implements ports.ConfigStore and ports.ConfigWatcher.
type Store struct {
	path      string
	envPrefix string
	logger    *slog.Logger

	current atomic.Pointer[koanf.Koanf]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

var (
	_ ports.ConfigStore   = (*Store)(nil)
	_ ports.ConfigWatcher = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithEnvPrefix changes the environment override prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) Option {
	return func(s *Store) {
		s.envPrefix = prefix
	}
}

// New loads the store. path may be empty, in which case only the
// environment is consulted; a missing file is treated as empty.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:      path,
		envPrefix: DefaultEnvPrefix,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	k, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(k)
	return s, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	k := s.current.Load()
	if !k.Exists(key) {
		return "", false
	}
	return k.String(key), true
}

// Keys returns every key currently set.
func (s *Store) Keys() []string {
	return s.current.Load().Keys()
}

// Reload rereads the file and environment. On error the previous values stay.
func (s *Store) Reload() error {
	k, err := s.load()
	if err != nil {
		return err
	}
	s.current.Store(k)
	return nil
}

func (s *Store) load() (*koanf.Koanf, error) {
	// Setting names contain no dots, so "." never splits them.
	k := koanf.New(".")

	if s.path != "" {
		if err := k.Load(file.Provider(s.path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config store %s: %w", s.path, err)
		}
	}

	if s.envPrefix != "" {
		prefix := s.envPrefix
		if err := k.Load(env.Provider(prefix, ".", func(v string) string {
			return strings.TrimPrefix(v, prefix)
		}), nil); err != nil {
			return nil, fmt.Errorf("load config store env: %w", err)
		}
	}

	return k, nil
}

// Watch reloads the store whenever the file is written or replaced and
// then calls onChange. The directory is watched so editors that replace the
// file by rename are picked up.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	if s.path == "" {
		return errors.New("config store has no file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	s.logger.Info("watching config store for changes", slog.String("path", s.path))

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("config store watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if err := s.Reload(); err != nil {
					s.logger.Error("failed to reload config store",
						slog.String("error", err.Error()),
						slog.String("path", s.path))
					continue
				}
				s.logger.Info("config store reloaded", slog.String("path", s.path))
				if onChange != nil {
					onChange()
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("config store watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
