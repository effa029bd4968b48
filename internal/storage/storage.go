// Package storage opens the result store selected by configuration.
package storage

import (
	"fmt"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/config"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/storage/memory"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/storage/sqlite"
)

// Supported storage types.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
)

// New opens the configured result store.
func New(cfg config.StorageConfig) (ports.ResultStore, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return memory.New(), nil
	case TypeSQLite:
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
