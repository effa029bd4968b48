package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by ResultStore.Get when the key has no entry.
var ErrNotFound = errors.New("not found")

// ResultRecord is a stored identification result.
type ResultRecord struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
}

// ResultStore persists unsealed identification results.
// Implementations: SQLite (default), in-memory.
type ResultStore interface {
	// Put stores value under key, replacing any existing entry.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the entry stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (*ResultRecord, error)

	Close() error
}
