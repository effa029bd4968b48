// Package memory is an in-process ResultStore, suitable for development and
// tests. Contents are lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]ports.ResultRecord
	now     func() time.Time
}

var _ ports.ResultStore = (*Store)(nil)

func New() *Store {
	return &Store{
		records: make(map[string]ports.ResultRecord),
		now:     time.Now,
	}
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("put result: empty key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = ports.ResultRecord{
		Key:       key,
		Value:     append([]byte(nil), value...),
		CreatedAt: s.now(),
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*ports.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("result %s: %w", key, ports.ErrNotFound)
	}
	rec.Value = append([]byte(nil), rec.Value...)
	return &rec, nil
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close() error {
	return nil
}
