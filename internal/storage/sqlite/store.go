// Package sqlite is a ResultStore backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
)

type Store struct {
	db *sqlx.DB
}

var _ ports.ResultStore = (*Store)(nil)

type resultRow struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	CreatedAt time.Time `db:"created_at"`
}

// New opens or creates the database at dbPath. ":memory:" is accepted.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS results (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("put result: empty key")
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO results (key, value, created_at)
		VALUES (:key, :value, :created_at)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		resultRow{Key: key, Value: value, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("put result %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*ports.ResultRecord, error) {
	var row resultRow
	err := s.db.GetContext(ctx, &row, `SELECT key, value, created_at FROM results WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", key, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", key, err)
	}
	return &ports.ResultRecord{Key: row.Key, Value: row.Value, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
