// Package cache implements the local persistent key-value store backing the
// cache-augmented task store. Entries carry per-record sync metadata so
// offline writes survive a restart.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/msomdec/tasktide/internal/cache/migrations"
	"github.com/msomdec/tasktide/internal/domain"
)

// DB wraps the SQLite handle for the local cache database.
type DB struct {
	SqlDB *sql.DB
}

// New opens the cache database at the given path and configures it for use.
// It enables WAL mode and foreign keys.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite handles one writer at a time; keep the pool at a single conn.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	return &DB{SqlDB: db}, nil
}

// Migrate applies pending schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return migrations.Run(ctx, d.SqlDB)
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.SqlDB.Close()
}

// Store implements domain.CacheStorage on top of the cache database.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an opened cache database.
func NewStore(db *DB) *Store {
	return &Store{db: db.SqlDB}
}

// Get returns the entry for key and touches its last-accessed timestamp.
func (s *Store) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, needs_sync, last_accessed_at, updated_at
		 FROM cache_entries WHERE key = ?`, key,
	).Scan(&entry.Value, &entry.NeedsSync, &entry.LastAccessedAt, &entry.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	// Best-effort access tracking; a failed touch never fails the read.
	_, _ = s.db.ExecContext(ctx,
		"UPDATE cache_entries SET last_accessed_at = ? WHERE key = ?",
		time.Now().UTC(), key)

	return entry, nil
}

// Set inserts or replaces the entry for key.
func (s *Store) Set(ctx context.Context, key string, value []byte, needsSync bool) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, needs_sync, last_accessed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		 value = excluded.value, needs_sync = excluded.needs_sync,
		 last_accessed_at = excluded.last_accessed_at, updated_at = excluded.updated_at`,
		key, value, needsSync, now, now,
	)
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// List returns all entries whose key starts with prefix, ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]domain.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, needs_sync, last_accessed_at, updated_at
		 FROM cache_entries WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.NeedsSync, &e.LastAccessedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes the entry for key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove cache entry: %w", err)
	}
	return nil
}
