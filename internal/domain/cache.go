package domain

import (
	"context"
	"time"
)

// CacheEntry is one record in the local persistent cache. Value is the
// JSON-encoded cached object; NeedsSync marks entries with local changes
// that have not reached the backend yet.
type CacheEntry struct {
	Key            string
	Value          []byte
	NeedsSync      bool
	LastAccessedAt time.Time
	UpdatedAt      time.Time
}

// CacheStorage is a local persistent key-value store with per-entry sync
// metadata. It is shared by all stores in the process; the design assumes
// a single process and does not coordinate concurrent writers across
// processes.
type CacheStorage interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, value []byte, needsSync bool) error
	List(ctx context.Context, prefix string) ([]CacheEntry, error)
	Remove(ctx context.Context, key string) error
}

// Database defines lifecycle operations for the underlying local database.
// Each implementation owns its own migration files and strategy.
type Database interface {
	Migrate(ctx context.Context) error
	Close() error
}
