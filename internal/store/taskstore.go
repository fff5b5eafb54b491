// Package store provides the cache-augmented task store: a read-through /
// write-through layer over the remote task backend with stale-while-
// revalidate reads and an offline write queue flushed by Sync.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/event"
)

// DefaultFreshness is how long a cached collection is served without
// triggering a background refresh.
const DefaultFreshness = 5 * time.Minute

// record is the cached wrapper around a task. PendingCreate marks records
// created while the backend was unreachable, so Sync knows to issue a
// create rather than an update. BaseVersion is the last version the backend
// confirmed; Sync compares it against the remote copy to detect conflicts.
type record struct {
	Task          domain.Task `json:"task"`
	PendingCreate bool        `json:"pending_create,omitempty"`
	BaseVersion   int64       `json:"base_version"`
}

// CachedTaskStore wraps a TaskBackend with the local persistent cache.
//
// Reads return cached data immediately and refresh in the background once
// the freshness window lapses; concurrent reads share a single refresh.
// Writes go through to the backend and fall back to a locally merged,
// needs-sync record when the backend is unreachable. Conflicting writes
// resolve last-write-wins; Sync logs when it can detect that the remote
// copy moved underneath a dirty record.
type CachedTaskStore struct {
	backend domain.TaskBackend
	cache   domain.CacheStorage
	bus     *event.Bus

	freshness time.Duration
	now       func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	refreshing map[string]bool
}

// StoreOption customizes a CachedTaskStore.
type StoreOption func(*CachedTaskStore)

// WithFreshness overrides the freshness window.
func WithFreshness(d time.Duration) StoreOption {
	return func(s *CachedTaskStore) { s.freshness = d }
}

// WithClock overrides the store's clock, used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *CachedTaskStore) { s.now = now }
}

// NewCachedTaskStore creates a store over the given backend and cache.
func NewCachedTaskStore(backend domain.TaskBackend, cache domain.CacheStorage, bus *event.Bus, opts ...StoreOption) *CachedTaskStore {
	s := &CachedTaskStore{
		backend:    backend,
		cache:      cache,
		bus:        bus,
		freshness:  DefaultFreshness,
		now:        time.Now,
		refreshing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordKey(userID, taskID string) string { return "task:" + userID + ":" + taskID }
func recordPrefix(userID string) string      { return "task:" + userID + ":" }
func markerKey(userID string) string         { return "tasks:" + userID }

// GetAll returns the user's tasks. A cached collection is returned
// immediately; if it is older than the freshness window a single background
// refresh is started and the stale data served meanwhile. With no cache at
// all the fetch happens in the foreground and backend errors surface.
func (s *CachedTaskStore) GetAll(ctx context.Context, userID string) ([]domain.Task, error) {
	marker, err := s.cache.Get(ctx, markerKey(userID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("read cache marker: %w", err)
		}
		// Cold cache: fetch in the foreground.
		if err := s.refresh(ctx, userID); err != nil {
			return nil, err
		}
		return s.cachedTasks(ctx, userID)
	}

	if s.now().Sub(marker.UpdatedAt) > s.freshness {
		s.backgroundRefresh(userID)
	}

	return s.cachedTasks(ctx, userID)
}

// GetByID returns one task with the same stale-while-revalidate contract at
// record granularity.
func (s *CachedTaskStore) GetByID(ctx context.Context, userID, id string) (*domain.Task, error) {
	entry, err := s.cache.Get(ctx, recordKey(userID, id))
	if err == nil {
		var rec record
		if jsonErr := json.Unmarshal(entry.Value, &rec); jsonErr != nil {
			return nil, fmt.Errorf("decode cached task: %w", jsonErr)
		}
		if rec.Task.IsDeleted {
			return nil, domain.ErrNotFound
		}
		// Dirty records are never refreshed over; they wait for Sync.
		if !entry.NeedsSync && s.now().Sub(entry.UpdatedAt) > s.freshness {
			s.backgroundRefreshRecord(userID, id)
		}
		return &rec.Task, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("read cached task: %w", err)
	}

	task, err := s.backend.GetTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, userID, record{Task: *task, BaseVersion: task.Version}, false); err != nil {
		return nil, err
	}
	return task, nil
}

// Create persists a new task. When the backend is unreachable the record is
// kept locally with needsSync set and surfaces in the returned value; the
// caller sees no error because the write is queued, not lost.
func (s *CachedTaskStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Version = 1

	err := s.backend.CreateTask(ctx, task)
	switch {
	case err == nil:
		if err := s.put(ctx, task.UserID, record{Task: *task, BaseVersion: task.Version}, false); err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrUnavailable):
		slog.Warn("backend unavailable, queueing task create", "task_id", task.ID)
		if err := s.put(ctx, task.UserID, record{Task: *task, PendingCreate: true}, true); err != nil {
			return nil, err
		}
	default:
		s.bus.Errors.Publish(event.ErrorEvent{Op: "task.create", Err: err})
		return nil, err
	}

	s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindCreated, UserID: task.UserID, Task: task})
	s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindChanged, UserID: task.UserID, Task: task})
	return task, nil
}

// Update writes changed task fields through to the backend, falling back to
// a dirty local merge when it is unreachable.
func (s *CachedTaskStore) Update(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	prev, err := s.loadRecord(ctx, task.UserID, task.ID)
	if err != nil {
		return nil, err
	}

	task.Version = prev.Task.Version + 1
	task.UpdatedAt = s.now()
	task.CreatedAt = prev.Task.CreatedAt

	err = s.backend.UpdateTask(ctx, task)
	switch {
	case err == nil:
		if err := s.put(ctx, task.UserID, record{Task: *task, BaseVersion: task.Version}, false); err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrUnavailable):
		slog.Warn("backend unavailable, queueing task update", "task_id", task.ID)
		rec := record{Task: *task, PendingCreate: prev.PendingCreate, BaseVersion: prev.BaseVersion}
		if err := s.put(ctx, task.UserID, rec, true); err != nil {
			return nil, err
		}
	default:
		s.bus.Errors.Publish(event.ErrorEvent{Op: "task.update", Err: err})
		return nil, err
	}

	s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindUpdated, UserID: task.UserID, Task: task})
	s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindChanged, UserID: task.UserID, Task: task})
	return task, nil
}

// Delete removes a task. Offline, the record is soft-marked deleted and
// kept in the cache so Sync can replay the delete later.
func (s *CachedTaskStore) Delete(ctx context.Context, userID, id string) error {
	err := s.backend.DeleteTask(ctx, id)
	switch {
	case err == nil:
		if err := s.cache.Remove(ctx, recordKey(userID, id)); err != nil {
			return err
		}
	case errors.Is(err, domain.ErrUnavailable):
		rec, loadErr := s.loadRecord(ctx, userID, id)
		if loadErr != nil {
			return loadErr
		}
		slog.Warn("backend unavailable, queueing task delete", "task_id", id)
		rec.Task.IsDeleted = true
		rec.Task.Version++
		rec.Task.UpdatedAt = s.now()
		if err := s.put(ctx, userID, *rec, true); err != nil {
			return err
		}
	default:
		s.bus.Errors.Publish(event.ErrorEvent{Op: "task.delete", Err: err})
		return err
	}

	s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindDeleted, UserID: userID, Task: &domain.Task{ID: id, UserID: userID}})
	s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindChanged, UserID: userID})
	return nil
}

// HasUnsyncedChanges reports whether any cached record still needs to reach
// the backend.
func (s *CachedTaskStore) HasUnsyncedChanges(ctx context.Context, userID string) (bool, error) {
	entries, err := s.cache.List(ctx, recordPrefix(userID))
	if err != nil {
		return false, fmt.Errorf("list cache: %w", err)
	}
	for _, entry := range entries {
		if entry.NeedsSync {
			return true, nil
		}
	}
	return false, nil
}

// Sync flushes every dirty record: offline deletes replay as deletes,
// offline creates as creates, everything else as updates. A record that
// fails to sync is logged and left dirty for the next attempt; sync is
// idempotent per record. The number of flushed records is returned.
func (s *CachedTaskStore) Sync(ctx context.Context, userID string) (int, error) {
	entries, err := s.cache.List(ctx, recordPrefix(userID))
	if err != nil {
		return 0, fmt.Errorf("list cache: %w", err)
	}

	synced := 0
	for _, entry := range entries {
		if !entry.NeedsSync {
			continue
		}
		var rec record
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			slog.Error("skip undecodable dirty record", "key", entry.Key, "error", err)
			continue
		}
		if err := s.syncRecord(ctx, userID, rec); err != nil {
			slog.Error("sync record failed", "task_id", rec.Task.ID, "error", err)
			continue
		}
		synced++
	}

	if synced > 0 {
		s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindChanged, UserID: userID})
	}
	return synced, nil
}

func (s *CachedTaskStore) syncRecord(ctx context.Context, userID string, rec record) error {
	task := rec.Task

	switch {
	case task.IsDeleted && rec.PendingCreate:
		// Created and deleted while offline; the backend never saw it.
		return s.cache.Remove(ctx, recordKey(userID, task.ID))

	case task.IsDeleted:
		if err := s.backend.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
		if err := s.cache.Remove(ctx, recordKey(userID, task.ID)); err != nil {
			return err
		}
		s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindDeleted, UserID: userID, Task: &domain.Task{ID: task.ID, UserID: userID}})
		return nil

	case rec.PendingCreate:
		if err := s.backend.CreateTask(ctx, &task); err != nil {
			return err
		}
		s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindCreated, UserID: userID, Task: &task})
		return s.put(ctx, userID, record{Task: task, BaseVersion: task.Version}, false)

	default:
		// Conflict detection only; resolution stays last-write-wins.
		if remote, err := s.backend.GetTaskByID(ctx, task.ID); err == nil && remote.Version > rec.BaseVersion {
			slog.Warn("sync conflict, local copy wins",
				"task_id", task.ID, "remote_version", remote.Version, "base_version", rec.BaseVersion)
		}
		if err := s.backend.UpdateTask(ctx, &task); err != nil {
			return err
		}
		s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindUpdated, UserID: userID, Task: &task})
		return s.put(ctx, userID, record{Task: task, BaseVersion: task.Version}, false)
	}
}

// Refresh forces a foreground reload from the backend, replacing every
// clean cached record.
func (s *CachedTaskStore) Refresh(ctx context.Context, userID string) error {
	return s.refresh(ctx, userID)
}

// refresh fetches the collection and rewrites the cache: fetched records
// replace their cached copies, and clean records the backend no longer
// returns are evicted. Dirty records are left alone either way so queued
// offline writes survive a refresh.
func (s *CachedTaskStore) refresh(ctx context.Context, userID string) error {
	tasks, err, _ := s.group.Do("refresh:"+userID, func() (any, error) {
		tasks, err := s.backend.GetTasks(ctx, userID)
		if err != nil {
			return nil, err
		}

		dirty, err := s.dirtyIDs(ctx, userID)
		if err != nil {
			return nil, err
		}

		fetched := make(map[string]bool, len(tasks))
		for i := range tasks {
			fetched[tasks[i].ID] = true
			if dirty[tasks[i].ID] {
				continue
			}
			rec := record{Task: tasks[i], BaseVersion: tasks[i].Version}
			if err := s.put(ctx, userID, rec, false); err != nil {
				return nil, err
			}
		}

		entries, err := s.cache.List(ctx, recordPrefix(userID))
		if err != nil {
			return nil, fmt.Errorf("list cache: %w", err)
		}
		for _, entry := range entries {
			if entry.NeedsSync {
				continue
			}
			id := entry.Key[len(recordPrefix(userID)):]
			if fetched[id] {
				continue
			}
			if err := s.cache.Remove(ctx, entry.Key); err != nil {
				return nil, err
			}
		}

		if err := s.cache.Set(ctx, markerKey(userID), []byte(`{}`), false); err != nil {
			return nil, err
		}
		return tasks, nil
	})
	if err != nil {
		return err
	}

	s.bus.Tasks.Publish(event.TaskEvent{Kind: event.KindLoaded, UserID: userID, Tasks: tasks.([]domain.Task)})
	return nil
}

// backgroundRefresh kicks off one non-blocking refresh for the user; a
// second stale read while it runs is a no-op.
func (s *CachedTaskStore) backgroundRefresh(userID string) {
	s.mu.Lock()
	if s.refreshing[userID] {
		s.mu.Unlock()
		return
	}
	s.refreshing[userID] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.refreshing, userID)
			s.mu.Unlock()
		}()
		// Detached from the request: fire-and-forget, errors only logged.
		if err := s.refresh(context.Background(), userID); err != nil {
			slog.Error("background refresh failed", "user_id", userID, "error", err)
		}
	}()
}

func (s *CachedTaskStore) backgroundRefreshRecord(userID, id string) {
	key := "record:" + userID + ":" + id
	go func() {
		_, err, _ := s.group.Do(key, func() (any, error) {
			ctx := context.Background()
			task, err := s.backend.GetTaskByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return nil, s.put(ctx, userID, record{Task: *task, BaseVersion: task.Version}, false)
		})
		if err != nil {
			slog.Error("background record refresh failed", "task_id", id, "error", err)
		}
	}()
}

// cachedTasks assembles the visible collection from per-record entries.
// Records soft-marked deleted by an offline delete stay hidden.
func (s *CachedTaskStore) cachedTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	entries, err := s.cache.List(ctx, recordPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}

	tasks := make([]domain.Task, 0, len(entries))
	for _, entry := range entries {
		var rec record
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			slog.Error("skip undecodable cached task", "key", entry.Key, "error", err)
			continue
		}
		if rec.Task.IsDeleted {
			continue
		}
		tasks = append(tasks, rec.Task)
	}
	return tasks, nil
}

func (s *CachedTaskStore) loadRecord(ctx context.Context, userID, id string) (*record, error) {
	entry, err := s.cache.Get(ctx, recordKey(userID, id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Fall back to the backend so updates work on uncached records.
			task, berr := s.backend.GetTaskByID(ctx, id)
			if berr != nil {
				return nil, berr
			}
			return &record{Task: *task, BaseVersion: task.Version}, nil
		}
		return nil, fmt.Errorf("read cached task: %w", err)
	}

	var rec record
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return nil, fmt.Errorf("decode cached task: %w", err)
	}
	return &rec, nil
}

func (s *CachedTaskStore) dirtyIDs(ctx context.Context, userID string) (map[string]bool, error) {
	entries, err := s.cache.List(ctx, recordPrefix(userID))
	if err != nil {
		return nil, err
	}
	dirty := make(map[string]bool)
	for _, entry := range entries {
		if entry.NeedsSync {
			var rec record
			if err := json.Unmarshal(entry.Value, &rec); err == nil {
				dirty[rec.Task.ID] = true
			}
		}
	}
	return dirty, nil
}

func (s *CachedTaskStore) put(ctx context.Context, userID string, rec record, needsSync bool) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode task record: %w", err)
	}
	if err := s.cache.Set(ctx, recordKey(userID, rec.Task.ID), data, needsSync); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
