package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/event"
)

// fakeBackend is an in-memory TaskBackend with a switchable offline mode
// and per-method call counters.
type fakeBackend struct {
	mu      sync.Mutex
	offline bool
	tasks   map[string]domain.Task
	calls   map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{tasks: make(map[string]domain.Task), calls: make(map[string]int)}
}

func (b *fakeBackend) setOffline(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline = v
}

func (b *fakeBackend) callCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

func (b *fakeBackend) check(method string) error {
	b.calls[method]++
	if b.offline {
		return fmt.Errorf("%w: connection refused", domain.ErrUnavailable)
	}
	return nil
}

func (b *fakeBackend) GetTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("GetTasks"); err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, t := range b.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *fakeBackend) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("GetTaskByID"); err != nil {
		return nil, err
	}
	t, ok := b.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (b *fakeBackend) CreateTask(ctx context.Context, task *domain.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("CreateTask"); err != nil {
		return err
	}
	b.tasks[task.ID] = *task
	return nil
}

func (b *fakeBackend) UpdateTask(ctx context.Context, task *domain.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("UpdateTask"); err != nil {
		return err
	}
	if _, ok := b.tasks[task.ID]; !ok {
		return domain.ErrNotFound
	}
	b.tasks[task.ID] = *task
	return nil
}

func (b *fakeBackend) DeleteTask(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("DeleteTask"); err != nil {
		return err
	}
	delete(b.tasks, id)
	return nil
}

// memCache is an in-memory CacheStorage for store tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	clock   func() time.Time
}

func newMemCache(clock func() time.Time) *memCache {
	return &memCache{entries: make(map[string]domain.CacheEntry), clock: clock}
}

func (c *memCache) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, needsSync bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	c.entries[key] = domain.CacheEntry{
		Key: key, Value: value, NeedsSync: needsSync,
		LastAccessedAt: now, UpdatedAt: now,
	}
	return nil
}

func (c *memCache) List(ctx context.Context, prefix string) ([]domain.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CacheEntry
	for k, e := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *memCache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

type fixture struct {
	backend *fakeBackend
	cache   *memCache
	bus     *event.Bus
	store   *CachedTaskStore
	clock   *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)}
	backend := newFakeBackend()
	cache := newMemCache(clock.now)
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	store := NewCachedTaskStore(backend, cache, bus, WithClock(clock.now))
	return &fixture{backend: backend, cache: cache, bus: bus, store: store, clock: clock}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestGetAllColdCacheFetchesOnce(t *testing.T) {
	f := newFixture(t)
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "One", Version: 1}

	tasks, err := f.store.GetAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
	if got := f.backend.callCount("GetTasks"); got != 1 {
		t.Fatalf("expected 1 backend fetch, got %d", got)
	}
}

func TestGetAllWithinFreshnessSkipsBackend(t *testing.T) {
	f := newFixture(t)
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "One", Version: 1}
	ctx := context.Background()

	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("first GetAll: %v", err)
	}
	f.clock.advance(time.Minute)
	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("second GetAll: %v", err)
	}

	if got := f.backend.callCount("GetTasks"); got != 1 {
		t.Fatalf("expected cached read, backend fetched %d times", got)
	}
}

func TestGetAllStaleTriggersOneBackgroundRefresh(t *testing.T) {
	f := newFixture(t)
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "One", Version: 1}
	ctx := context.Background()

	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("warm-up GetAll: %v", err)
	}
	f.clock.advance(DefaultFreshness + time.Second)

	// Two stale reads race; the refresh must run exactly once.
	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("stale GetAll: %v", err)
	}
	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("stale GetAll: %v", err)
	}

	waitFor(t, func() bool { return f.backend.callCount("GetTasks") >= 2 })
	// Give any duplicate refresh a moment to show up.
	time.Sleep(50 * time.Millisecond)
	if got := f.backend.callCount("GetTasks"); got != 2 {
		t.Fatalf("expected exactly one background refresh, total fetches %d", got)
	}
}

func TestFailedBackgroundRefreshKeepsServingCache(t *testing.T) {
	f := newFixture(t)
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "One", Version: 1}
	ctx := context.Background()

	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("warm-up GetAll: %v", err)
	}

	f.backend.setOffline(true)
	f.clock.advance(DefaultFreshness + time.Second)

	tasks, err := f.store.GetAll(ctx, "u1")
	if err != nil {
		t.Fatalf("stale GetAll with offline backend: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected cached task to survive failed refresh, got %+v", tasks)
	}
}

func TestGetAllColdCacheOfflineSurfacesError(t *testing.T) {
	f := newFixture(t)
	f.backend.setOffline(true)

	_, err := f.store.GetAll(context.Background(), "u1")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on cold offline read, got %v", err)
	}
}

func TestOfflineCreateThenSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.setOffline(true)

	created, err := f.store.Create(ctx, &domain.Task{UserID: "u1", Title: "Offline task"})
	if err != nil {
		t.Fatalf("offline Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a locally assigned ID")
	}

	dirty, err := f.store.HasUnsyncedChanges(ctx, "u1")
	if err != nil || !dirty {
		t.Fatalf("expected unsynced changes, got %v err=%v", dirty, err)
	}

	f.backend.setOffline(false)
	synced, err := f.store.Sync(ctx, "u1")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if synced != 1 {
		t.Fatalf("expected 1 synced record, got %d", synced)
	}
	if got := f.backend.callCount("CreateTask"); got != 2 {
		// One failed offline attempt plus exactly one successful replay.
		t.Fatalf("expected 2 create calls total, got %d", got)
	}

	dirty, err = f.store.HasUnsyncedChanges(ctx, "u1")
	if err != nil || dirty {
		t.Fatalf("expected clean cache after sync, got %v err=%v", dirty, err)
	}
	if _, ok := f.backend.tasks[created.ID]; !ok {
		t.Fatal("expected task to reach the backend")
	}
}

func TestOfflineUpdateMergesLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "Before", Version: 1}
	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	f.backend.setOffline(true)
	updated, err := f.store.Update(ctx, &domain.Task{ID: "t1", UserID: "u1", Title: "After", Status: domain.TaskStatusInProgress})
	if err != nil {
		t.Fatalf("offline Update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected bumped version 2, got %d", updated.Version)
	}

	got, err := f.store.GetByID(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "After" {
		t.Fatalf("expected local merge visible, got %q", got.Title)
	}

	f.backend.setOffline(false)
	if _, err := f.store.Sync(ctx, "u1"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if f.backend.tasks["t1"].Title != "After" {
		t.Fatal("expected update to replay on sync")
	}
}

func TestOfflineDeleteSoftMarksAndSyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "Doomed", Version: 1}
	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	f.backend.setOffline(true)
	if err := f.store.Delete(ctx, "u1", "t1"); err != nil {
		t.Fatalf("offline Delete: %v", err)
	}

	// Hidden from reads but preserved in the cache for sync.
	tasks, err := f.store.GetAll(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected deleted task hidden, got %+v", tasks)
	}
	if _, err := f.cache.Get(ctx, recordKey("u1", "t1")); err != nil {
		t.Fatalf("expected record preserved for sync, got %v", err)
	}

	f.backend.setOffline(false)
	synced, err := f.store.Sync(ctx, "u1")
	if err != nil || synced != 1 {
		t.Fatalf("Sync: synced=%d err=%v", synced, err)
	}
	if _, ok := f.backend.tasks["t1"]; ok {
		t.Fatal("expected delete to replay on sync")
	}
}

func TestOfflineCreateThenDeleteNeverReachesBackend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.setOffline(true)

	created, err := f.store.Create(ctx, &domain.Task{UserID: "u1", Title: "Ephemeral"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.store.Delete(ctx, "u1", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	f.backend.setOffline(false)
	if _, err := f.store.Sync(ctx, "u1"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := f.backend.callCount("DeleteTask"); got != 1 {
		// Only the failed offline attempt; the replay is dropped locally.
		t.Fatalf("expected no delete replay, got %d delete calls", got)
	}
}

func TestSyncPartialFailureContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.setOffline(true)

	if _, err := f.store.Create(ctx, &domain.Task{UserID: "u1", Title: "A"}); err != nil {
		t.Fatalf("Create A: %v", err)
	}
	if _, err := f.store.Create(ctx, &domain.Task{UserID: "u1", Title: "B"}); err != nil {
		t.Fatalf("Create B: %v", err)
	}

	// Still offline: sync flushes nothing but does not abort.
	synced, err := f.store.Sync(ctx, "u1")
	if err != nil {
		t.Fatalf("offline Sync: %v", err)
	}
	if synced != 0 {
		t.Fatalf("expected 0 synced while offline, got %d", synced)
	}

	dirty, _ := f.store.HasUnsyncedChanges(ctx, "u1")
	if !dirty {
		t.Fatal("records must stay dirty for the next attempt")
	}
}

func TestRefreshEvictsBackendDeletedTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "Kept", Version: 1}
	f.backend.tasks["t2"] = domain.Task{ID: "t2", UserID: "u1", Title: "Gone", Version: 1}
	if _, err := f.store.GetAll(ctx, "u1"); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	// Another client deleted t2 on the backend.
	delete(f.backend.tasks, "t2")

	if err := f.store.Refresh(ctx, "u1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	tasks, err := f.store.GetAll(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("expected backend-deleted task evicted, got %+v", tasks)
	}
}

func TestRefreshKeepsDirtyRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.setOffline(true)
	created, err := f.store.Create(ctx, &domain.Task{UserID: "u1", Title: "Queued"})
	if err != nil {
		t.Fatalf("offline Create: %v", err)
	}
	f.backend.setOffline(false)

	// The backend has never seen the queued record; a refresh must not
	// evict it.
	if err := f.store.Refresh(ctx, "u1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	tasks, err := f.store.GetAll(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("expected queued record to survive refresh, got %+v", tasks)
	}
	dirty, err := f.store.HasUnsyncedChanges(ctx, "u1")
	if err != nil || !dirty {
		t.Fatalf("expected record to stay dirty, got %v err=%v", dirty, err)
	}
}

func TestGetByIDStaleTriggersBackgroundRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "Before", Version: 1}

	if _, err := f.store.GetByID(ctx, "u1", "t1"); err != nil {
		t.Fatalf("warm-up GetByID: %v", err)
	}
	baseline := f.backend.callCount("GetTaskByID")

	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "After", Version: 2}
	f.clock.advance(DefaultFreshness + time.Second)

	// The stale copy is served immediately; the refresh runs behind it.
	got, err := f.store.GetByID(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("stale GetByID: %v", err)
	}
	if got.Title != "Before" {
		t.Fatalf("expected stale copy served first, got %q", got.Title)
	}

	waitFor(t, func() bool { return f.backend.callCount("GetTaskByID") > baseline })
	waitFor(t, func() bool {
		task, err := f.store.GetByID(ctx, "u1", "t1")
		return err == nil && task.Title == "After"
	})
}

func TestGetByIDDirtyRecordSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "Remote", Version: 1}
	if _, err := f.store.GetByID(ctx, "u1", "t1"); err != nil {
		t.Fatalf("warm-up GetByID: %v", err)
	}

	f.backend.setOffline(true)
	if _, err := f.store.Update(ctx, &domain.Task{ID: "t1", UserID: "u1", Title: "Local"}); err != nil {
		t.Fatalf("offline Update: %v", err)
	}
	f.backend.setOffline(false)

	baseline := f.backend.callCount("GetTaskByID")
	f.clock.advance(DefaultFreshness + time.Second)

	got, err := f.store.GetByID(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Local" {
		t.Fatalf("expected queued local copy, got %q", got.Title)
	}

	// Give a mistaken background refresh a moment to show up.
	time.Sleep(50 * time.Millisecond)
	if f.backend.callCount("GetTaskByID") != baseline {
		t.Fatal("dirty record must wait for Sync, not be refreshed over")
	}
}

func TestCreateEmitsEvents(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.bus.Tasks.Subscribe()
	defer cancel()

	if _, err := f.store.Create(context.Background(), &domain.Task{UserID: "u1", Title: "T"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := <-events
	if first.Kind != event.KindCreated || first.Task == nil {
		t.Fatalf("expected created event, got %+v", first)
	}
	second := <-events
	if second.Kind != event.KindChanged {
		t.Fatalf("expected changed event, got %+v", second)
	}
}

func TestDeleteChangedEventCarriesUser(t *testing.T) {
	f := newFixture(t)
	f.backend.tasks["t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "T", Version: 1}
	events, cancel := f.bus.Tasks.Subscribe()
	defer cancel()

	if err := f.store.Delete(context.Background(), "u1", "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	deleted := <-events
	if deleted.Kind != event.KindDeleted || deleted.UserID != "u1" {
		t.Fatalf("expected deleted event for u1, got %+v", deleted)
	}
	// The payload-less changed event still names its owner so subscribers
	// for other users never see it.
	changed := <-events
	if changed.Kind != event.KindChanged || changed.UserID != "u1" {
		t.Fatalf("expected changed event for u1, got %+v", changed)
	}
}
