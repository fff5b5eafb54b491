package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/event"
	"github.com/msomdec/tasktide/internal/handler"
	"github.com/msomdec/tasktide/internal/service"
	"github.com/msomdec/tasktide/internal/store"
)

const testJWTSecret = "test-secret-for-handler-tests"

// memBackend is an in-memory stand-in for the remote data API, implementing
// all three backend interfaces.
type memBackend struct {
	mu       sync.Mutex
	users    map[string]*domain.User // by ID
	tasks    map[string]*domain.Task
	sessions map[string]*domain.TimeSession
}

func newMemBackend() *memBackend {
	return &memBackend{
		users:    make(map[string]*domain.User),
		tasks:    make(map[string]*domain.Task),
		sessions: make(map[string]*domain.TimeSession),
	}
}

func (b *memBackend) CreateUser(_ context.Context, user *domain.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.Email == user.Email {
			return domain.ErrDuplicateEmail
		}
	}
	cp := *user
	b.users[user.ID] = &cp
	return nil
}

func (b *memBackend) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (b *memBackend) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (b *memBackend) GetTasks(_ context.Context, userID string) ([]domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Task
	for _, t := range b.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (b *memBackend) GetTaskByID(_ context.Context, id string) (*domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (b *memBackend) CreateTask(_ context.Context, task *domain.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *task
	b.tasks[task.ID] = &cp
	return nil
}

func (b *memBackend) UpdateTask(_ context.Context, task *domain.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tasks[task.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *task
	b.tasks[task.ID] = &cp
	return nil
}

func (b *memBackend) DeleteTask(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tasks, id)
	return nil
}

func (b *memBackend) GetSessionsByTaskID(_ context.Context, taskID string) ([]domain.TimeSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.TimeSession
	for _, s := range b.sessions {
		if s.TaskID == taskID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (b *memBackend) GetUserSessions(_ context.Context, userID string) ([]domain.TimeSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.TimeSession
	for _, s := range b.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (b *memBackend) GetSessionsByDateRange(_ context.Context, userID string, start, end time.Time) ([]domain.TimeSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.TimeSession
	for _, s := range b.sessions {
		if s.UserID == userID && !s.StartTime.Before(start) && !s.StartTime.After(end) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (b *memBackend) CreateSession(_ context.Context, session *domain.TimeSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *session
	b.sessions[session.ID] = &cp
	return nil
}

func (b *memBackend) UpdateSession(_ context.Context, session *domain.TimeSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[session.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *session
	b.sessions[session.ID] = &cp
	return nil
}

// memCache is an in-memory domain.CacheStorage.
type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.CacheEntry)}
}

func (c *memCache) Get(_ context.Context, key string) (*domain.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, needsSync bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = domain.CacheEntry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		NeedsSync: needsSync,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (c *memCache) List(_ context.Context, prefix string) ([]domain.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CacheEntry
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *memCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

var (
	_ domain.TaskBackend    = (*memBackend)(nil)
	_ domain.SessionBackend = (*memBackend)(nil)
	_ domain.UserBackend    = (*memBackend)(nil)
	_ domain.CacheStorage   = (*memCache)(nil)
)

func newTestAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	return service.NewAuthService(newMemBackend(), testJWTSecret, bcrypt.MinCost)
}

// testServer wires the full HTTP surface over in-memory fakes.
type testServer struct {
	*httptest.Server
	backend *memBackend
	client  *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	backend := newMemBackend()
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	auth := service.NewAuthService(backend, testJWTSecret, bcrypt.MinCost)
	limiter := service.NewRateLimiter(100, 100)
	tasks := store.NewCachedTaskStore(backend, newMemCache(), bus)
	sessions := service.NewSessionService(backend, bus)
	reports := service.NewReportService(tasks, sessions)
	tracker := service.NewTracker(bus)
	t.Cleanup(tracker.Shutdown)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, auth, limiter, tasks, sessions, reports, tracker, bus, false)

	srv := httptest.NewServer(handler.SecurityHeaders(mux))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}

	return &testServer{
		Server:  srv,
		backend: backend,
		client:  &http.Client{Jar: jar},
	}
}

// do sends a JSON request and decodes the JSON response body into out when
// out is non-nil.
func (s *testServer) do(t *testing.T, method, path string, body, out any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, s.URL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

// signup registers and logs in a user, leaving the auth cookie in the jar.
func (s *testServer) signup(t *testing.T, email string) {
	t.Helper()

	resp := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":           email,
		"displayName":     "Test User",
		"password":        "password123",
		"confirmPassword": "password123",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": "password123",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
}

// seedSession writes a completed session straight into the fake backend,
// attributed to the only registered user.
func (s *testServer) seedSession(t *testing.T, taskID string, start time.Time, duration string) {
	t.Helper()

	s.backend.mu.Lock()
	var userID string
	for id := range s.backend.users {
		userID = id
	}
	s.backend.mu.Unlock()
	if userID == "" {
		t.Fatal("seedSession: no registered user")
	}

	end := start.Add(time.Minute)
	err := s.backend.CreateSession(context.Background(), &domain.TimeSession{
		ID:        "seed-" + start.Format("150405"),
		TaskID:    taskID,
		UserID:    userID,
		StartTime: start,
		EndTime:   &end,
		Duration:  duration,
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func jsonStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, raw)
	}
}
