package service

import (
	"sync"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/event"
)

// Tracker drives live-updating counters for running sessions. It owns the
// periodic work the stateless calculator cannot: once per interval it
// recomputes the elapsed time of every tracked session and publishes a
// tick event. The ticker goroutine starts with the first tracked session
// and exits when the last one is untracked, so an idle process schedules
// no periodic work.
type Tracker struct {
	bus      *event.Bus
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	active map[string]domain.TimeSession
	stop   chan struct{}
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithTickInterval overrides the one-second tick, used by tests.
func WithTickInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.interval = d }
}

// WithTrackerClock overrides the tracker clock, used by tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker publishing on the given bus.
func NewTracker(bus *event.Bus, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		bus:      bus,
		interval: time.Second,
		now:      time.Now,
		active:   make(map[string]domain.TimeSession),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track registers a running session for live updates and starts the ticker
// if it is not already running. Tracking a stopped session is a no-op.
func (t *Tracker) Track(session domain.TimeSession) {
	if !session.Active() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[session.ID] = session
	if t.stop == nil {
		t.stop = make(chan struct{})
		go t.loop(t.stop)
	}
}

// Untrack removes a session from live updates. The ticker shuts itself
// down when nothing remains tracked.
func (t *Tracker) Untrack(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, sessionID)
	t.stopLocked()
}

// Shutdown stops the ticker and drops all tracked sessions.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[string]domain.TimeSession)
	t.stopLocked()
}

// Running reports whether the ticker goroutine is live.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// stopLocked closes the ticker channel when no sessions remain. Callers
// hold t.mu.
func (t *Tracker) stopLocked() {
	if len(t.active) == 0 && t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Tracker) loop(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Tracker) tick() {
	t.mu.Lock()
	sessions := make([]domain.TimeSession, 0, len(t.active))
	for _, session := range t.active {
		sessions = append(sessions, session)
	}
	t.mu.Unlock()

	now := t.now()
	for i := range sessions {
		seconds := EffectiveSeconds(&sessions[i], now)
		t.bus.Ticks.Publish(event.TickEvent{
			SessionID: sessions[i].ID,
			TaskID:    sessions[i].TaskID,
			UserID:    sessions[i].UserID,
			Seconds:   seconds,
			Elapsed:   FormatClock(seconds),
		})
	}
}
