package service

import (
	"testing"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/event"
)

func TestTrackerPublishesTicks(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	now := time.Date(2026, 3, 4, 10, 5, 0, 0, time.UTC)
	tracker := NewTracker(bus,
		WithTickInterval(5*time.Millisecond),
		WithTrackerClock(func() time.Time { return now }),
	)
	defer tracker.Shutdown()

	ticks, cancel := bus.Ticks.Subscribe()
	defer cancel()

	tracker.Track(domain.TimeSession{
		ID:        "s1",
		TaskID:    "t1",
		StartTime: now.Add(-90 * time.Second),
	})

	select {
	case tick := <-ticks:
		if tick.SessionID != "s1" || tick.Seconds != 90 {
			t.Fatalf("unexpected tick %+v", tick)
		}
		if tick.Elapsed != "00:01:30" {
			t.Fatalf("unexpected elapsed %q", tick.Elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}
}

func TestTrackerStopsWhenEmpty(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	tracker := NewTracker(bus, WithTickInterval(5*time.Millisecond))
	tracker.Track(domain.TimeSession{ID: "s1", StartTime: time.Now()})

	if !tracker.Running() {
		t.Fatal("expected ticker running after Track")
	}

	tracker.Untrack("s1")
	if tracker.Running() {
		t.Fatal("expected ticker stopped when nothing is tracked")
	}
}

func TestTrackerIgnoresStoppedSessions(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	tracker := NewTracker(bus)
	end := time.Now()
	tracker.Track(domain.TimeSession{ID: "s1", StartTime: end.Add(-time.Hour), EndTime: &end})

	if tracker.Running() {
		t.Fatal("a finished session must not start the ticker")
	}
}

func TestTrackerShutdown(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	tracker := NewTracker(bus, WithTickInterval(5*time.Millisecond))
	tracker.Track(domain.TimeSession{ID: "s1", StartTime: time.Now()})
	tracker.Track(domain.TimeSession{ID: "s2", StartTime: time.Now()})

	tracker.Shutdown()
	if tracker.Running() {
		t.Fatal("expected ticker stopped after Shutdown")
	}
}
