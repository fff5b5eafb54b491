package handler

import (
	"log/slog"
	"net/http"

	datastar "github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/tasktide/internal/event"
)

// EventsHandler streams task, session, and tick events to the browser as
// datastar signal patches.
type EventsHandler struct {
	bus *event.Bus
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(bus *event.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// HandleStream subscribes the client to the event bus for the lifetime of
// the request.
// GET /api/events
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	tasks, cancelTasks := h.bus.Tasks.Subscribe()
	defer cancelTasks()
	sessions, cancelSessions := h.bus.Sessions.Subscribe()
	defer cancelSessions()
	ticks, cancelTicks := h.bus.Ticks.Subscribe()
	defer cancelTicks()

	sse := datastar.NewSSE(w, r)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-tasks:
			if !ok {
				return
			}
			if !taskEventForUser(&ev, user.ID) {
				continue
			}
			h.patch(sse, map[string]any{"taskEvent": ev})
		case ev, ok := <-sessions:
			if !ok {
				return
			}
			if !sessionEventForUser(&ev, user.ID) {
				continue
			}
			h.patch(sse, map[string]any{"sessionEvent": ev})
		case ev, ok := <-ticks:
			if !ok {
				return
			}
			if ev.UserID != user.ID {
				continue
			}
			h.patch(sse, map[string]any{"tick": ev})
		}
	}
}

func (h *EventsHandler) patch(sse *datastar.ServerSentEventGenerator, signals map[string]any) {
	if err := sse.MarshalAndPatchSignals(signals); err != nil {
		slog.Error("patch event signals", "error", err)
	}
}

func sessionEventForUser(ev *event.SessionEvent, userID string) bool {
	if ev.Session != nil {
		return ev.Session.UserID == userID
	}
	for i := range ev.Sessions {
		if ev.Sessions[i].UserID != userID {
			return false
		}
	}
	return true
}

// Every task event is published with the owning user set, so membership is
// a straight comparison rather than an inspection of the payload.
func taskEventForUser(ev *event.TaskEvent, userID string) bool {
	return ev.UserID == userID
}
