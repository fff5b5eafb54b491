package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/service"
)

// SessionHandler handles time session HTTP requests.
type SessionHandler struct {
	sessions *service.SessionService
	tracker  *service.Tracker
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, tracker *service.Tracker) *SessionHandler {
	return &SessionHandler{sessions: sessions, tracker: tracker}
}

// HandleListByTask returns the live sessions recorded against a task.
// GET /api/tasks/{id}/sessions
func (h *SessionHandler) HandleListByTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	sessions, err := h.sessions.ListByTask(r.Context(), taskID)
	if err != nil {
		h.writeSessionError(w, "list sessions by task", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": toSessionDTOs(sessions),
	})
}

// HandleStart starts a new running session against a task.
// POST /api/tasks/{id}/sessions
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	taskID := r.PathValue("id")

	session, err := h.sessions.Start(r.Context(), user.ID, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeSessionError(w, "start session", err)
		return
	}

	h.tracker.Track(*session)

	writeJSON(w, http.StatusCreated, map[string]any{
		"session": toSessionDTO(session),
	})
}

// HandleStop stops a running session, stamping its end time and duration.
// POST /api/sessions/{id}/stop
func (h *SessionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")

	session, err := h.sessions.Stop(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusConflict, "Session is already stopped.")
			return
		}
		h.writeSessionError(w, "stop session", err)
		return
	}

	h.tracker.Untrack(session.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"session": toSessionDTO(session),
	})
}

// HandleUpdate edits a session's notes or recorded duration.
// PUT /api/sessions/{id}
// Request: {"notes":"...","duration":"HH:MM:SS"}
func (h *SessionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")

	var req struct {
		Notes    *string `json:"notes"`
		Duration *string `json:"duration"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	session, err := h.sessions.Update(r.Context(), user.ID, id, service.SessionUpdate{
		Notes:    req.Notes,
		Duration: req.Duration,
	})
	if err != nil {
		h.writeSessionError(w, "update session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": toSessionDTO(session),
	})
}

// HandleDelete soft-deletes a session.
// DELETE /api/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")

	if err := h.sessions.Delete(r.Context(), user.ID, id); err != nil {
		h.writeSessionError(w, "delete session", err)
		return
	}

	h.tracker.Untrack(id)

	w.WriteHeader(http.StatusNoContent)
}

// HandleListByRange returns the user's sessions, optionally limited to a
// from/to window.
// GET /api/sessions?from=RFC3339&to=RFC3339
func (h *SessionHandler) HandleListByRange(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	fromParam := r.URL.Query().Get("from")
	toParam := r.URL.Query().Get("to")

	var (
		sessions []domain.TimeSession
		err      error
	)
	if fromParam == "" && toParam == "" {
		sessions, err = h.sessions.ListByUser(r.Context(), user.ID)
	} else {
		from, to, parseErr := parseRange(fromParam, toParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "from and to must be RFC 3339 timestamps.")
			return
		}
		sessions, err = h.sessions.ListByDateRange(r.Context(), user.ID, from, to)
	}
	if err != nil {
		h.writeSessionError(w, "list sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": toSessionDTOs(sessions),
	})
}

func parseRange(fromParam, toParam string) (from, to time.Time, err error) {
	from, err = time.Parse(time.RFC3339, fromParam)
	if err != nil {
		return
	}
	to, err = time.Parse(time.RFC3339, toParam)
	return
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found.")
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "The backend is unreachable.")
	default:
		slog.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
	}
}
