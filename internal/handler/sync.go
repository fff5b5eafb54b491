package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/store"
)

// SyncHandler exposes the offline-write queue: whether dirty records exist
// and an explicit flush.
type SyncHandler struct {
	tasks *store.CachedTaskStore
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(tasks *store.CachedTaskStore) *SyncHandler {
	return &SyncHandler{tasks: tasks}
}

// HandleStatus reports whether the user has local changes awaiting sync.
// GET /api/sync
// Response: {"needsSync": bool}
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	dirty, err := h.tasks.HasUnsyncedChanges(r.Context(), user.ID)
	if err != nil {
		slog.Error("check sync status", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"needsSync": dirty,
	})
}

// HandleFlush pushes dirty records to the backend. Partial success is
// reported: records that fail stay queued for the next flush.
// POST /api/sync
// Response: {"synced": n, "complete": bool}
func (h *SyncHandler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	synced, err := h.tasks.Sync(r.Context(), user.ID)
	if err != nil && !errors.Is(err, domain.ErrUnavailable) {
		slog.Error("flush sync queue", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	remaining, checkErr := h.tasks.HasUnsyncedChanges(r.Context(), user.ID)
	if checkErr != nil {
		slog.Error("check sync status after flush", "error", checkErr)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"synced":   synced,
		"complete": err == nil && !remaining,
	})
}
