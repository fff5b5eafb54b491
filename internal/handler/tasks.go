package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/store"
)

// TaskHandler handles task CRUD requests backed by the cached task store.
type TaskHandler struct {
	tasks *store.CachedTaskStore
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *store.CachedTaskStore) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// HandleList returns all live tasks for the authenticated user.
// GET /api/tasks
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	tasks, err := h.tasks.GetAll(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "The backend is unreachable and no cached tasks are available.")
			return
		}
		slog.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": toTaskDTOs(tasks),
	})
}

// HandleCreate creates a new task.
// POST /api/tasks
// Request: {"title":"...","notes":"...","status":"...","categoryName":"..."}
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req struct {
		Title        string `json:"title"`
		Notes        string `json:"notes"`
		Status       string `json:"status"`
		CategoryName string `json:"categoryName"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "Title is required.")
		return
	}
	if req.Status == "" {
		req.Status = string(domain.TaskStatusPending)
	}

	task, err := h.tasks.Create(r.Context(), &domain.Task{
		UserID:       user.ID,
		Title:        req.Title,
		Notes:        req.Notes,
		Status:       domain.TaskStatus(req.Status),
		CategoryName: req.CategoryName,
	})
	if err != nil {
		slog.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"task": toTaskDTO(task),
	})
}

// HandleGet returns a single task by ID.
// GET /api/tasks/{id}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")

	task, err := h.tasks.GetByID(r.Context(), user.ID, id)
	if err != nil {
		h.writeTaskError(w, "get task", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task": toTaskDTO(task),
	})
}

// HandleUpdate applies field changes to a task.
// PUT /api/tasks/{id}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")

	task, err := h.tasks.GetByID(r.Context(), user.ID, id)
	if err != nil {
		h.writeTaskError(w, "get task for update", err)
		return
	}

	var req struct {
		Title        *string `json:"title"`
		Notes        *string `json:"notes"`
		Status       *string `json:"status"`
		CategoryName *string `json:"categoryName"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Title != nil {
		if *req.Title == "" {
			writeError(w, http.StatusUnprocessableEntity, "Title cannot be empty.")
			return
		}
		task.Title = *req.Title
	}
	if req.Notes != nil {
		task.Notes = *req.Notes
	}
	if req.Status != nil {
		task.Status = domain.TaskStatus(*req.Status)
	}
	if req.CategoryName != nil {
		task.CategoryName = *req.CategoryName
	}

	updated, err := h.tasks.Update(r.Context(), task)
	if err != nil {
		h.writeTaskError(w, "update task", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task": toTaskDTO(updated),
	})
}

// HandleDelete soft-deletes a task.
// DELETE /api/tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")

	if err := h.tasks.Delete(r.Context(), user.ID, id); err != nil {
		h.writeTaskError(w, "delete task", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) writeTaskError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Task not found.")
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "The backend is unreachable.")
	default:
		slog.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
	}
}
