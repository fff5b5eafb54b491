package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/service"
)

// ReportHandler serves time rollups.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// HandleTotals returns bucketed time totals for the authenticated user.
// GET /api/reports?group_by=task|category|day|week|month&from=&to=
func (h *ReportHandler) HandleTotals(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	groupBy := domain.GroupBy(r.URL.Query().Get("group_by"))
	if groupBy == "" {
		groupBy = domain.GroupByTask
	}
	if !groupBy.Valid() {
		writeError(w, http.StatusBadRequest, "group_by must be one of task, category, day, week, month.")
		return
	}

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp.")
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp.")
			return
		}
		to = &t
	}

	buckets, err := h.reports.Totals(r.Context(), user.ID, groupBy, from, to)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "The backend is unreachable.")
		default:
			slog.Error("build report", "error", err)
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"groupBy": groupBy,
		"buckets": buckets,
	})
}
