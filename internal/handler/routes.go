package handler

import (
	"net/http"

	"github.com/msomdec/tasktide/internal/event"
	"github.com/msomdec/tasktide/internal/service"
	"github.com/msomdec/tasktide/internal/store"
)

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(
	mux *http.ServeMux,
	auth *service.AuthService,
	limiter *service.RateLimiter,
	tasks *store.CachedTaskStore,
	sessions *service.SessionService,
	reports *service.ReportService,
	tracker *service.Tracker,
	bus *event.Bus,
	cookieSecure bool,
) {
	authHandler := NewAuthHandler(auth, limiter, cookieSecure)
	taskHandler := NewTaskHandler(tasks)
	sessionHandler := NewSessionHandler(sessions, tracker)
	reportHandler := NewReportHandler(reports)
	syncHandler := NewSyncHandler(tasks)
	eventsHandler := NewEventsHandler(bus)

	protected := func(h http.HandlerFunc) http.Handler {
		return RequireAuth(auth, h)
	}

	mux.HandleFunc("GET /healthz", HandleHealthz)

	mux.HandleFunc("POST /api/auth/register", authHandler.HandleRegister)
	mux.HandleFunc("POST /api/auth/login", authHandler.HandleLogin)
	mux.HandleFunc("POST /api/auth/logout", authHandler.HandleLogout)
	mux.Handle("GET /api/auth/me", protected(authHandler.HandleMe))

	mux.Handle("GET /api/tasks", protected(taskHandler.HandleList))
	mux.Handle("POST /api/tasks", protected(taskHandler.HandleCreate))
	mux.Handle("GET /api/tasks/{id}", protected(taskHandler.HandleGet))
	mux.Handle("PUT /api/tasks/{id}", protected(taskHandler.HandleUpdate))
	mux.Handle("DELETE /api/tasks/{id}", protected(taskHandler.HandleDelete))

	mux.Handle("GET /api/tasks/{id}/sessions", protected(sessionHandler.HandleListByTask))
	mux.Handle("POST /api/tasks/{id}/sessions", protected(sessionHandler.HandleStart))
	mux.Handle("POST /api/sessions/{id}/stop", protected(sessionHandler.HandleStop))
	mux.Handle("PUT /api/sessions/{id}", protected(sessionHandler.HandleUpdate))
	mux.Handle("DELETE /api/sessions/{id}", protected(sessionHandler.HandleDelete))
	mux.Handle("GET /api/sessions", protected(sessionHandler.HandleListByRange))

	mux.Handle("GET /api/reports", protected(reportHandler.HandleTotals))

	mux.Handle("GET /api/sync", protected(syncHandler.HandleStatus))
	mux.Handle("POST /api/sync", protected(syncHandler.HandleFlush))

	mux.Handle("GET /api/events", protected(eventsHandler.HandleStream))
}
