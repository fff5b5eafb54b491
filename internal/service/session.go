package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msomdec/tasktide/internal/domain"
	"github.com/msomdec/tasktide/internal/event"
)

// SessionService adapts the remote session backend for the application:
// it hides soft-deleted records, stamps durations on stop, and publishes
// session events. Backend failures are published on the error feed AND
// returned, so consumers may react directly or observe passively.
//
// The service does not enforce a single active session per task; that is
// the caller's responsibility.
type SessionService struct {
	backend domain.SessionBackend
	bus     *event.Bus
	now     func() time.Time
}

// NewSessionService creates a SessionService. The clock defaults to
// time.Now.
func NewSessionService(backend domain.SessionBackend, bus *event.Bus) *SessionService {
	return &SessionService{backend: backend, bus: bus, now: time.Now}
}

// WithSessionClock overrides the service clock, used by tests.
func (s *SessionService) WithSessionClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Start creates a running session on the given task: start time now, no
// end time, no stored duration.
func (s *SessionService) Start(ctx context.Context, userID, taskID string) (*domain.TimeSession, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", domain.ErrInvalidInput)
	}

	session := &domain.TimeSession{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		UserID:    userID,
		StartTime: s.now(),
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}

	if err := s.backend.CreateSession(ctx, session); err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.start", Err: err})
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.bus.Sessions.Publish(event.SessionEvent{Kind: event.KindCreated, Session: session})
	return session, nil
}

// Stop finishes a running session: sets the end time and persists the
// elapsed duration in the canonical clock format.
func (s *SessionService) Stop(ctx context.Context, userID, id string) (*domain.TimeSession, error) {
	session, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		return nil, fmt.Errorf("%w: session already stopped", domain.ErrInvalidInput)
	}

	now := s.now()
	session.EndTime = &now
	session.Duration = FormatClock(EffectiveSeconds(session, now))
	session.UpdatedAt = now

	if err := s.backend.UpdateSession(ctx, session); err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.stop", Err: err})
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.bus.Sessions.Publish(event.SessionEvent{Kind: event.KindStopped, Session: session})
	return session, nil
}

// SessionUpdate carries the mutable session fields; nil fields are left
// untouched.
type SessionUpdate struct {
	Notes    *string
	Duration *string
}

// Update edits a session's notes or stored duration.
func (s *SessionService) Update(ctx context.Context, userID, id string, upd SessionUpdate) (*domain.TimeSession, error) {
	session, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upd.Notes != nil {
		session.Notes = *upd.Notes
	}
	if upd.Duration != nil {
		session.Duration = *upd.Duration
	}
	session.UpdatedAt = s.now()

	if err := s.backend.UpdateSession(ctx, session); err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.update", Err: err})
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.bus.Sessions.Publish(event.SessionEvent{Kind: event.KindUpdated, Session: session})
	return session, nil
}

// Delete soft-deletes a session. The record stays in storage with its
// deletion flag set and disappears from every read and aggregation.
func (s *SessionService) Delete(ctx context.Context, userID, id string) error {
	session, err := s.find(ctx, userID, id)
	if err != nil {
		return err
	}

	session.IsDeleted = true
	session.UpdatedAt = s.now()

	if err := s.backend.UpdateSession(ctx, session); err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.delete", Err: err})
		return fmt.Errorf("update session: %w", err)
	}

	s.bus.Sessions.Publish(event.SessionEvent{Kind: event.KindDeleted, Session: session})
	return nil
}

// ListByTask returns the live sessions attached to a task.
func (s *SessionService) ListByTask(ctx context.Context, taskID string) ([]domain.TimeSession, error) {
	sessions, err := s.backend.GetSessionsByTaskID(ctx, taskID)
	if err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.list_by_task", Err: err})
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	result := live(sessions)
	s.bus.Sessions.Publish(event.SessionEvent{Kind: event.KindLoaded, Sessions: result})
	return result, nil
}

// ListByUser returns all of a user's live sessions.
func (s *SessionService) ListByUser(ctx context.Context, userID string) ([]domain.TimeSession, error) {
	sessions, err := s.backend.GetUserSessions(ctx, userID)
	if err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.list_by_user", Err: err})
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	return live(sessions), nil
}

// ListByDateRange returns a user's live sessions started within [start, end].
func (s *SessionService) ListByDateRange(ctx context.Context, userID string, start, end time.Time) ([]domain.TimeSession, error) {
	sessions, err := s.backend.GetSessionsByDateRange(ctx, userID, start, end)
	if err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.list_by_range", Err: err})
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	return live(sessions), nil
}

// ActiveSession returns the user's currently running session, or nil when
// none is running.
func (s *SessionService) ActiveSession(ctx context.Context, userID string) (*domain.TimeSession, error) {
	sessions, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Active() {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// find locates one of the user's sessions by ID, skipping deleted records.
func (s *SessionService) find(ctx context.Context, userID, id string) (*domain.TimeSession, error) {
	sessions, err := s.backend.GetUserSessions(ctx, userID)
	if err != nil {
		s.bus.Errors.Publish(event.ErrorEvent{Op: "session.find", Err: err})
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	for i := range sessions {
		if sessions[i].ID == id && !sessions[i].IsDeleted {
			return &sessions[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

// live filters out soft-deleted sessions.
func live(sessions []domain.TimeSession) []domain.TimeSession {
	out := make([]domain.TimeSession, 0, len(sessions))
	for _, session := range sessions {
		if !session.IsDeleted {
			out = append(out, session)
		}
	}
	return out
}
