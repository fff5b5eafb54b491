package domain

import (
	"context"
	"time"
)

// TimeSession is a start/stop work interval attached to a task.
//
// EndTime is nil while the session is running. Duration holds the stored
// textual interval written when the session stops; it is authoritative when
// present but may be stale or missing even for finished sessions, so
// consumers derive the effective duration through the calculator rather
// than reading this field directly.
type TimeSession struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	UserID    string     `json:"user_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  string     `json:"duration,omitempty"`
	IsDeleted bool       `json:"is_deleted"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Active reports whether the session is still running.
func (s *TimeSession) Active() bool {
	return s.EndTime == nil
}

// SessionBackend is the remote data API surface for time sessions. Deletes
// are soft: callers flip IsDeleted through Update rather than removing rows,
// so the backend interface carries no hard-delete operation.
type SessionBackend interface {
	GetSessionsByTaskID(ctx context.Context, taskID string) ([]TimeSession, error)
	GetUserSessions(ctx context.Context, userID string) ([]TimeSession, error)
	GetSessionsByDateRange(ctx context.Context, userID string, start, end time.Time) ([]TimeSession, error)
	CreateSession(ctx context.Context, session *TimeSession) error
	UpdateSession(ctx context.Context, session *TimeSession) error
}
