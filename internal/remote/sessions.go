package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
)

// GetSessionsByTaskID fetches every session attached to a task.
func (c *Client) GetSessionsByTaskID(ctx context.Context, taskID string) ([]domain.TimeSession, error) {
	var sessions []domain.TimeSession
	query := url.Values{"task_id": {taskID}}
	if _, err := c.do(ctx, http.MethodGet, "/sessions", query, nil, &sessions); err != nil {
		return nil, fmt.Errorf("get sessions by task: %w", err)
	}
	return sessions, nil
}

// GetUserSessions fetches every session belonging to a user.
func (c *Client) GetUserSessions(ctx context.Context, userID string) ([]domain.TimeSession, error) {
	var sessions []domain.TimeSession
	query := url.Values{"user_id": {userID}}
	if _, err := c.do(ctx, http.MethodGet, "/sessions", query, nil, &sessions); err != nil {
		return nil, fmt.Errorf("get user sessions: %w", err)
	}
	return sessions, nil
}

// GetSessionsByDateRange fetches a user's sessions that started within
// [start, end].
func (c *Client) GetSessionsByDateRange(ctx context.Context, userID string, start, end time.Time) ([]domain.TimeSession, error) {
	var sessions []domain.TimeSession
	query := url.Values{
		"user_id": {userID},
		"from":    {start.Format(time.RFC3339)},
		"to":      {end.Format(time.RFC3339)},
	}
	if _, err := c.do(ctx, http.MethodGet, "/sessions", query, nil, &sessions); err != nil {
		return nil, fmt.Errorf("get sessions by range: %w", err)
	}
	return sessions, nil
}

// CreateSession persists a new session record.
func (c *Client) CreateSession(ctx context.Context, session *domain.TimeSession) error {
	if _, err := c.do(ctx, http.MethodPost, "/sessions", nil, session, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSession replaces a session record. Soft deletes also travel through
// this path with IsDeleted set.
func (c *Client) UpdateSession(ctx context.Context, session *domain.TimeSession) error {
	status, err := c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(session.ID), nil, session, session)
	if err != nil {
		if status == http.StatusNotFound {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
