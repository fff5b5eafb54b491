package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/msomdec/tasktide/internal/domain"
)

// GetTasks fetches all tasks belonging to a user, including soft-deleted
// ones; exclusion is the aggregator's job.
func (c *Client) GetTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	var tasks []domain.Task
	query := url.Values{"user_id": {userID}}
	if _, err := c.do(ctx, http.MethodGet, "/tasks", query, nil, &tasks); err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	return tasks, nil
}

// GetTaskByID fetches one task. A missing record is ErrNotFound.
func (c *Client) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	status, err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &task)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// CreateTask persists a new task. The backend echoes the stored record,
// which overwrites the input so server-assigned fields come back.
func (c *Client) CreateTask(ctx context.Context, task *domain.Task) error {
	if _, err := c.do(ctx, http.MethodPost, "/tasks", nil, task, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// UpdateTask replaces a task record.
func (c *Client) UpdateTask(ctx context.Context, task *domain.Task) error {
	status, err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(task.ID), nil, task, task)
	if err != nil {
		if status == http.StatusNotFound {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// DeleteTask removes a task record on the backend.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	status, err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil, nil)
	if err != nil {
		var ae *apiError
		if status == http.StatusNotFound && errors.As(err, &ae) {
			// Deleting an already-gone record is success for a retryable sync.
			return nil
		}
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
