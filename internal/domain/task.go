package domain

import (
	"context"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusActive     TaskStatus = "active"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusArchived   TaskStatus = "archived"
)

// Task is a unit of work a user tracks time against. Sessions reference a
// task by ID but are stored independently; deleting a task does not cascade
// to its sessions.
type Task struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Notes        string     `json:"notes,omitempty"`
	Status       TaskStatus `json:"status"`
	CategoryName string     `json:"category_name,omitempty"`
	IsDeleted    bool       `json:"is_deleted"`
	// Version increments on every write so sync can at least detect when
	// the remote copy moved underneath a dirty local record. Resolution is
	// still last-write-wins.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskBackend is the remote data API surface for tasks. Implementations
// report unreachable backends as ErrUnavailable and missing records as
// ErrNotFound so callers can tell the two apart.
type TaskBackend interface {
	GetTasks(ctx context.Context, userID string) ([]Task, error)
	GetTaskByID(ctx context.Context, id string) (*Task, error)
	CreateTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id string) error
}
