package handler

import (
	"time"

	"github.com/msomdec/tasktide/internal/domain"
)

// UserDTO is the JSON representation of a user. The password hash never
// leaves the server.
type UserDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toUserDTO(u *domain.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   u.UpdatedAt.Format(time.RFC3339),
	}
}

// TaskDTO is the JSON representation of a task.
type TaskDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Notes        string `json:"notes"`
	Status       string `json:"status"`
	CategoryName string `json:"categoryName"`
	Version      int64  `json:"version"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func toTaskDTO(t *domain.Task) TaskDTO {
	return TaskDTO{
		ID:           t.ID,
		Title:        t.Title,
		Notes:        t.Notes,
		Status:       string(t.Status),
		CategoryName: t.CategoryName,
		Version:      t.Version,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}
}

func toTaskDTOs(tasks []domain.Task) []TaskDTO {
	dtos := make([]TaskDTO, len(tasks))
	for i := range tasks {
		dtos[i] = toTaskDTO(&tasks[i])
	}
	return dtos
}

// SessionDTO is the JSON representation of a time session.
type SessionDTO struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"taskId"`
	StartTime string  `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Duration  string  `json:"duration"`
	Notes     string  `json:"notes"`
	Active    bool    `json:"active"`
}

func toSessionDTO(s *domain.TimeSession) SessionDTO {
	dto := SessionDTO{
		ID:        s.ID,
		TaskID:    s.TaskID,
		StartTime: s.StartTime.Format(time.RFC3339),
		Duration:  s.Duration,
		Notes:     s.Notes,
		Active:    s.Active(),
	}
	if s.EndTime != nil {
		end := s.EndTime.Format(time.RFC3339)
		dto.EndTime = &end
	}
	return dto
}

func toSessionDTOs(sessions []domain.TimeSession) []SessionDTO {
	dtos := make([]SessionDTO, len(sessions))
	for i := range sessions {
		dtos[i] = toSessionDTO(&sessions[i])
	}
	return dtos
}
