package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
)

// Aggregate rolls up effective session durations into buckets along the
// given dimension. Soft-deleted sessions and sessions whose task is deleted
// or missing contribute nothing. An empty input yields an empty result.
//
// Report groupings (task, category, month) come back sorted by total time
// descending; trend groupings (day, week) come back chronologically so they
// can feed a chart directly.
func Aggregate(sessions []domain.TimeSession, tasks map[string]domain.Task, groupBy domain.GroupBy, now time.Time) []domain.Bucket {
	type acc struct {
		bucket domain.Bucket
		sortAt time.Time
	}
	buckets := make(map[string]*acc)

	for i := range sessions {
		session := &sessions[i]
		if session.IsDeleted {
			continue
		}
		task, ok := tasks[session.TaskID]
		if !ok || task.IsDeleted {
			continue
		}

		key, label, periodStart := bucketKey(session, &task, groupBy)
		a, exists := buckets[key]
		if !exists {
			a = &acc{bucket: domain.Bucket{Key: key, Label: label}, sortAt: periodStart}
			buckets[key] = a
		}
		a.bucket.TotalSeconds += EffectiveSeconds(session, now)
		a.bucket.Count++
	}

	result := make([]*acc, 0, len(buckets))
	for _, a := range buckets {
		a.bucket.Formatted = FormatHuman(a.bucket.TotalSeconds)
		result = append(result, a)
	}

	switch groupBy {
	case domain.GroupByDay, domain.GroupByWeek:
		sort.Slice(result, func(i, j int) bool {
			return result[i].sortAt.Before(result[j].sortAt)
		})
	default:
		sort.Slice(result, func(i, j int) bool {
			if result[i].bucket.TotalSeconds != result[j].bucket.TotalSeconds {
				return result[i].bucket.TotalSeconds > result[j].bucket.TotalSeconds
			}
			return result[i].bucket.Key < result[j].bucket.Key
		})
	}

	out := make([]domain.Bucket, len(result))
	for i, a := range result {
		out[i] = a.bucket
	}
	return out
}

// bucketKey derives the grouping key, display label, and sortable period
// start for one session. Calendar periods use the session's start time in
// its own location; weeks start on Monday.
func bucketKey(session *domain.TimeSession, task *domain.Task, groupBy domain.GroupBy) (key, label string, periodStart time.Time) {
	start := session.StartTime

	switch groupBy {
	case domain.GroupByTask:
		label = task.Title
		if label == "" {
			label = "Unknown Task"
		}
		return session.TaskID, label, start

	case domain.GroupByCategory:
		name := task.CategoryName
		if name == "" {
			name = "Uncategorized"
		}
		return name, name, start

	case domain.GroupByDay:
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		return day.Format("2006-01-02"), day.Format("Mon Jan 2"), day

	case domain.GroupByWeek:
		week := startOfWeek(start)
		end := week.AddDate(0, 0, 6)
		return week.Format("2006-01-02"), fmt.Sprintf("%s – %s", week.Format("Jan 2"), end.Format("Jan 2")), week

	case domain.GroupByMonth:
		month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		return month.Format("2006-01"), month.Format("January 2006"), month
	}

	return session.TaskID, task.Title, start
}

// startOfWeek returns midnight of the Monday on or before t.
func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// TaskSource is the slice of the task store the report service needs.
type TaskSource interface {
	GetAll(ctx context.Context, userID string) ([]domain.Task, error)
}

// SessionSource is the slice of the session store the report service needs.
type SessionSource interface {
	ListByUser(ctx context.Context, userID string) ([]domain.TimeSession, error)
	ListByDateRange(ctx context.Context, userID string, start, end time.Time) ([]domain.TimeSession, error)
}

// ReportService fetches a user's sessions and tasks and produces rollups
// for the report and dashboard endpoints.
type ReportService struct {
	tasks    TaskSource
	sessions SessionSource
	now      func() time.Time
}

// NewReportService creates a ReportService. The clock defaults to time.Now.
func NewReportService(tasks TaskSource, sessions SessionSource) *ReportService {
	return &ReportService{tasks: tasks, sessions: sessions, now: time.Now}
}

// Totals aggregates all of a user's sessions along the given dimension.
// An optional date range narrows the sessions considered.
func (s *ReportService) Totals(ctx context.Context, userID string, groupBy domain.GroupBy, from, to *time.Time) ([]domain.Bucket, error) {
	if !groupBy.Valid() {
		return nil, fmt.Errorf("%w: unknown grouping %q", domain.ErrInvalidInput, groupBy)
	}

	var (
		sessions []domain.TimeSession
		err      error
	)
	if from != nil && to != nil {
		sessions, err = s.sessions.ListByDateRange(ctx, userID, *from, *to)
	} else {
		sessions, err = s.sessions.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	tasks, err := s.tasks.GetAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	byID := make(map[string]domain.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	return Aggregate(sessions, byID, groupBy, s.now()), nil
}

// TaskTotalSeconds sums the effective duration of every live session on one
// task, including a currently running one.
func (s *ReportService) TaskTotalSeconds(sessions []domain.TimeSession) int {
	total := 0
	now := s.now()
	for i := range sessions {
		if sessions[i].IsDeleted {
			continue
		}
		total += EffectiveSeconds(&sessions[i], now)
	}
	return total
}
