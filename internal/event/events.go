package event

import "github.com/msomdec/tasktide/internal/domain"

// Kind identifies what happened to the subject of an event.
type Kind string

const (
	KindLoaded  Kind = "loaded"
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
	KindStopped Kind = "stopped"
	KindChanged Kind = "changed"
)

// TaskEvent announces a change in the task store. Task is set for
// single-record events; Tasks is set for collection loads. UserID scopes
// delivery to the owning user's subscribers and is never serialized.
type TaskEvent struct {
	Kind   Kind          `json:"kind"`
	UserID string        `json:"-"`
	Task   *domain.Task  `json:"task,omitempty"`
	Tasks  []domain.Task `json:"tasks,omitempty"`
}

// SessionEvent announces a change in the session store. Session is set for
// single-record events; Sessions is set for collection loads.
type SessionEvent struct {
	Kind     Kind                 `json:"kind"`
	Session  *domain.TimeSession  `json:"session,omitempty"`
	Sessions []domain.TimeSession `json:"sessions,omitempty"`
}

// TickEvent carries the recomputed elapsed time of a running session,
// published once per second by the tracker.
type TickEvent struct {
	SessionID string `json:"sessionId"`
	TaskID    string `json:"taskId"`
	UserID    string `json:"-"`
	Seconds   int    `json:"seconds"`
	Elapsed   string `json:"elapsed"`
}

// ErrorEvent surfaces a store-level failure to passive observers. The
// failing operation also returns the error to its direct caller.
type ErrorEvent struct {
	Op  string
	Err error
}

// Bus bundles the per-category feeds wired through the application.
type Bus struct {
	Tasks    *Feed[TaskEvent]
	Sessions *Feed[SessionEvent]
	Ticks    *Feed[TickEvent]
	Errors   *Feed[ErrorEvent]
}

// NewBus creates a bus with all feeds initialized.
func NewBus() *Bus {
	return &Bus{
		Tasks:    NewFeed[TaskEvent](),
		Sessions: NewFeed[SessionEvent](),
		Ticks:    NewFeed[TickEvent](),
		Errors:   NewFeed[ErrorEvent](),
	}
}

// Close shuts down every feed on the bus.
func (b *Bus) Close() {
	b.Tasks.Close()
	b.Sessions.Close()
	b.Ticks.Close()
	b.Errors.Close()
}
