package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

const (
	TypeChangeDetected = "change_detected"
	TypeTaskStarted    = "task_started"
	TypeTaskExited     = "task_exited"
	TypeTaskFailed     = "task_failed"
	TypeRestarting     = "restarting"
	TypeWatchError     = "watch_error"
)

// ChangeEvent is a settled filesystem change trigger.
type ChangeEvent struct {
	EventType  string            `json:"type"`
	Kind       string            `json:"kind"`
	Paths      []string          `json:"paths,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

func NewChangeEvent(kind string, paths []string) ChangeEvent {
	return ChangeEvent{
		EventType:  TypeChangeDetected,
		Kind:       kind,
		Paths:      paths,
		OccurredAt: time.Now().UTC(),
	}
}

func (e ChangeEvent) Type() string {
	return e.EventType
}

func (e ChangeEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// TaskEvent captures supervised task lifecycle changes.
type TaskEvent struct {
	EventType  string            `json:"type"`
	Generation uint64            `json:"generation"`
	Error      string            `json:"error,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

func NewTaskEvent(eventType string, generation uint64, err error) TaskEvent {
	event := TaskEvent{
		EventType:  eventType,
		Generation: generation,
		OccurredAt: time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

func (e TaskEvent) Type() string {
	return e.EventType
}

func (e TaskEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// WatchErrorEvent reports a fatal watch subsystem failure.
type WatchErrorEvent struct {
	EventType  string    `json:"type"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewWatchErrorEvent(err error) WatchErrorEvent {
	event := WatchErrorEvent{
		EventType:  TypeWatchError,
		OccurredAt: time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

func (e WatchErrorEvent) Type() string {
	return e.EventType
}

func (e WatchErrorEvent) Timestamp() time.Time {
	return e.OccurredAt
}
