package watcher

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a filesystem notification.
type Kind string

const (
	KindCreate Kind = "create"
	KindModify Kind = "modify"
	KindRemove Kind = "remove"
	KindOther  Kind = "other"
)

// Relevant reports whether the kind participates in debouncing.
func (k Kind) Relevant() bool {
	switch k {
	case KindCreate, KindModify, KindRemove:
		return true
	default:
		return false
	}
}

// Event is a single filesystem change.
type Event struct {
	Kind       Kind
	Paths      []string
	OccurredAt time.Time
}

// Source delivers filesystem events and delivery errors for one session.
type Source interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// ErrNoPaths is returned when a session is requested without any paths.
var ErrNoPaths = errors.New("at least one watch path is required")

// WatchSetupError reports a path that could not be registered with the
// OS watch backend. It is fatal and never retried.
type WatchSetupError struct {
	Path string
	Err  error
}

func (e *WatchSetupError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("watch setup failed: %v", e.Err)
	}
	return fmt.Sprintf("watch setup failed for %s: %v", e.Path, e.Err)
}

func (e *WatchSetupError) Unwrap() error {
	return e.Err
}

// ChannelError reports a failure of the notification delivery itself.
// It ends the watch session.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("watch channel failed: %v", e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
