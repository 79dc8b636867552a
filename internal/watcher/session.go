package watcher

import (
	"sync"
	"time"

	"vigil/internal/logging"
	"vigil/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

const (
	sessionQueueSize = 16
	sessionErrorSize = 4
)

// SessionOptions controls session behavior.
type SessionOptions struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// Session owns one fsnotify subscription for a fixed, non-recursive set of
// paths and republishes its notifications through a bounded queue.
type Session struct {
	watcher   *fsnotify.Watcher
	paths     []string
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	logger    *logging.Logger
	registry  *metrics.Registry
}

var _ Source = &Session{}

// NewSession registers a non-recursive watch for every path. Each path is
// watched exactly once; duplicates are collapsed. Any registration failure
// releases the underlying watcher and returns a *WatchSetupError.
func NewSession(options SessionOptions, paths ...string) (*Session, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &WatchSetupError{Err: err}
	}

	seen := make(map[string]struct{}, len(paths))
	watched := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, duplicate := seen[path]; duplicate {
			continue
		}
		seen[path] = struct{}{}
		if err := notifier.Add(path); err != nil {
			_ = notifier.Close()
			return nil, &WatchSetupError{Path: path, Err: err}
		}
		watched = append(watched, path)
	}

	session := &Session{
		watcher:  notifier,
		paths:    watched,
		events:   make(chan Event, sessionQueueSize),
		errors:   make(chan error, sessionErrorSize),
		done:     make(chan struct{}),
		logger:   options.Logger,
		registry: registry,
	}

	go session.forward()

	if session.logger != nil {
		for _, path := range watched {
			session.logger.Debug("watching path", map[string]string{
				"path": path,
			})
		}
	}

	return session, nil
}

// Events returns the bounded notification queue.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Errors returns delivery failures from the watch backend.
func (s *Session) Errors() <-chan error {
	return s.errors
}

// Paths returns the watched paths in registration order.
func (s *Session) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Close releases the OS watch. Safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

// forward owns the fsnotify channels. Sends into the session queue never
// block: when the queue is full the notification is dropped and counted.
func (s *Session) forward() {
	for {
		select {
		case raw, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.enqueue(Event{
				Kind:       kindOf(raw.Op),
				Paths:      []string{raw.Name},
				OccurredAt: time.Now().UTC(),
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			case <-s.done:
				return
			default:
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) enqueue(event Event) {
	select {
	case s.events <- event:
		s.registry.IncEventObserved()
	case <-s.done:
	default:
		s.registry.IncEventDropped()
		if s.logger != nil {
			s.logger.Debug("session queue full, dropping notification", map[string]string{
				"path": firstPath(event.Paths),
				"kind": string(event.Kind),
			})
		}
	}
}

func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Create):
		return KindCreate
	case op.Has(fsnotify.Write):
		return KindModify
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return KindRemove
	default:
		return KindOther
	}
}

func firstPath(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}
