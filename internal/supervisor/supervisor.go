// Package supervisor runs a task and restarts it on settled filesystem
// changes. The loop races task completion against the debounced trigger;
// task failures are reported and swallowed, watch failures end supervision.
package supervisor

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/watcher"
)

// State is the supervisor's position in its lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateRunning          State = "running"
	StateWaitingForChange State = "waiting_for_change"
	StateRestarting       State = "restarting"
)

var errNoFactory = errors.New("task factory is required")

// Options controls supervision behavior.
type Options struct {
	// QuietWindow overrides the debounce window. Zero means the default.
	QuietWindow time.Duration
	// CancelOnRestart cancels a superseded task's context instead of
	// leaving it running unobserved.
	CancelOnRestart bool
	Logger          *logging.Logger
	Registry        *metrics.Registry
	Bus             *event.Bus[event.Event]
}

// Supervisor owns one watch session and its debouncer for the lifetime of
// a Run call.
type Supervisor struct {
	paths   []string
	factory Factory
	options Options

	logger   *logging.Logger
	registry *metrics.Registry
	bus      *event.Bus[event.Event]

	mu         sync.Mutex
	state      State
	generation uint64
	restarts   uint64
	lastChange time.Time
	lastKind   watcher.Kind

	openSession func() (watcher.Source, error)
}

// Status is a point-in-time snapshot for observers.
type Status struct {
	State      State        `json:"state"`
	Generation uint64       `json:"generation"`
	Restarts   uint64       `json:"restarts"`
	Paths      []string     `json:"paths"`
	LastChange time.Time    `json:"last_change,omitzero"`
	LastKind   watcher.Kind `json:"last_kind,omitempty"`
}

type taskRun struct {
	generation uint64
	done       chan error
	cancel     context.CancelFunc
}

// New prepares a supervisor for the given paths and factory.
func New(paths []string, factory Factory, options Options) *Supervisor {
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	supervisor := &Supervisor{
		paths:    paths,
		factory:  factory,
		options:  options,
		logger:   options.Logger,
		registry: registry,
		bus:      options.Bus,
		state:    StateIdle,
	}
	supervisor.openSession = func() (watcher.Source, error) {
		return watcher.NewSession(watcher.SessionOptions{
			Logger:   supervisor.logger,
			Registry: supervisor.registry,
		}, supervisor.paths...)
	}
	return supervisor
}

// Watch supervises factory-built tasks over paths until a fatal error or
// context cancellation.
func Watch(ctx context.Context, paths []string, factory Factory, options Options) error {
	return New(paths, factory, options).Run(ctx)
}

// Run executes the supervision loop. It returns only a fatal error: a
// *watcher.WatchSetupError from session construction, a
// *watcher.ChannelError from delivery, or the context's error.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.factory == nil {
		return errNoFactory
	}
	if ctx == nil {
		ctx = context.Background()
	}

	source, err := s.openSession()
	if err != nil {
		return err
	}
	defer source.Close()

	debouncer := watcher.NewDebouncer(source, watcher.DebouncerOptions{
		QuietWindow: s.options.QuietWindow,
		Logger:      s.logger,
		Registry:    s.registry,
		Bus:         s.bus,
	})
	defer debouncer.Close()

	for {
		run := s.launch(ctx)

		select {
		case taskErr := <-run.done:
			run.cancel()
			s.reportExit(run.generation, taskErr, false)
			s.setState(StateWaitingForChange)
			s.logInfo("task terminated, waiting for change", run.generation)

			trigger, waitErr := debouncer.Wait(ctx)
			if waitErr != nil {
				return waitErr
			}
			s.noteChange(trigger, run.generation)

		case trigger, ok := <-debouncer.Triggers():
			if !ok {
				run.cancel()
				return debouncer.Err()
			}
			s.release(run)
			s.noteChange(trigger, run.generation)

		case <-ctx.Done():
			run.cancel()
			return ctx.Err()
		}

		s.setState(StateRestarting)
		s.bumpRestarts()
		s.registry.IncRestart()
		s.publish(event.NewTaskEvent(event.TypeRestarting, s.Generation(), nil))
	}
}

// launch builds and starts the next task generation.
func (s *Supervisor) launch(ctx context.Context) *taskRun {
	taskCtx, cancel := context.WithCancel(ctx)
	task := s.factory.Build()

	generation := s.nextGeneration()
	s.setState(StateRunning)
	s.registry.IncTaskStarted()
	s.publish(event.NewTaskEvent(event.TypeTaskStarted, generation, nil))
	s.logInfo("task started", generation)

	done := make(chan error, 1)
	go func() {
		done <- task(taskCtx)
	}()

	return &taskRun{
		generation: generation,
		done:       done,
		cancel:     cancel,
	}
}

// release detaches a superseded task. Unless CancelOnRestart is set the
// task keeps running; its eventual exit is still reported.
func (s *Supervisor) release(run *taskRun) {
	if s.options.CancelOnRestart {
		run.cancel()
	}
	go func() {
		err := <-run.done
		s.reportExit(run.generation, err, true)
		run.cancel()
	}()
}

func (s *Supervisor) reportExit(generation uint64, err error, superseded bool) {
	fields := map[string]string{
		"generation": strconv.FormatUint(generation, 10),
	}
	if superseded {
		fields["superseded"] = "true"
	}

	if err == nil {
		s.publish(event.NewTaskEvent(event.TypeTaskExited, generation, nil))
		if superseded && s.logger != nil {
			s.logger.Debug("superseded task exited", fields)
		}
		return
	}

	if superseded && errors.Is(err, context.Canceled) {
		if s.logger != nil {
			s.logger.Debug("superseded task stopped", fields)
		}
		return
	}

	s.registry.IncTaskFailed()
	s.publish(event.NewTaskEvent(event.TypeTaskFailed, generation, err))
	if s.logger != nil {
		fields["error"] = err.Error()
		s.logger.Error("task failed", fields)
	}
}

func (s *Supervisor) noteChange(trigger watcher.Event, generation uint64) {
	s.mu.Lock()
	s.lastChange = trigger.OccurredAt
	s.lastKind = trigger.Kind
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("change detected, restarting", map[string]string{
			"generation": strconv.FormatUint(generation, 10),
			"kind":       string(trigger.Kind),
		})
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	if s == nil {
		return StateIdle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the number of tasks started so far.
func (s *Supervisor) Generation() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Restarts returns the number of change-driven restarts.
func (s *Supervisor) Restarts() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Status reports a snapshot for the status endpoint.
func (s *Supervisor) Status() Status {
	if s == nil {
		return Status{State: StateIdle}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, len(s.paths))
	copy(paths, s.paths)
	return Status{
		State:      s.state,
		Generation: s.generation,
		Restarts:   s.restarts,
		Paths:      paths,
		LastChange: s.lastChange,
		LastKind:   s.lastKind,
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) nextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Supervisor) bumpRestarts() {
	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
}

func (s *Supervisor) publish(published event.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(published)
}

func (s *Supervisor) logInfo(message string, generation uint64) {
	if s.logger == nil {
		return
	}
	s.logger.Info(message, map[string]string{
		"generation": strconv.FormatUint(generation, 10),
	})
}
