package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/event"
	"vigil/internal/metrics"
	"vigil/internal/watcher"
)

type fakeSource struct {
	events chan watcher.Event
	errs   chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan watcher.Event, 32),
		errs:   make(chan error, 4),
	}
}

func (s *fakeSource) Events() <-chan watcher.Event { return s.events }
func (s *fakeSource) Errors() <-chan error         { return s.errs }
func (s *fakeSource) Close() error                 { return nil }

func (s *fakeSource) change(path string) {
	s.events <- watcher.Event{Kind: watcher.KindModify, Paths: []string{path}, OccurredAt: time.Now().UTC()}
}

type harness struct {
	source     *fakeSource
	supervisor *Supervisor
	bus        *event.Bus[event.Event]
	events     <-chan event.Event
	runErr     chan error
	cancel     context.CancelFunc
}

func startHarness(t *testing.T, factory Factory, options Options) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := options.Registry
	if registry == nil {
		registry = &metrics.Registry{}
		options.Registry = registry
	}
	bus := options.Bus
	if bus == nil {
		bus = event.NewBus[event.Event](ctx, event.BusOptions{Name: "watch_events", Registry: registry})
		options.Bus = bus
	}
	if options.QuietWindow <= 0 {
		options.QuietWindow = 20 * time.Millisecond
	}

	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	source := newFakeSource()
	supervisor := New([]string{"/watched"}, factory, options)
	supervisor.openSession = func() (watcher.Source, error) {
		return source, nil
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- supervisor.Run(ctx)
	}()

	return &harness{
		source:     source,
		supervisor: supervisor,
		bus:        bus,
		events:     events,
		runErr:     runErr,
		cancel:     cancel,
	}
}

func (h *harness) waitForEvent(t *testing.T, eventType string) event.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case received := <-h.events:
			if received.Type() == eventType {
				return received
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func blockingFactory() Factory {
	return FactoryFunc(func() Task {
		return func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
	})
}

func TestSupervisorRestartsWhenChangeWinsTheRace(t *testing.T) {
	h := startHarness(t, blockingFactory(), Options{})

	h.waitForEvent(t, event.TypeTaskStarted)
	h.source.change("/watched/main.go")
	h.waitForEvent(t, event.TypeChangeDetected)
	h.waitForEvent(t, event.TypeRestarting)
	h.waitForEvent(t, event.TypeTaskStarted)

	if restarts := h.supervisor.Restarts(); restarts != 1 {
		t.Fatalf("expected 1 restart, got %d", restarts)
	}
	if generation := h.supervisor.Generation(); generation != 2 {
		t.Fatalf("expected generation 2, got %d", generation)
	}
}

func TestSupervisorWaitsForChangeAfterTaskExit(t *testing.T) {
	factory := FactoryFunc(func() Task {
		return func(context.Context) error {
			return nil
		}
	})
	h := startHarness(t, factory, Options{})

	h.waitForEvent(t, event.TypeTaskExited)

	deadline := time.After(2 * time.Second)
	for h.supervisor.State() != StateWaitingForChange {
		select {
		case <-deadline:
			t.Fatalf("expected waiting_for_change state, got %q", h.supervisor.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if restarts := h.supervisor.Restarts(); restarts != 0 {
		t.Fatalf("expected no restarts before a change, got %d", restarts)
	}

	h.source.change("/watched/main.go")
	h.waitForEvent(t, event.TypeRestarting)
	h.waitForEvent(t, event.TypeTaskStarted)
}

func TestSupervisorSurvivesAlwaysFailingTask(t *testing.T) {
	var starts atomic.Int64
	factory := FactoryFunc(func() Task {
		return func(context.Context) error {
			starts.Add(1)
			return errors.New("boom")
		}
	})
	h := startHarness(t, factory, Options{})

	h.waitForEvent(t, event.TypeTaskFailed)
	h.source.change("/watched/main.go")
	h.waitForEvent(t, event.TypeTaskFailed)
	h.source.change("/watched/main.go")
	h.waitForEvent(t, event.TypeTaskFailed)

	select {
	case err := <-h.runErr:
		t.Fatalf("supervision ended unexpectedly: %v", err)
	default:
	}
	if starts.Load() < 3 {
		t.Fatalf("expected at least 3 task starts, got %d", starts.Load())
	}
}

func TestSupervisorSetupFailureNeverStartsTask(t *testing.T) {
	var built atomic.Bool
	factory := FactoryFunc(func() Task {
		built.Store(true)
		return func(context.Context) error { return nil }
	})

	supervisor := New([]string{"/missing"}, factory, Options{Registry: &metrics.Registry{}})
	setupErr := &watcher.WatchSetupError{Path: "/missing", Err: errors.New("no such file")}
	supervisor.openSession = func() (watcher.Source, error) {
		return nil, setupErr
	}

	err := supervisor.Run(context.Background())
	var reported *watcher.WatchSetupError
	if !errors.As(err, &reported) {
		t.Fatalf("expected *WatchSetupError, got %v", err)
	}
	if built.Load() {
		t.Fatal("expected task factory to never run after setup failure")
	}
}

func TestSupervisorChannelErrorEndsSupervision(t *testing.T) {
	h := startHarness(t, blockingFactory(), Options{})

	h.waitForEvent(t, event.TypeTaskStarted)
	h.source.errs <- errors.New("watch backend lost")

	select {
	case err := <-h.runErr:
		var channelErr *watcher.ChannelError
		if !errors.As(err, &channelErr) {
			t.Fatalf("expected *ChannelError, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for supervision to end")
	}
}

func TestSupervisorCancelOnRestartStopsSupersededTask(t *testing.T) {
	cancelled := make(chan struct{}, 4)
	factory := FactoryFunc(func() Task {
		return func(ctx context.Context) error {
			<-ctx.Done()
			cancelled <- struct{}{}
			return ctx.Err()
		}
	})
	h := startHarness(t, factory, Options{CancelOnRestart: true})

	h.waitForEvent(t, event.TypeTaskStarted)
	h.source.change("/watched/main.go")
	h.waitForEvent(t, event.TypeRestarting)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected superseded task to be cancelled")
	}
}

func TestSupervisorLeavesSupersededTaskRunningByDefault(t *testing.T) {
	var stops atomic.Int64
	factory := FactoryFunc(func() Task {
		return func(ctx context.Context) error {
			<-ctx.Done()
			stops.Add(1)
			return ctx.Err()
		}
	})
	h := startHarness(t, factory, Options{})

	h.waitForEvent(t, event.TypeTaskStarted)
	h.source.change("/watched/main.go")
	h.waitForEvent(t, event.TypeTaskStarted)

	time.Sleep(50 * time.Millisecond)
	if stops.Load() != 0 {
		t.Fatalf("expected superseded task to keep running, got %d stops", stops.Load())
	}
}

func TestSupervisorRequiresFactory(t *testing.T) {
	supervisor := New([]string{"/watched"}, nil, Options{Registry: &metrics.Registry{}})
	if err := supervisor.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing factory")
	}
}

func TestSupervisorStopsOnContextCancel(t *testing.T) {
	h := startHarness(t, blockingFactory(), Options{})

	h.waitForEvent(t, event.TypeTaskStarted)
	h.cancel()

	select {
	case err := <-h.runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run to stop")
	}
}

func TestSupervisorStatusSnapshot(t *testing.T) {
	h := startHarness(t, blockingFactory(), Options{})

	h.waitForEvent(t, event.TypeTaskStarted)
	h.source.change("/watched/main.go")
	h.waitForEvent(t, event.TypeTaskStarted)

	status := h.supervisor.Status()
	if status.Restarts != 1 {
		t.Fatalf("expected 1 restart in status, got %d", status.Restarts)
	}
	if status.LastKind != watcher.KindModify {
		t.Fatalf("expected modify as last kind, got %q", status.LastKind)
	}
	if len(status.Paths) != 1 || status.Paths[0] != "/watched" {
		t.Fatalf("unexpected status paths: %v", status.Paths)
	}
	if status.LastChange.IsZero() {
		t.Fatal("expected last change timestamp to be set")
	}
}
