package event

import (
	"context"
	"testing"
	"time"

	"vigil/internal/metrics"
)

func testBus(t *testing.T, opts BusOptions) *Bus[Event] {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = &metrics.Registry{}
	}
	bus := NewBus[Event](context.Background(), opts)
	t.Cleanup(bus.Close)
	return bus
}

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := testBus(t, BusOptions{Name: "watch_events"})
	output, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewChangeEvent("modify", []string{"/tmp/main.go"}))

	select {
	case received := <-output:
		change, ok := received.(ChangeEvent)
		if !ok {
			t.Fatalf("expected ChangeEvent, got %T", received)
		}
		if change.Kind != "modify" {
			t.Fatalf("expected modify kind, got %q", change.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusFilteredSubscriptionSkipsOtherTypes(t *testing.T) {
	bus := testBus(t, BusOptions{})
	output, cancel := bus.SubscribeTypes(TypeTaskFailed)
	defer cancel()

	bus.Publish(NewChangeEvent("create", nil))
	bus.Publish(NewTaskEvent(TypeTaskFailed, 1, context.DeadlineExceeded))

	select {
	case received := <-output:
		if received.Type() != TypeTaskFailed {
			t.Fatalf("expected task_failed, got %q", received.Type())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case extra := <-output:
		t.Fatalf("expected no further events, got %q", extra.Type())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	registry := &metrics.Registry{}
	bus := testBus(t, BusOptions{Name: "watch_events", SubscriberBufferSize: 1, Registry: registry})
	_, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(NewChangeEvent("modify", nil))
	bus.Publish(NewChangeEvent("modify", nil))

	if dropped := bus.Dropped(); dropped != 1 {
		t.Fatalf("expected 1 dropped event, got %d", dropped)
	}
}

func TestBusClosesSubscribersOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus[Event](ctx, BusOptions{Registry: &metrics.Registry{}})
	output, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	cancel()

	select {
	case _, ok := <-output:
		if ok {
			t.Fatal("expected closed channel after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func TestBusPublishAfterCloseIsNoop(t *testing.T) {
	bus := testBus(t, BusOptions{})
	bus.Close()
	bus.Publish(NewChangeEvent("remove", nil))

	if count := bus.SubscriberCount(); count != 0 {
		t.Fatalf("expected no subscribers, got %d", count)
	}
}
