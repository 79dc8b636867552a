package watcher

import (
	"context"
	"sync"
	"time"

	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
)

// DefaultQuietWindow is the inactivity required after the last relevant
// notification before a burst counts as settled.
const DefaultQuietWindow = 200 * time.Millisecond

// DebouncerOptions controls debounce behavior.
type DebouncerOptions struct {
	QuietWindow time.Duration
	Logger      *logging.Logger
	Registry    *metrics.Registry
	Bus         *event.Bus[event.Event]
}

// Debouncer is the single consumer of a Source. It coalesces bursts of
// relevant notifications into one trigger per settled burst, carrying the
// last notification seen. Irrelevant kinds neither trigger nor re-arm the
// quiet window. A delivery error from the source is fatal: the trigger
// channel is closed and Err reports a *ChannelError.
type Debouncer struct {
	source   Source
	window   time.Duration
	triggers chan Event
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	err      error
	logger   *logging.Logger
	registry *metrics.Registry
	bus      *event.Bus[event.Event]
}

// NewDebouncer starts debouncing the source immediately.
func NewDebouncer(source Source, options DebouncerOptions) *Debouncer {
	window := options.QuietWindow
	if window <= 0 {
		window = DefaultQuietWindow
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	debouncer := &Debouncer{
		source:   source,
		window:   window,
		triggers: make(chan Event, 1),
		done:     make(chan struct{}),
		logger:   options.Logger,
		registry: registry,
		bus:      options.Bus,
	}
	go debouncer.run()
	return debouncer
}

// Triggers delivers at most one event per settled burst. The channel is
// closed when the source fails; Err then reports the cause.
func (d *Debouncer) Triggers() <-chan Event {
	return d.triggers
}

// Err returns the fatal error that ended debouncing, if any.
func (d *Debouncer) Err() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Wait blocks until the next settled change, a fatal source error, or
// context cancellation.
func (d *Debouncer) Wait(ctx context.Context) (Event, error) {
	select {
	case trigger, ok := <-d.triggers:
		if !ok {
			return Event{}, d.Err()
		}
		return trigger, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close stops the consumer goroutine. It does not close the source.
func (d *Debouncer) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		close(d.done)
	})
}

// run owns the source channels. Waiting for the quiet window suspends in
// select on a timer; there is no polling.
func (d *Debouncer) run() {
	timer := time.NewTimer(d.window)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending Event
	armed := false

	for {
		var settled <-chan time.Time
		if armed {
			settled = timer.C
		}

		select {
		case notification, ok := <-d.source.Events():
			if !ok {
				return
			}
			if !notification.Kind.Relevant() {
				d.registry.IncEventIgnored()
				continue
			}
			pending = notification
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d.window)
			armed = true

		case <-settled:
			armed = false
			d.deliver(pending)

		case err, ok := <-d.source.Errors():
			if !ok {
				return
			}
			d.fail(&ChannelError{Err: err})
			return

		case <-d.done:
			return
		}
	}
}

func (d *Debouncer) deliver(trigger Event) {
	select {
	case d.triggers <- trigger:
		d.registry.IncTriggerFired()
		if d.bus != nil {
			d.bus.Publish(event.NewChangeEvent(string(trigger.Kind), trigger.Paths))
		}
		if d.logger != nil {
			d.logger.Debug("change settled", map[string]string{
				"kind": string(trigger.Kind),
				"path": firstPath(trigger.Paths),
			})
		}
	default:
		// A trigger is already pending; this burst folds into it.
		d.registry.IncTriggerCoalesced()
	}
}

func (d *Debouncer) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Error("watch channel failed", map[string]string{
			"error": err.Error(),
		})
	}
	if d.bus != nil {
		d.bus.Publish(event.NewWatchErrorEvent(err))
	}
	close(d.triggers)
}
