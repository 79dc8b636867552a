package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry collects supervision counters for the /metrics endpoint.
type Registry struct {
	eventsObserved    atomic.Int64
	eventsDropped     atomic.Int64
	eventsIgnored     atomic.Int64
	triggersFired     atomic.Int64
	triggersCoalesced atomic.Int64
	tasksStarted      atomic.Int64
	tasksFailed       atomic.Int64
	restarts          atomic.Int64

	mu        sync.Mutex
	published map[string]int64
	dropped   map[string]int64
}

var Default = &Registry{}

func (r *Registry) IncEventObserved() {
	if r == nil {
		return
	}
	r.eventsObserved.Add(1)
}

func (r *Registry) IncEventDropped() {
	if r == nil {
		return
	}
	r.eventsDropped.Add(1)
}

func (r *Registry) IncEventIgnored() {
	if r == nil {
		return
	}
	r.eventsIgnored.Add(1)
}

func (r *Registry) IncTriggerFired() {
	if r == nil {
		return
	}
	r.triggersFired.Add(1)
}

func (r *Registry) IncTriggerCoalesced() {
	if r == nil {
		return
	}
	r.triggersCoalesced.Add(1)
}

func (r *Registry) IncTaskStarted() {
	if r == nil {
		return
	}
	r.tasksStarted.Add(1)
}

func (r *Registry) IncTaskFailed() {
	if r == nil {
		return
	}
	r.tasksFailed.Add(1)
}

func (r *Registry) IncRestart() {
	if r == nil {
		return
	}
	r.restarts.Add(1)
}

func (r *Registry) Restarts() int64 {
	if r == nil {
		return 0
	}
	return r.restarts.Load()
}

func (r *Registry) EventsDropped() int64 {
	if r == nil {
		return 0
	}
	return r.eventsDropped.Load()
}

func (r *Registry) TriggersCoalesced() int64 {
	if r == nil {
		return 0
	}
	return r.triggersCoalesced.Load()
}

// IncBusPublished records an event published on a named bus.
func (r *Registry) IncBusPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.incLabeled(&r.published, bus, eventType)
}

// IncBusDropped records an event dropped by a slow bus subscriber.
func (r *Registry) IncBusDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.incLabeled(&r.dropped, bus, eventType)
}

func (r *Registry) incLabeled(target *map[string]int64, bus, eventType string) {
	if bus == "" {
		bus = "event_bus"
	}
	if eventType == "" {
		eventType = "unknown"
	}
	key := bus + "\x00" + eventType
	r.mu.Lock()
	if *target == nil {
		*target = make(map[string]int64)
	}
	(*target)[key]++
	r.mu.Unlock()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "vigil_events_observed_total", "Raw filesystem notifications accepted into the session queue", r.eventsObserved.Load())
	writeCounter(writer, "vigil_events_dropped_total", "Raw filesystem notifications dropped because the session queue was full", r.eventsDropped.Load())
	writeCounter(writer, "vigil_events_ignored_total", "Filesystem notifications ignored for an irrelevant kind", r.eventsIgnored.Load())
	writeCounter(writer, "vigil_triggers_fired_total", "Settled change triggers delivered to the supervisor", r.triggersFired.Load())
	writeCounter(writer, "vigil_triggers_coalesced_total", "Settled change triggers merged into one already pending", r.triggersCoalesced.Load())
	writeCounter(writer, "vigil_tasks_started_total", "Task invocations", r.tasksStarted.Load())
	writeCounter(writer, "vigil_tasks_failed_total", "Task invocations that returned an error", r.tasksFailed.Load())
	writeCounter(writer, "vigil_restarts_total", "Task restarts caused by a settled change", r.restarts.Load())

	r.writeLabeled(writer, "vigil_bus_events_published_total", "Events published on internal buses", r.snapshotLabeled(&r.published))
	r.writeLabeled(writer, "vigil_bus_events_dropped_total", "Events dropped by slow bus subscribers", r.snapshotLabeled(&r.dropped))

	return nil
}

func (r *Registry) snapshotLabeled(source *map[string]int64) map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(*source))
	for key, value := range *source {
		out[key] = value
	}
	return out
}

func (r *Registry) writeLabeled(writer io.Writer, metric, help string, values map[string]int64) {
	if len(values) == 0 {
		return
	}
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		bus, eventType, _ := strings.Cut(key, "\x00")
		fmt.Fprintf(writer, "%s{bus=%s,type=%s} %d\n", metric, formatLabel(bus), formatLabel(eventType), values[key])
	}
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
