// Package process tracks the operating-system processes spawned for
// supervised tasks so shutdown can stop every generation that is still
// running, including superseded ones the supervisor left behind.
package process

import (
	"context"
	"errors"
	"sync"
	"time"
)

// defaultStopTimeout bounds how long StopAll waits for a process to exit
// after SIGTERM before escalating.
const defaultStopTimeout = 5 * time.Second

var ErrProcessNotFound = errors.New("process not running")

// Entry describes one live task process.
type Entry struct {
	PID        int
	PGID       int
	Generation uint64
	Name       string
	Wait       func(context.Context) error
}

// Registry is a concurrency-safe set of live task processes keyed by PID.
type Registry struct {
	mu      sync.Mutex
	entries map[int]Entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[int]Entry),
	}
}

func (r *Registry) Register(pid, pgid int, generation uint64, name string) {
	r.RegisterWithWait(pid, pgid, generation, name, nil)
}

// RegisterWithWait records a process together with a wait hook. The hook is
// preferred over PID polling when the registry needs to await exit, because
// only the parent can reap the child and observe its real status.
func (r *Registry) RegisterWithWait(pid, pgid int, generation uint64, name string, wait func(context.Context) error) {
	if r == nil || pid <= 0 {
		return
	}
	r.mu.Lock()
	r.entries[pid] = Entry{
		PID:        pid,
		PGID:       pgid,
		Generation: generation,
		Name:       name,
		Wait:       wait,
	}
	r.mu.Unlock()
}

func (r *Registry) Unregister(pid int) {
	if r == nil || pid <= 0 {
		return
	}
	r.mu.Lock()
	delete(r.entries, pid)
	r.mu.Unlock()
}

// Active returns a snapshot of the registered processes.
func (r *Registry) Active() []Entry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}

// Stop terminates a single process group: SIGTERM, a bounded wait, then
// SIGKILL. A process that already exited reports ErrProcessNotFound.
func Stop(ctx context.Context, pid, pgid int, wait func(context.Context) error) error {
	return stopProcess(ctx, pid, pgid, wait)
}

// StopAll terminates every registered process group and removes the
// entries. Processes that already exited are not an error.
func (r *Registry) StopAll(ctx context.Context) error {
	entries := r.Active()

	var stopErr error
	for _, entry := range entries {
		if err := stopProcess(ctx, entry.PID, entry.PGID, entry.Wait); err != nil && !errors.Is(err, ErrProcessNotFound) {
			stopErr = errors.Join(stopErr, err)
		}
	}
	if len(entries) > 0 {
		r.mu.Lock()
		for _, entry := range entries {
			delete(r.entries, entry.PID)
		}
		r.mu.Unlock()
	}
	return stopErr
}
