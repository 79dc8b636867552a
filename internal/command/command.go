// Package command adapts a configured argv into supervised tasks. Every
// Build starts a fresh process; the task finishes when the process exits
// and stops the whole process group when its context is cancelled.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"vigil/internal/logging"
	"vigil/internal/process"
	"vigil/internal/supervisor"
)

// stopGracePeriod bounds how long a cancelled task waits between SIGTERM
// and SIGKILL.
const stopGracePeriod = 5 * time.Second

var errEmptyArgv = errors.New("command requires at least one argument")

// Runner builds tasks that run one command per supervisor generation.
type Runner struct {
	// Argv is the command and its arguments.
	Argv []string
	// Dir is the working directory. Empty means inherit.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// UsePty allocates a pseudo-terminal so the command keeps colored,
	// interactive-style output.
	UsePty bool
	// Stdout receives command output. Nil means os.Stdout.
	Stdout io.Writer
	// Processes, when set, tracks the live process for shutdown cleanup.
	Processes *process.Registry
	Logger    *logging.Logger

	generation atomic.Uint64
}

var _ supervisor.Factory = (*Runner)(nil)

// Build returns a task that starts the command and waits for it.
func (r *Runner) Build() supervisor.Task {
	generation := r.generation.Add(1)
	return func(ctx context.Context) error {
		return r.runOnce(ctx, generation)
	}
}

func (r *Runner) runOnce(ctx context.Context, generation uint64) error {
	if len(r.Argv) == 0 {
		return errEmptyArgv
	}

	cmd, output, err := r.start()
	if err != nil {
		return fmt.Errorf("start %s: %w", r.name(), err)
	}

	pid := cmd.Process.Pid
	pgid := process.GroupID(pid)

	exited := make(chan struct{})
	var exitErr error
	go func() {
		if output != nil {
			_, _ = io.Copy(r.stdout(), output)
		}
		exitErr = cmd.Wait()
		if output != nil {
			_ = output.Close()
		}
		close(exited)
	}()

	awaitExit := func(waitCtx context.Context) error {
		select {
		case <-exited:
			return exitErr
		case <-waitCtx.Done():
			return waitCtx.Err()
		}
	}

	r.Processes.RegisterWithWait(pid, pgid, generation, r.name(), awaitExit)
	defer r.Processes.Unregister(pid)
	r.logStart(generation, pid)

	select {
	case <-exited:
		if exitErr != nil {
			return fmt.Errorf("%s: %w", r.name(), exitErr)
		}
		return nil

	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), stopGracePeriod)
		defer cancel()
		if err := process.Stop(stopCtx, pid, pgid, awaitExit); err != nil && !errors.Is(err, process.ErrProcessNotFound) {
			r.logStopError(generation, pid, err)
		}
		return ctx.Err()
	}
}

func (r *Runner) name() string {
	if len(r.Argv) == 0 {
		return ""
	}
	return filepath.Base(r.Argv[0])
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) environ() []string {
	if len(r.Env) == 0 {
		return nil
	}
	return append(os.Environ(), r.Env...)
}

func (r *Runner) newCmd() *exec.Cmd {
	cmd := exec.Command(r.Argv[0], r.Argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = r.environ()
	return cmd
}

func (r *Runner) logStart(generation uint64, pid int) {
	if r.Logger == nil {
		return
	}
	r.Logger.Debug("command started", map[string]string{
		"name":       r.name(),
		"pid":        strconv.Itoa(pid),
		"generation": strconv.FormatUint(generation, 10),
	})
}

func (r *Runner) logStopError(generation uint64, pid int, err error) {
	if r.Logger == nil {
		return
	}
	r.Logger.Warn("command stop failed", map[string]string{
		"name":       r.name(),
		"pid":        strconv.Itoa(pid),
		"generation": strconv.FormatUint(generation, 10),
		"error":      err.Error(),
	})
}
