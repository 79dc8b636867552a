//go:build !windows

package command

import (
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// start launches the command in its own process group so cancellation can
// signal the command and everything it spawned. With UsePty the process
// gets a pseudo-terminal and start returns the master side for copying.
func (r *Runner) start() (*exec.Cmd, io.ReadCloser, error) {
	cmd := r.newCmd()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	setDeathSignal(cmd.SysProcAttr)

	if r.UsePty {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, nil, err
		}
		return cmd, ptmx, nil
	}

	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stdout()
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, nil, nil
}
