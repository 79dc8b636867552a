//go:build windows

package command

import (
	"io"
	"os/exec"
)

// start launches the command directly; ptys and process groups are not
// available on Windows, so UsePty falls back to plain pipes.
func (r *Runner) start() (*exec.Cmd, io.ReadCloser, error) {
	cmd := r.newCmd()
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stdout()
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, nil, nil
}
