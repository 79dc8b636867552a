//go:build !linux && !windows

package command

import "syscall"

func setDeathSignal(attr *syscall.SysProcAttr) {
}
