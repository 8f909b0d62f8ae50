//go:build !windows

package cli

import (
	"os/exec"
	"syscall"
)

// configureProcAttr puts the command in its own process group and makes
// context cancellation kill the whole group, so helpers spawned by the
// model runner die with it.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return cmd.Process.Kill()
		}
		return nil
	}
}
