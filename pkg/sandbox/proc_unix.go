//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// isolateProcessGroup starts the child in its own process group and makes
// cancellation kill the whole group, so grandchildren cannot outlive a timeout.
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
