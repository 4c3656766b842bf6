//go:build unix

package executor

import (
	"os/exec"
	"syscall"
	"time"
)

// configureProcessGroup starts the shell in its own process group so that
// cancellation kills every process it spawned, not just the shell.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Grandchildren may hold the output pipe open after the kill.
	cmd.WaitDelay = 2 * time.Second
}
