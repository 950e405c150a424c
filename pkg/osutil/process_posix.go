//go:build unix

package osutil

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// GracefulShutdownDelay is how long a process group gets to exit after
// SIGTERM before it is sent SIGKILL.
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup makes the command the leader of a new process group so the
// whole tree can be signalled at once.
func SetProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// SetProcessGroupKill makes context cancellation terminate the command's whole
// process group: SIGTERM first, then SIGKILL for anything still running after
// GracefulShutdownDelay. Descendants that moved to another process group or
// session are recorded at cancellation and killed with the group. Call it
// after SetProcessGroup and before Start.
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		pid := cmd.Process.Pid
		tree := Descendants(pid)
		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
			if errors.Is(err, syscall.ESRCH) {
				return nil
			}
			return err
		}
		time.AfterFunc(GracefulShutdownDelay, func() {
			if GroupAlive(pid) {
				_ = syscall.Kill(-pid, syscall.SIGKILL)
			}
			for _, child := range tree {
				if IsProcessAlive(child) {
					_ = syscall.Kill(child, syscall.SIGKILL)
				}
			}
		})
		return nil
	}
}

// GroupAlive reports whether any process of the group led by pgid still exists
func GroupAlive(pgid int) bool {
	return syscall.Kill(-pgid, 0) == nil
}
