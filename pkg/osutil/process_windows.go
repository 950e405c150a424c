//go:build windows

package osutil

import (
	"os"
	"os/exec"
	"time"
)

// GracefulShutdownDelay is kept for parity with unix. Windows has no SIGTERM,
// so processes are killed immediately.
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup is a no-op on Windows
func SetProcessGroup(_ *exec.Cmd) {}

// SetProcessGroupKill kills the main process on cancellation. Children of the
// process are not reached because Windows has no unix-style process groups.
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Kill)
	}
}

// GroupAlive reports whether the process itself still exists
func GroupAlive(pid int) bool {
	return IsProcessAlive(pid)
}
