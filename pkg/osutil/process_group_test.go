//go:build unix

package osutil

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupCommand(ctx context.Context, script string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	SetProcessGroup(cmd)
	SetProcessGroupKill(cmd)
	return cmd
}

func TestSetProcessGroup(t *testing.T) {
	cmd := exec.Command("echo", "test")
	cmd.SysProcAttr = &syscall.SysProcAttr{Noctty: true}
	SetProcessGroup(cmd)

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
	assert.True(t, cmd.SysProcAttr.Noctty, "existing attributes are preserved")
}

func TestSetProcessGroupKillTerminatesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := groupCommand(ctx, `trap 'exit 0' TERM; while true; do sleep 0.1; done`)
	require.NoError(t, cmd.Start())
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	cancel()
	err := cmd.Wait()

	assert.Error(t, err, "Wait reports the cancellation")
	assert.Less(t, time.Since(start), GracefulShutdownDelay)
}

func TestSetProcessGroupKillForcesAfterGracePeriod(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the graceful shutdown delay")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := groupCommand(ctx, `trap '' TERM; while true; do sleep 0.1; done`)
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	time.Sleep(200 * time.Millisecond)
	require.True(t, GroupAlive(pid))

	start := time.Now()
	cancel()
	_ = cmd.Wait()

	assert.GreaterOrEqual(t, time.Since(start), GracefulShutdownDelay-100*time.Millisecond)
	assert.False(t, IsProcessAlive(pid))
}

func TestSetProcessGroupKillReachesChildren(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := groupCommand(ctx, `sleep 30 & echo "CHILD:$!"; wait`)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	childPid, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(line), "CHILD:"))
	require.NoError(t, err)

	cancel()
	_ = cmd.Wait()

	assert.Eventually(t, func() bool {
		return exited(childPid)
	}, time.Second, 20*time.Millisecond, "child in the group is terminated")
}

func TestSetProcessGroupKillReachesEscapedDescendants(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the graceful shutdown delay")
	}
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := groupCommand(ctx, `setsid sleep 30 & echo "CHILD:$!"; wait`)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	childPid, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(line), "CHILD:"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return slices.Contains(Descendants(cmd.Process.Pid), childPid)
	}, time.Second, 20*time.Millisecond)

	cancel()
	_ = cmd.Wait()

	assert.Eventually(t, func() bool {
		return exited(childPid)
	}, GracefulShutdownDelay+2*time.Second, 50*time.Millisecond, "descendant in its own session is killed")
}

func exited(pid int) bool {
	return !IsProcessAlive(pid)
}

func TestDescendants(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", `sleep 30 & sleep 30 & wait`)
	SetProcessGroup(cmd)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		_ = cmd.Wait()
	})

	assert.Eventually(t, func() bool {
		return len(Descendants(cmd.Process.Pid)) == 2
	}, time.Second, 20*time.Millisecond)
	assert.Empty(t, Descendants(-1))
}

func TestSetProcessGroupKillAfterExit(t *testing.T) {
	cmd := groupCommand(context.Background(), "true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	assert.NoError(t, cmd.Cancel(), "signalling an exited group is not an error")
}

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
}
