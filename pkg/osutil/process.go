// Package osutil holds the process management helpers the script backend
// uses to run and reliably terminate subprocesses.
package osutil

import (
	"github.com/shirou/gopsutil/v4/process"
)

// IsProcessAlive reports whether a process with pid exists and is not a
// zombie waiting to be reaped
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	return len(status) == 0 || status[0] != process.Zombie
}

// Descendants returns the pids of every process below pid in the process
// tree, children before grandchildren
func Descendants(pid int) []int {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var out []int
	seen := map[int32]bool{root.Pid: true}
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.Children()
		if err != nil {
			continue
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, int(c.Pid))
			queue = append(queue, c)
		}
	}
	return out
}
