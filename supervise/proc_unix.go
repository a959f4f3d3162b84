//go:build unix

package supervise

import (
	"errors"
	"os/exec"
	"syscall"
)

// groupHandle signals an entire process group. The evaluation tool spawns
// its own children; signalling only the top-level process leaves them alive.
type groupHandle struct {
	pgid int
}

// startGroup starts cmd in its own process group.
func startGroup(cmd *exec.Cmd) (*groupHandle, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		// With Setpgid the group ID equals the leader's PID
		pgid = cmd.Process.Pid
	}
	return &groupHandle{pgid: pgid}, nil
}

// Terminate asks the whole group to shut down.
func (h *groupHandle) Terminate() error {
	return h.signal(syscall.SIGTERM)
}

// Kill force-terminates the whole group.
func (h *groupHandle) Kill() error {
	return h.signal(syscall.SIGKILL)
}

func (h *groupHandle) signal(sig syscall.Signal) error {
	err := syscall.Kill(-h.pgid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// Group already gone
		return nil
	}
	return err
}
