//go:build windows

package supervise

import (
	"errors"
	"os"
	"os/exec"
)

// groupHandle on Windows falls back to killing the top-level process; there
// is no POSIX-style group signal to send.
type groupHandle struct {
	proc *os.Process
}

func startGroup(cmd *exec.Cmd) (*groupHandle, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &groupHandle{proc: cmd.Process}, nil
}

func (h *groupHandle) Terminate() error {
	return h.kill()
}

func (h *groupHandle) Kill() error {
	return h.kill()
}

func (h *groupHandle) kill() error {
	err := h.proc.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
