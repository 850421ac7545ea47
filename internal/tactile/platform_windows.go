//go:build windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
)

// getProcessResourceUsage is not available without job objects.
func getProcessResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	return nil
}

func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the direct child. Grandchildren are left to the OS.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
