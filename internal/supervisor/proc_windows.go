//go:build windows

package supervisor

import (
	"os/exec"
	"strconv"
)

func setSysProcAttr(_ *exec.Cmd) {}

// killTree forcefully terminates the process and its children by PID.
func killTree(pid int) error {
	// #nosec G204
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func exitInfo(cmd *exec.Cmd, _ error) (code int, signal string) {
	if cmd.ProcessState == nil {
		return -1, ""
	}
	return cmd.ProcessState.ExitCode(), ""
}

func classifyExit(code int, _ string) (normal bool) {
	return code == 0
}
