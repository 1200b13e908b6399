//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the child in its own process group so a kill can reach
// the whole tree.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree forcefully terminates the process group, falling back to the
// single process when no group exists.
func killTree(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}

// exitInfo extracts the exit code and terminating signal (empty when the
// process was not signaled) from a finished command.
func exitInfo(cmd *exec.Cmd, _ error) (code int, signal string) {
	ps := cmd.ProcessState
	if ps == nil {
		return -1, ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ps.ExitCode(), signalName(ws.Signal())
	}
	return ps.ExitCode(), ""
}

// classifyExit reports whether the termination counts as a normal exit:
// exit code 0, or an interrupt/terminate signal.
func classifyExit(code int, signal string) (normal bool) {
	if signal == "" {
		return code == 0
	}
	return signal == "SIGINT" || signal == "SIGTERM"
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGABRT:
		return "SIGABRT"
	default:
		return sig.String()
	}
}
