//go:build !windows

package execenv

import (
	"os"
	"syscall"
)

var terminateSignal os.Signal = syscall.SIGTERM

func shellCommand(line string) []string {
	return []string{"/bin/sh", "-c", line}
}

func stateCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
