//go:build windows

package execenv

import (
	"os"
)

// Windows has no SIGTERM for arbitrary processes.
var terminateSignal os.Signal = os.Kill

func shellCommand(line string) []string {
	return []string{"cmd", "/C", line}
}

func stateCode(state *os.ProcessState) int {
	return state.ExitCode()
}
