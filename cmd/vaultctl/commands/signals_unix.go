//go:build !windows

package commands

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

var reloadSignals = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
	"INT":  syscall.SIGINT,
	"TERM": syscall.SIGTERM,
	"QUIT": syscall.SIGQUIT,
}

func parseSignal(name string) (os.Signal, error) {
	key := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	if sig, ok := reloadSignals[key]; ok {
		return sig, nil
	}
	return nil, vcerrors.UserError{
		Message:    fmt.Sprintf("unknown signal %q", name),
		Suggestion: "Use HUP, USR1, USR2, INT, TERM or QUIT",
	}
}
