//go:build windows

package commands

import (
	"fmt"
	"os"
	"strings"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

func parseSignal(name string) (os.Signal, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG") {
	case "INT":
		return os.Interrupt, nil
	case "HUP", "KILL", "TERM":
		return os.Kill, nil
	}
	return nil, vcerrors.UserError{
		Message:    fmt.Sprintf("signal %q is not available on Windows", name),
		Suggestion: "Use --on-change restart or exec",
	}
}
