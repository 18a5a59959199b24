package watch

import (
	"fmt"
	"strings"
	"time"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

// Reaction is what a watch does when the secrets change.
type Reaction string

const (
	// Restart terminates the child and starts a new one with the fresh set.
	Restart Reaction = "restart"
	// Signal delivers the reload signal to the running child.
	Signal Reaction = "signal"
	// ExecOnly runs the command to completion once per change.
	ExecOnly Reaction = "exec"
)

// ParseReaction accepts restart, signal or exec.
func ParseReaction(s string) (Reaction, error) {
	switch r := Reaction(strings.ToLower(strings.TrimSpace(s))); r {
	case Restart, Signal, ExecOnly:
		return r, nil
	case "":
		return Restart, nil
	}
	return "", vcerrors.UserError{
		Message:    fmt.Sprintf("unknown --on-change value %q", s),
		Suggestion: "Use restart, signal or exec",
	}
}

// persistent reports whether the reaction keeps a child running between
// polls.
func (r Reaction) persistent() bool {
	return r != ExecOnly
}

// Session is the state of one watch run. It holds the hash of the last
// good set, never the values.
type Session struct {
	ID       string
	ScopeID  string
	Interval time.Duration
	OnChange Reaction
	LastHash string
	ChildPID int
	Polls    int
}

// PollResult classifies one poll.
type PollResult string

const (
	PollInitial     PollResult = "initial"
	PollUnchanged   PollResult = "unchanged"
	PollChanged     PollResult = "changed"
	PollUnreachable PollResult = "unreachable"
	PollError       PollResult = "error"
)

func (s Session) String() string {
	return fmt.Sprintf("%s scope=%s polls=%d child=%d", s.ID, s.ScopeID, s.Polls, s.ChildPID)
}
