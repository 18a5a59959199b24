package auth

import (
	"fmt"
	"sync"
	"time"
)

// State is a step of the credential lifecycle.
type State string

const (
	StateUnauthenticated  State = "unauthenticated"
	StateAuthenticating   State = "authenticating"
	StateAuthenticated    State = "authenticated"
	StateRenewalDue       State = "renewal_due"
	StateRenewing         State = "renewing"
	StateReauthenticating State = "reauthenticating"
	StateFatal            State = "fatal"
)

func (s State) String() string {
	return string(s)
}

// ValidTransitions defines allowed state transitions.
var ValidTransitions = map[State][]State{
	StateUnauthenticated:  {StateAuthenticating, StateAuthenticated, StateFatal},
	StateAuthenticating:   {StateAuthenticated, StateFatal},
	StateAuthenticated:    {StateRenewalDue, StateReauthenticating, StateAuthenticating, StateUnauthenticated, StateFatal},
	StateRenewalDue:       {StateRenewing, StateReauthenticating, StateAuthenticated, StateFatal},
	StateRenewing:         {StateAuthenticated, StateReauthenticating, StateFatal},
	StateReauthenticating: {StateAuthenticating, StateAuthenticated, StateFatal},
	// a new cycle (the next scheduled run, or init) starts over
	StateFatal: {StateUnauthenticated, StateAuthenticating},
}

// CanTransitionTo checks if a transition from s to next is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, valid := range ValidTransitions[s] {
		if valid == next {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	FromState State
	ToState   State
	Reason    string
	Error     error
	Timestamp time.Time
}

type stateInfo struct {
	mu          sync.RWMutex
	current     State
	transitions []Transition
}

func newStateInfo() *stateInfo {
	return &stateInfo{current: StateUnauthenticated}
}

func (si *stateInfo) transitionTo(next State, reason string, err error, at time.Time) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	if !si.current.CanTransitionTo(next) {
		return fmt.Errorf("invalid state transition from %s to %s", si.current, next)
	}
	si.transitions = append(si.transitions, Transition{
		FromState: si.current,
		ToState:   next,
		Reason:    reason,
		Error:     err,
		Timestamp: at,
	})
	si.current = next
	return nil
}

func (si *stateInfo) get() State {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.current
}

func (si *stateInfo) history() []Transition {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return append([]Transition(nil), si.transitions...)
}
