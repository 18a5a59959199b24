// Package watch polls a scope and keeps a child process in step with its
// secrets.
package watch

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/execenv"
	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/metrics"
	"github.com/systmms/vaultctl/internal/secretset"
)

// DefaultInterval is the poll interval when none is set.
const DefaultInterval = 60 * time.Second

// Loop polls Resolve every Interval and applies OnChange when the
// content hash moves.
type Loop struct {
	Scope    string
	Resolve  func(ctx context.Context) (*secretset.SecretSet, error)
	Launcher execenv.Launcher

	Command []string
	Shell   bool
	Reset   bool
	Dir     string
	Environ func() []string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer

	OnChange     Reaction
	ReloadSignal os.Signal
	Interval     time.Duration
	Grace        time.Duration

	// MaxPolls stops the loop after that many polls, 0 means unbounded.
	MaxPolls int
	// After replaces time.After.
	After func(d time.Duration) <-chan time.Time

	Logger *logging.Logger

	session Session
	log     *logging.Logger
	child   execenv.ChildProcess
}

// Session returns the session state.
func (l *Loop) Session() Session {
	return l.session
}

func (l *Loop) defaults() {
	if l.Interval <= 0 {
		l.Interval = DefaultInterval
	}
	if l.Grace <= 0 {
		l.Grace = execenv.DefaultGrace
	}
	if l.OnChange == "" {
		l.OnChange = Restart
	}
	if l.ReloadSignal == nil {
		l.ReloadSignal = syscall.SIGHUP
	}
	if l.After == nil {
		l.After = time.After
	}
	if l.Environ == nil {
		l.Environ = os.Environ
	}
	if l.Launcher == nil {
		l.Launcher = execenv.OSLauncher{}
	}
	if l.Logger == nil {
		l.Logger = logging.Discard()
	}
}

// Run polls until ctx is done, MaxPolls is reached, or a child under the
// Signal reaction exits. It returns the exit code of the last child.
// Only a failed first poll or a failed first start ends Run with an
// error.
func (l *Loop) Run(ctx context.Context) (int, error) {
	if len(l.Command) == 0 {
		return vcerrors.ExitOperation, vcerrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., vaultctl watch 200 -- ./start.sh)",
		}
	}
	l.defaults()
	l.session = Session{
		ID:       uuid.NewString(),
		ScopeID:  l.Scope,
		Interval: l.Interval,
		OnChange: l.OnChange,
	}
	l.log = l.Logger.WithFields(map[string]interface{}{"session": l.session.ID[:8], "scope": l.Scope})

	set, err := l.Resolve(ctx)
	l.session.Polls++
	if err != nil {
		l.record(pollResult(err))
		return vcerrors.ExitCode(err), err
	}
	l.session.LastHash = set.Hash()
	l.record(PollInitial)
	l.log.Info("Watching %d entries every %s (on change: %s)", set.Len(), l.Interval, l.OnChange)

	if l.OnChange.persistent() {
		if err := l.start(set); err != nil {
			return vcerrors.ExitCode(err), err
		}
	}

	restartPending := false
	for {
		if l.MaxPolls > 0 && l.session.Polls >= l.MaxPolls {
			return l.stop()
		}

		tick := l.After(l.Interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				return l.stop()
			case <-l.childDone():
				if code, end := l.reap(); end {
					return code, nil
				}
				restartPending = true
			case <-tick:
				break wait
			}
		}
		// a child that died alongside the tick is reaped before polling
		select {
		case <-l.childDone():
			if code, end := l.reap(); end {
				return code, nil
			}
			restartPending = true
		default:
		}

		set, err := l.Resolve(ctx)
		l.session.Polls++
		if err != nil {
			if ctx.Err() != nil {
				return l.stop()
			}
			l.pollFailed(err)
			continue
		}

		hash := set.Hash()
		changed := hash != l.session.LastHash
		l.session.LastHash = hash

		if restartPending {
			if err := l.start(set); err != nil {
				l.failed("Could not restart child", set, err)
			} else {
				restartPending = false
			}
			l.record(resultOf(changed))
			continue
		}
		if !changed {
			l.record(PollUnchanged)
			continue
		}

		l.record(PollChanged)
		l.log.Info("Secrets changed (%d entries)", set.Len())
		if code, done := l.react(ctx, set); done {
			return code, nil
		}
	}
}

// react applies OnChange. done is set when ctx ended during an ExecOnly
// run.
func (l *Loop) react(ctx context.Context, set *secretset.SecretSet) (int, bool) {
	metrics.RecordReaction(l.Scope, string(l.OnChange))

	switch l.OnChange {
	case Restart:
		if l.child != nil {
			code, _ := l.child.Terminate(l.Grace)
			l.log.Debug("Previous child exited with code %d", code)
			l.child = nil
		}
		if err := l.start(set); err != nil {
			l.failed("Could not restart child", set, err)
		}

	case Signal:
		if l.child == nil {
			return 0, false
		}
		if err := l.child.Signal(l.ReloadSignal); err != nil {
			l.log.Warn("Could not signal child %d: %v", l.child.Pid(), err)
			return 0, false
		}
		l.log.Info("Sent %v to child %d", l.ReloadSignal, l.child.Pid())

	case ExecOnly:
		child, err := l.launch(set)
		if err != nil {
			l.failed("Could not run command", set, err)
			return 0, false
		}
		code, _ := execenv.Supervise(ctx, child, l.Grace, l.log)
		if ctx.Err() != nil {
			return code, true
		}
		l.log.Info("Command exited with code %d", code)
	}
	return 0, false
}

func (l *Loop) launch(set *secretset.SecretSet) (execenv.ChildProcess, error) {
	child, err := l.Launcher.Launch(execenv.CommandSpec{
		Argv:   l.Command,
		Shell:  l.Shell,
		Env:    execenv.BuildEnvironment(set, l.Reset, l.Environ()),
		Dir:    l.Dir,
		Stdin:  l.Stdin,
		Stdout: l.Stdout,
		Stderr: l.Stderr,
	})
	if err != nil {
		return nil, err
	}
	if err := child.Start(); err != nil {
		return nil, err
	}
	metrics.RecordChildStart()
	return child, nil
}

func (l *Loop) start(set *secretset.SecretSet) error {
	child, err := l.launch(set)
	if err != nil {
		return err
	}
	l.child = child
	l.session.ChildPID = child.Pid()
	l.log.Debug("Started child %d", child.Pid())
	return nil
}

// reap collects an exited child. end is set when the session should
// finish with the child's code.
func (l *Loop) reap() (code int, end bool) {
	code, _ = l.child.Wait()
	l.child = nil
	l.session.ChildPID = 0
	if l.OnChange == Signal {
		l.log.Info("Child exited with code %d", code)
		return code, true
	}
	l.log.Warn("Child exited with code %d; restarting after the next poll", code)
	return code, false
}

func (l *Loop) stop() (int, error) {
	if l.child == nil {
		return 0, nil
	}
	code, err := l.child.Terminate(l.Grace)
	l.child = nil
	l.session.ChildPID = 0
	return code, err
}

func (l *Loop) childDone() <-chan struct{} {
	if l.child == nil {
		return nil
	}
	return l.child.Done()
}

// pollFailed logs a failed poll. The child keeps running on the last
// good set and the hash is left as it was.
func (l *Loop) pollFailed(err error) {
	result := pollResult(err)
	l.record(result)
	if result == PollUnreachable {
		l.log.Warn("Secret store unreachable, keeping current secrets: %v", err)
		return
	}
	l.log.Error("Poll failed, keeping current secrets: %v", err)
}

// failed logs a child that could not be started. The error text may echo
// the command line or environment, so the set's values are masked.
func (l *Loop) failed(msg string, set *secretset.SecretSet, err error) {
	l.log.Error("%s: %s", msg, logging.Redact(err.Error(), set.Values()))
}

func (l *Loop) record(result PollResult) {
	metrics.RecordPoll(l.Scope, string(result))
}

func pollResult(err error) PollResult {
	if errors.Is(err, vcerrors.ErrUnreachable) {
		return PollUnreachable
	}
	return PollError
}

func resultOf(changed bool) PollResult {
	if changed {
		return PollChanged
	}
	return PollUnchanged
}
