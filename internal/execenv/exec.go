// Package execenv runs a child command with secrets in its environment
// and supervises it until it exits.
package execenv

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/secure"
)

// DefaultGrace is how long a child gets between SIGTERM and SIGKILL.
const DefaultGrace = 10 * time.Second

// Executor runs commands with secret entries in their environment.
type Executor struct {
	logger   *logging.Logger
	launcher Launcher
	grace    time.Duration
	environ  func() []string

	stdin          io.Reader
	stdout, stderr io.Writer
}

// New creates an executor that launches real processes wired to the
// current terminal.
func New(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		logger:   logger,
		launcher: OSLauncher{},
		grace:    DefaultGrace,
		environ:  os.Environ,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// WithLauncher replaces the process launcher.
func (e *Executor) WithLauncher(l Launcher) *Executor {
	e.launcher = l
	return e
}

// WithEnviron replaces the source of the inherited environment.
func (e *Executor) WithEnviron(fn func() []string) *Executor {
	e.environ = fn
	return e
}

// WithGrace sets the termination grace period.
func (e *Executor) WithGrace(d time.Duration) *Executor {
	e.grace = d
	return e
}

// WithIO replaces the child's standard streams.
func (e *Executor) WithIO(stdin io.Reader, stdout, stderr io.Writer) *Executor {
	e.stdin, e.stdout, e.stderr = stdin, stdout, stderr
	return e
}

// RunOptions configures one Run.
type RunOptions struct {
	Entries    *secure.SealedSet
	Reset      bool // child sees only the entries
	Shell      bool
	Argv       []string
	PrintVars  bool // list entry names with masked values on stderr
	WorkingDir string
}

// Run starts the command and blocks until it exits, returning its exit
// code. Cancelling ctx terminates the child; its exit code is still
// returned.
func (e *Executor) Run(ctx context.Context, opts RunOptions) (int, error) {
	if len(opts.Argv) == 0 {
		return 1, errNoCommand
	}

	entries, err := opts.Entries.Unseal()
	if err != nil {
		return 1, fmt.Errorf("opening sealed entries: %w", err)
	}
	if opts.PrintVars {
		e.printEnvironment(entries)
	}

	spec := CommandSpec{
		Argv:   opts.Argv,
		Shell:  opts.Shell,
		Env:    BuildEnvironment(entries, opts.Reset, e.environ()),
		Dir:    opts.WorkingDir,
		Stdin:  e.stdin,
		Stdout: e.stdout,
		Stderr: e.stderr,
	}
	child, err := e.launcher.Launch(spec)
	if err != nil {
		return 1, err
	}

	e.logger.Debug("Executing command: %s", strings.Join(opts.Argv, " "))
	e.logger.Debug("Environment variables set: %d", entries.Len())
	if err := child.Start(); err != nil {
		return 1, err
	}

	return Supervise(ctx, child, e.grace, e.logger)
}

// Supervise waits for child, terminating it if ctx ends first.
func Supervise(ctx context.Context, child ChildProcess, grace time.Duration, logger *logging.Logger) (int, error) {
	select {
	case <-child.Done():
		return child.Wait()
	case <-ctx.Done():
		logger.Debug("Stopping child %d (grace %s)", child.Pid(), grace)
		return child.Terminate(grace)
	}
}

// BuildEnvironment returns the child environment. With reset it is
// exactly the entries. Otherwise it is inherited minus any key the
// entries define, followed by the entries in order.
func BuildEnvironment(entries *secretset.SecretSet, reset bool, inherited []string) []string {
	env := make([]string, 0, entries.Len()+len(inherited))
	if !reset {
		for _, kv := range inherited {
			key, _, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			if _, override := entries.Get(key); override {
				continue
			}
			env = append(env, kv)
		}
	}
	entries.Each(func(k, v string) {
		env = append(env, k+"="+v)
	})
	return env
}

func (e *Executor) printEnvironment(entries *secretset.SecretSet) {
	if entries.Len() == 0 {
		fmt.Fprintln(e.stderr, "No environment variables resolved")
		return
	}
	fmt.Fprintf(e.stderr, "Resolved %d environment variables:\n", entries.Len())
	entries.Each(func(k, v string) {
		fmt.Fprintf(e.stderr, "  %s=%s\n", k, MaskValue(v))
	})
	fmt.Fprintln(e.stderr)
}

// MaskValue hides most of a secret value for display.
func MaskValue(value string) string {
	switch {
	case len(value) == 0:
		return "(empty)"
	case len(value) <= 3:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}
	return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
}
