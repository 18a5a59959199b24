package execenv

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

// ChildProcess is a handle on one launched command.
type ChildProcess interface {
	Start() error
	Pid() int
	Signal(sig os.Signal) error
	// Wait blocks until the child exits and returns its exit code. A child
	// killed by signal n reports 128+n.
	Wait() (int, error)
	// Terminate asks the child to stop, kills it after grace, and returns
	// its exit code.
	Terminate(grace time.Duration) (int, error)
	// Done is closed once the child has exited.
	Done() <-chan struct{}
}

// CommandSpec describes a child to launch.
type CommandSpec struct {
	Argv   []string
	Shell  bool // run Argv joined by spaces through the platform shell
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher creates child processes. Launch does not start the child.
type Launcher interface {
	Launch(spec CommandSpec) (ChildProcess, error)
}

// OSLauncher launches real processes.
type OSLauncher struct{}

// Launch resolves the command and prepares it.
func (OSLauncher) Launch(spec CommandSpec) (ChildProcess, error) {
	if len(spec.Argv) == 0 {
		return nil, errNoCommand
	}

	argv := spec.Argv
	if spec.Shell {
		argv = shellCommand(strings.Join(spec.Argv, " "))
	} else {
		path, err := exec.LookPath(argv[0])
		if err != nil {
			return nil, vcerrors.WrapCommandNotFound(argv[0], err)
		}
		argv = append([]string{path}, argv[1:]...)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	return &osProcess{cmd: cmd, name: spec.Argv[0], done: make(chan struct{})}, nil
}

var errNoCommand = vcerrors.UserError{
	Message:    "No command specified",
	Suggestion: "Provide a command after -- (e.g., vaultctl run 200 -- ./start.sh)",
}

type osProcess struct {
	cmd  *exec.Cmd
	name string

	done    chan struct{}
	once    sync.Once
	code    int
	waitErr error
}

func (p *osProcess) Start() error {
	if err := p.cmd.Start(); err != nil {
		return vcerrors.CommandError{
			Command:    p.name,
			ExitCode:   126,
			Message:    err.Error(),
			Suggestion: "Check that the command is executable",
		}
	}
	go func() {
		err := p.cmd.Wait()
		p.code, p.waitErr = exitStatus(err)
		close(p.done)
	}()
	return nil
}

func (p *osProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *osProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Signal(sig)
}

func (p *osProcess) Wait() (int, error) {
	<-p.done
	return p.code, p.waitErr
}

func (p *osProcess) Done() <-chan struct{} {
	return p.done
}

func (p *osProcess) Terminate(grace time.Duration) (int, error) {
	if p.cmd.Process == nil {
		return 0, nil
	}
	p.once.Do(func() {
		_ = p.Signal(terminateSignal)
		select {
		case <-p.done:
		case <-time.After(grace):
			_ = p.cmd.Process.Kill()
		}
	})
	return p.Wait()
}

// exitStatus turns the result of Cmd.Wait into an exit code. Only a
// failure to wait at all is an error.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stateCode(exitErr.ProcessState), nil
	}
	return 1, err
}
