package fakes

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/systmms/vaultctl/internal/execenv"
)

// FakeChild is an execenv.ChildProcess that runs until Exit or Terminate.
type FakeChild struct {
	Spec execenv.CommandSpec

	// TerminateCode is reported when Terminate stops the child. Default 143.
	TerminateCode int
	StartErr      error

	mu         sync.Mutex
	pid        int
	started    bool
	signals    []os.Signal
	terminated bool
	code       int
	done       chan struct{}
	exitOnce   sync.Once
}

// NewFakeChild returns an unstarted child with the given pid.
func NewFakeChild(pid int, spec execenv.CommandSpec) *FakeChild {
	return &FakeChild{Spec: spec, pid: pid, TerminateCode: 143, done: make(chan struct{})}
}

var _ execenv.ChildProcess = (*FakeChild)(nil)

func (c *FakeChild) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StartErr != nil {
		return c.StartErr
	}
	c.started = true
	return nil
}

func (c *FakeChild) Pid() int { return c.pid }

func (c *FakeChild) Signal(sig os.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errors.New("not started")
	}
	c.signals = append(c.signals, sig)
	return nil
}

func (c *FakeChild) Wait() (int, error) {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, nil
}

func (c *FakeChild) Terminate(time.Duration) (int, error) {
	c.mu.Lock()
	c.terminated = true
	code := c.TerminateCode
	c.mu.Unlock()
	c.Exit(code)
	return c.Wait()
}

func (c *FakeChild) Done() <-chan struct{} { return c.done }

// Exit makes the child exit with code. Later calls are ignored.
func (c *FakeChild) Exit(code int) {
	c.exitOnce.Do(func() {
		c.mu.Lock()
		c.code = code
		c.mu.Unlock()
		close(c.done)
	})
}

// Started reports whether Start succeeded.
func (c *FakeChild) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Terminated reports whether Terminate was called.
func (c *FakeChild) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Signals returns the signals delivered so far.
func (c *FakeChild) Signals() []os.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]os.Signal(nil), c.signals...)
}

// Env returns the child environment as a map.
func (c *FakeChild) Env() map[string]string {
	env := make(map[string]string, len(c.Spec.Env))
	for _, kv := range c.Spec.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// FakeLauncher records launches and hands out FakeChild values.
type FakeLauncher struct {
	// OnLaunch, when set, runs right after a child is created, before it
	// is returned. Use it to make a child exit on its own.
	OnLaunch  func(child *FakeChild)
	LaunchErr error

	mu       sync.Mutex
	children []*FakeChild
	launched chan *FakeChild
}

// NewFakeLauncher returns a launcher. Launched children are also sent on
// Launched(), which is buffered for 64.
func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{launched: make(chan *FakeChild, 64)}
}

var _ execenv.Launcher = (*FakeLauncher)(nil)

func (l *FakeLauncher) Launch(spec execenv.CommandSpec) (execenv.ChildProcess, error) {
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.mu.Lock()
	child := NewFakeChild(1000+len(l.children), spec)
	l.children = append(l.children, child)
	l.mu.Unlock()

	if l.OnLaunch != nil {
		l.OnLaunch(child)
	}
	select {
	case l.launched <- child:
	default:
	}
	return child, nil
}

// Children returns every child launched so far.
func (l *FakeLauncher) Children() []*FakeChild {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeChild(nil), l.children...)
}

// Last returns the most recent child, or nil.
func (l *FakeLauncher) Last() *FakeChild {
	children := l.Children()
	if len(children) == 0 {
		return nil
	}
	return children[len(children)-1]
}

// Launched delivers children as they are launched.
func (l *FakeLauncher) Launched() <-chan *FakeChild {
	return l.launched
}
