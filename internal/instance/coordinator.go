package instance

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessFinder lists the PIDs of running processes with the given name.
type ProcessFinder interface {
	Find(ctx context.Context, name string) ([]int32, error)
}

// Signaler delivers a signal to a process.
type Signaler interface {
	Signal(ctx context.Context, pid int32, sig syscall.Signal) error
}

// Preparation is the outcome of PrepareForReplacement.
type Preparation struct {
	// Running is the number of live instances found.
	Running int
	// Signaled is how many of them accepted the flush signal.
	Signaled int
	// ShouldAutoStart is false when the agent was not running, so the
	// installer keeps it stopped.
	ShouldAutoStart bool
}

// Coordinator finds and signals live agent instances.
type Coordinator struct {
	name     string
	finder   ProcessFinder
	signaler Signaler
	logger   *log.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFinder overrides process discovery (useful for testing).
func WithFinder(f ProcessFinder) Option {
	return func(c *Coordinator) { c.finder = f }
}

// WithSignaler overrides signal delivery (useful for testing).
func WithSignaler(s Signaler) Option {
	return func(c *Coordinator) { c.signaler = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator returns a Coordinator for processes named name.
func NewCoordinator(name string, opts ...Option) *Coordinator {
	c := &Coordinator{
		name:     name,
		finder:   psFinder{},
		signaler: psSignaler{},
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pids returns the PIDs of running instances.
func (c *Coordinator) Pids(ctx context.Context) ([]int32, error) {
	pids, err := c.finder.Find(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("listing %s processes: %w", c.name, err)
	}
	return pids, nil
}

// IsRunning reports whether at least one instance is running. No running
// instance is a normal state, not an error.
func (c *Coordinator) IsRunning(ctx context.Context) (bool, error) {
	pids, err := c.Pids(ctx)
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

// NotifyRunningInstances sends the flush signal to every running instance
// and returns how many were signaled. It does not wait for the flush to
// complete; per-process failures are logged and skipped.
func (c *Coordinator) NotifyRunningInstances(ctx context.Context) (int, error) {
	pids, err := c.Pids(ctx)
	if err != nil {
		return 0, err
	}
	return c.notify(ctx, pids), nil
}

func (c *Coordinator) notify(ctx context.Context, pids []int32) int {
	if !signalSupported {
		return 0
	}
	signaled := 0
	for _, pid := range pids {
		if err := c.signaler.Signal(ctx, pid, FlushSignal); err != nil {
			c.logger.Warn("could not signal running instance", "pid", pid, "err", err)
			continue
		}
		c.logger.Info("asked running instance to save its state", "pid", pid)
		signaled++
	}
	return signaled
}

// PrepareForReplacement signals live instances to persist state before the
// installer replaces their files. When none is running, the returned
// Preparation disables auto-start so the agent stays stopped.
func (c *Coordinator) PrepareForReplacement(ctx context.Context) (Preparation, error) {
	pids, err := c.Pids(ctx)
	if err != nil {
		return Preparation{}, err
	}
	if len(pids) == 0 {
		c.logger.Info("agent is not running; it will not be started after the update", "name", c.name)
		return Preparation{}, nil
	}
	return Preparation{
		Running:         len(pids),
		Signaled:        c.notify(ctx, pids),
		ShouldAutoStart: true,
	}, nil
}

// psFinder matches process names the way pidof does.
type psFinder struct{}

func (psFinder) Find(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())

	var pids []int32
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// Processes can exit while we iterate.
			continue
		}
		if n == name {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

type psSignaler struct{}

func (psSignaler) Signal(ctx context.Context, pid int32, sig syscall.Signal) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.SendSignalWithContext(ctx, sig)
}
