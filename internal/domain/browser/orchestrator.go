package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/spider-rs/headless-browser/internal/domain/instance"
	"github.com/spider-rs/headless-browser/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// ErrSpawn wraps launch failures
var ErrSpawn = errors.New("browser did not start")

// Terminator ends a spawned process. It receives the handle of the exact
// child, never a bare pid, so a number recycled after the child was reaped
// cannot be hit.
type Terminator interface {
	Terminate(proc *os.Process) error
}

// TerminatorFunc adapts a function to Terminator
type TerminatorFunc func(proc *os.Process) error

// Terminate calls f(proc)
func (f TerminatorFunc) Terminate(proc *os.Process) error { return f(proc) }

// DefaultTerminator force-kills the child (SIGKILL on unix,
// TerminateProcess on windows)
func DefaultTerminator() Terminator {
	return killTerminator{}
}

type killTerminator struct{}

// Terminate kills proc. A child that already exited and was reaped is not
// an error and receives no signal.
func (killTerminator) Terminate(proc *os.Process) error {
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %d: %w", proc.Pid, err)
	}
	return nil
}

// Orchestrator spawns and terminates browser processes
type Orchestrator struct {
	opts       Options
	registry   *instance.Registry
	terminator Terminator
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	hooksMu sync.Mutex
	hooks   []func()

	procsMu sync.Mutex
	procs   map[uint32]*os.Process

	reapers sync.WaitGroup
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTerminator replaces the default terminator
func WithTerminator(t Terminator) Option {
	return func(o *Orchestrator) {
		o.terminator = t
	}
}

// WithMetrics records forks and shutdowns
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an orchestrator tracking pids in registry
func NewOrchestrator(opts Options, registry *instance.Registry, logger *zap.Logger, options ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		opts:       opts,
		registry:   registry,
		terminator: DefaultTerminator(),
		logger:     logger,
		procs:      make(map[uint32]*os.Process),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Registry returns the tracked instance state
func (o *Orchestrator) Registry() *instance.Registry {
	return o.registry
}

// Options returns the launch options
func (o *Orchestrator) Options() Options {
	return o.opts
}

// OnShutdown registers fn to run after every ShutdownAll
func (o *Orchestrator) OnShutdown(fn func()) {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.hooks = append(o.hooks, fn)
}

// Fork launches a browser on port, or on the default port when port is
// nil, and records its pid. On failure it returns pid 0 and leaves the
// registry untouched.
func (o *Orchestrator) Fork(port *uint32) (uint32, error) {
	p := o.opts.Port
	if port != nil {
		p = *port
	}

	binary := o.opts.Binary()
	args := o.opts.Args(p)

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		o.logger.Error("browser command didn't start",
			zap.String("binary", binary),
			zap.Uint32("port", p),
			zap.Error(err),
		)
		o.recordFork(false)
		return 0, fmt.Errorf("%w: %s: %w", ErrSpawn, binary, err)
	}

	pid := uint32(cmd.Process.Pid)
	// the handle is recorded before the pid becomes visible to ShutdownAll
	o.procsMu.Lock()
	o.procs[pid] = cmd.Process
	o.procsMu.Unlock()
	o.registry.Insert(pid)
	o.registry.SetCacheable(true)
	o.recordFork(true)

	o.logger.Info("browser started",
		zap.Uint32("pid", pid),
		zap.Uint32("port", p),
		zap.String("binary", binary),
	)

	o.reapers.Add(1)
	go o.monitorProcess(cmd, pid)

	return pid, nil
}

// monitorProcess reaps the child. Exits are logged only; the registry
// keeps the pid until the next ShutdownAll, which then finds the handle
// already done and sends nothing.
func (o *Orchestrator) monitorProcess(cmd *exec.Cmd, pid uint32) {
	defer o.reapers.Done()

	err := cmd.Wait()
	fields := []zap.Field{zap.Uint32("pid", pid)}
	if cmd.ProcessState != nil {
		fields = append(fields, zap.Int("exit_code", cmd.ProcessState.ExitCode()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	o.logger.Info("browser exited", fields...)
}

// ShutdownAll terminates every tracked browser, clears the registry,
// disables version caching and runs the shutdown hooks. It returns the
// number of pids that were tracked.
func (o *Orchestrator) ShutdownAll() int {
	pids := o.registry.Drain()
	o.registry.SetCacheable(false)

	o.procsMu.Lock()
	procs := make([]*os.Process, 0, len(pids))
	for _, pid := range pids {
		if proc, ok := o.procs[pid]; ok {
			procs = append(procs, proc)
			delete(o.procs, pid)
			continue
		}
		o.logger.Warn("tracked pid has no process handle", zap.Uint32("pid", pid))
	}
	o.procsMu.Unlock()

	for _, proc := range procs {
		if err := o.terminator.Terminate(proc); err != nil {
			o.logger.Warn("failed to terminate browser", zap.Int("pid", proc.Pid), zap.Error(err))
		}
	}

	o.hooksMu.Lock()
	hooks := make([]func(), len(o.hooks))
	copy(hooks, o.hooks)
	o.hooksMu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	if o.metrics != nil {
		o.metrics.RecordShutdown()
	}
	o.logger.Info("browsers shut down", zap.Int("count", len(pids)))

	return len(pids)
}

// Wait blocks until every spawned child has been reaped
func (o *Orchestrator) Wait() {
	o.reapers.Wait()
}

func (o *Orchestrator) recordFork(success bool) {
	if o.metrics != nil {
		o.metrics.RecordFork(success)
	}
}
