package process

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Supervisor manages child processes with lifecycle tracking and cleanup.
//
// The Supervisor provides:
//   - Blocking and live command execution (it implements Runner)
//   - Context driven cancellation of the whole process group
//   - Graceful shutdown with timeout
//
// Supervisor is safe for concurrent use.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process

	// closed indicates the supervisor has been shut down
	closed atomic.Bool

	logger zerolog.Logger
}

var _ Runner = (*Supervisor)(nil)

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithLogger sets the logger used for process lifecycle events.
func WithLogger(logger zerolog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
		logger:    zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run executes cmd and blocks until it exits, routing stdout and stderr to
// out. It returns the exit status. A spawn failure is returned as a
// *SpawnError; a cancelled context kills the process and returns ctx.Err()
// alongside the exit status.
func (s *Supervisor) Run(ctx context.Context, cmd Command, out io.Writer) (int, error) {
	if out == nil {
		out = io.Discard
	}
	shared := &lockedWriter{w: out}

	proc, err := s.Start(ctx, cmd, shared, shared)
	if err != nil {
		return -1, err
	}

	<-proc.Done()

	if err := ctx.Err(); err != nil {
		return proc.ExitCode(), err
	}
	return proc.ExitCode(), nil
}

// Start spawns cmd and returns immediately. Output is streamed to stdout and
// stderr while the process runs. Cancelling ctx kills the process group.
//
// Returns ErrSupervisorShutdown if the supervisor is shutting down.
func (s *Supervisor) Start(ctx context.Context, cmd Command, stdout, stderr io.Writer) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check shutdown state under lock to prevent race
	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}

	id := uuid.New().String()
	label := cmd.Label
	if label == "" {
		label = cmd.Name
	}
	proc := NewProcess(id, label, newExecCmd(cmd))

	// Start the process before tracking (so we don't track failed starts)
	if err := proc.start(stdout, stderr); err != nil {
		var se *SpawnError
		if errors.As(err, &se) {
			se.Command = cmd
		}
		s.logger.Debug().Err(err).Str("command", cmd.String()).Msg("spawn failed")
		return nil, err
	}

	s.processes[id] = proc
	s.logger.Debug().
		Str("id", id).
		Str("label", label).
		Int("pid", proc.PID()).
		Str("dir", cmd.Dir).
		Str("command", cmd.String()).
		Msg("process started")

	go s.monitorProcess(ctx, proc)

	return proc, nil
}

// monitorProcess kills the process when ctx ends and cleans up after exit.
func (s *Supervisor) monitorProcess(ctx context.Context, proc *Process) {
	select {
	case <-proc.Done():
	case <-ctx.Done():
		if proc.IsRunning() {
			_ = proc.Kill()
		}
		<-proc.Done()
	}

	s.logger.Debug().
		Str("id", proc.ID).
		Str("label", proc.Name).
		Int("exit_code", proc.ExitCode()).
		Stringer("state", proc.State()).
		Dur("runtime", proc.Runtime()).
		Msg("process exited")

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()
}

// list returns all managed processes.
func (s *Supervisor) list() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		result = append(result, p)
	}
	return result
}

// Count returns the number of managed processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}

// Shutdown gracefully shuts down all processes and refuses new ones.
//
// It first sends SIGTERM to all processes and waits up to timeout
// for them to exit. Any processes still running after the timeout
// are killed with SIGKILL.
//
// Shutdown blocks until all processes have exited and been removed.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	if s.closed.Swap(true) {
		return // Already shutting down
	}

	procs := s.list()
	if len(procs) == 0 {
		return
	}

	s.logger.Debug().Int("processes", len(procs)).Dur("timeout", timeout).Msg("shutting down processes")

	for _, p := range procs {
		if p.IsRunning() {
			_ = p.Terminate()
		}
	}

	done := make(chan struct{})
	go func() {
		for _, p := range procs {
			<-p.Done()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		for _, p := range procs {
			if p.IsRunning() {
				_ = p.Kill()
			}
		}
		<-done
	}

	// Monitors remove exited processes from the map; wait for them so
	// Count() is 0 once Shutdown returns.
	for s.Count() > 0 {
		time.Sleep(1 * time.Millisecond)
	}
}

// ErrSupervisorShutdown is returned when the supervisor is shutting down.
var ErrSupervisorShutdown = errors.New("supervisor is shutting down")
