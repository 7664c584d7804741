package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited normally or with an error.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Process represents a managed child process.
//
// Process wraps an exec.Cmd with lifecycle management, exit tracking and
// two output pumps that copy stdout and stderr to their writers as bytes
// arrive. It is safe for concurrent use.
type Process struct {
	// ID is the unique identifier for this process.
	ID string

	// Name is a human-readable name for the process.
	Name string

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	// Started is the time the process was started.
	Started time.Time

	// done is closed when the process has exited and both pumps have stopped.
	done chan struct{}

	state    atomic.Int32
	exitCode atomic.Int32

	// mu protects exitErr, streamErr and pipes.
	mu        sync.RWMutex
	exitErr   error
	streamErr error
	pipes     []io.Closer

	pumps    sync.WaitGroup
	waitOnce sync.Once
	bufSize  int
}

// NewProcess creates a new Process wrapping the given command.
//
// The command should not be started before calling NewProcess.
// Use Supervisor.Start to start the process with proper tracking.
func NewProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		ID:      id,
		Name:    name,
		Cmd:     cmd,
		done:    make(chan struct{}),
		bufSize: defaultBufferSize,
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1) // -1 indicates not exited
	return p
}

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the process exit code.
// Returns -1 if the process has not exited or was killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns any error from waiting on the process.
// Returns nil if the process exited successfully or hasn't exited.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// StreamError returns the first error hit while copying output to a writer.
func (p *Process) StreamError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.streamErr
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited returns true if the process has exited (normally or killed).
func (p *Process) HasExited() bool {
	state := p.State()
	return state == StateExited || state == StateKilled
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Signal sends a signal to the process group.
// Returns an error if the process is not running.
func (p *Process) Signal(sig syscall.Signal) error {
	if !p.IsRunning() {
		return fmt.Errorf("process not running: %w", ErrProcessNotStarted)
	}

	pid := p.PID()
	if pid <= 0 {
		return ErrProcessNotStarted
	}

	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Kill sends SIGKILL to the process group and closes the output pipes so
// that blocked readers return immediately.
func (p *Process) Kill() error {
	err := p.Signal(syscall.SIGKILL)
	p.closePipes()
	return err
}

// Interrupt sends SIGINT to the process group.
func (p *Process) Interrupt() error {
	return p.Signal(syscall.SIGINT)
}

// Terminate sends SIGTERM to the process group.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// start spawns the process and begins pumping its output.
// This is called by the Supervisor.
func (p *Process) start(stdout, stderr io.Writer) error {
	if p.State() != StateCreated {
		return ErrProcessAlreadyStarted
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	// Own process group so Kill reaches grandchildren as well
	p.Cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// The pipes are created here rather than with StdoutPipe so that
	// Cmd.Wait never closes the read ends behind the pumps.
	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	p.Cmd.Stdout = outW
	p.Cmd.Stderr = errW

	err = p.Cmd.Start()
	// The child holds its own copies of the write ends.
	closeAll(outW, errW)
	if err != nil {
		closeAll(outR, errR)
		return &SpawnError{
			Command: Command{Name: p.Cmd.Path, Args: p.Cmd.Args[1:], Dir: p.Cmd.Dir, Label: p.Name},
			Err:     err,
		}
	}

	p.mu.Lock()
	p.pipes = []io.Closer{outR, errR}
	p.mu.Unlock()

	p.Started = time.Now()
	p.state.Store(int32(StateRunning))

	p.pumps.Add(2)
	go p.pump(outR, stdout)
	go p.pump(errR, stderr)

	go p.waitLoop()

	return nil
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// pump copies one output stream until it closes.
func (p *Process) pump(r io.Reader, w io.Writer) {
	defer p.pumps.Done()
	if err := streamOutput(r, w, p.bufSize); err != nil {
		p.mu.Lock()
		if p.streamErr == nil {
			p.streamErr = err
		}
		p.mu.Unlock()
	}
}

// waitLoop reaps the process, drains its output, then updates state.
//
// A background child that inherited stdout or stderr can keep the pipes
// open after the process exits. The pumps get drainGrace to reach EOF;
// after that the read ends are closed so Done never waits on the child.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.Cmd.Wait()

		drained := make(chan struct{})
		go func() {
			p.pumps.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(drainGrace):
			p.closePipes()
			<-drained
		}
		p.closePipes()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		exitCode := 0
		state := StateExited

		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			} else {
				exitCode = -1
			}
		}

		p.exitCode.Store(int32(exitCode))
		p.state.Store(int32(state))
		close(p.done)
	})
}

// closePipes closes the read ends of the output pipes.
func (p *Process) closePipes() {
	p.mu.RLock()
	pipes := p.pipes
	p.mu.RUnlock()

	for _, c := range pipes {
		_ = c.Close()
	}
}

// Runtime returns the duration the process has been running.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	return time.Since(p.Started)
}

// newExecCmd builds the exec.Cmd for a Command.
func newExecCmd(c Command) *exec.Cmd {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd
}

// drainGrace bounds how long output is read after the process exits.
const drainGrace = 200 * time.Millisecond

// Sentinel errors for process package.
var (
	// ErrProcessNotStarted is returned when operations require a started process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted is returned when trying to start an already running process.
	ErrProcessAlreadyStarted = errors.New("process already started")
)
