package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/langrun/internal/integration/process"
)

// State represents the lifecycle state of a task.
type State int

const (
	// StatePending indicates the task has been created and its body has not
	// been invoked.
	StatePending State = iota
	// StateRunning indicates the task's program is being spawned or is running.
	StateRunning
	// StateSucceeded indicates the program exited and reported a status.
	StateSucceeded
	// StateFailed indicates the program could not be run.
	StateFailed
	// StateTerminated indicates the task was cancelled while running.
	StateTerminated
	// StateFinalized indicates all handlers have returned.
	StateFinalized
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// IsTerminal reports whether the state is past Running.
func (s State) IsTerminal() bool {
	return s >= StateSucceeded
}

// Func runs the task body and returns the program exit status. A non-nil
// error means the program could not be run. It must return promptly once
// ctx is cancelled.
type Func func(ctx context.Context) (int, error)

// Handlers receive the terminal result of a task.
//
// OnSuccess receives the exit code for Succeeded and ExitTerminated for
// Terminated. OnError receives the failure message. Always receives the
// full Result after the outcome handler has returned. Nil handlers are
// skipped.
type Handlers struct {
	OnSuccess func(exitCode int)
	OnError   func(message string)
	Always    func(Result)
}

// Task is an asynchronously executing external program with a one-shot
// terminal result.
type Task struct {
	// ID is a unique identifier for this task.
	ID string

	// Label is a human-readable name (e.g. the toolchain name).
	Label string

	// Command is the invocation the task runs.
	Command process.Command

	fn       Func
	handlers Handlers
	logger   zerolog.Logger

	mu              sync.Mutex
	state           State
	cancelRequested bool
	cancel          context.CancelFunc
	result          Result
	startTime       time.Time
	endTime         time.Time

	// resolved is closed once result is set, before handlers run.
	resolved chan struct{}
	// done is closed once the construction handlers have returned.
	done chan struct{}
}

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Task) {
		t.logger = logger
	}
}

// WithID overrides the generated task ID.
func WithID(id string) Option {
	return func(t *Task) {
		t.ID = id
	}
}

// New creates a pending task.
func New(label string, cmd process.Command, fn Func, h Handlers, opts ...Option) *Task {
	t := &Task{
		ID:       uuid.New().String(),
		Label:    label,
		Command:  cmd,
		fn:       fn,
		handlers: h,
		logger:   zerolog.Nop(),
		state:    StatePending,
		resolved: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start moves the task to Running and executes it in the background.
// It returns before the program is spawned; Running includes the spawn
// attempt.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StatePending {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.state = StateRunning
	t.startTime = time.Now()
	t.mu.Unlock()

	go t.run(runCtx)
	return nil
}

// run executes the body, resolves the result and delivers handlers.
func (t *Task) run(ctx context.Context) {
	code, err := t.invoke(ctx)

	res := t.resolve(code, err)
	close(t.resolved)

	deliver(t.logger, t.handlers, res)

	t.mu.Lock()
	t.state = StateFinalized
	t.mu.Unlock()
	close(t.done)
}

// invoke calls the body, converting a panic into an error.
func (t *Task) invoke(ctx context.Context) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, err = ExitTerminated, fmt.Errorf("task panicked: %v", r)
		}
	}()
	if t.fn == nil {
		return ExitTerminated, errors.New("task has no body")
	}
	return t.fn(ctx)
}

// resolve fixes the terminal result exactly once.
func (t *Task) resolve(code int, err error) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res Result
	switch {
	case t.cancelRequested:
		// A cancel accepted while running wins over any racing exit.
		res = Terminated()
		t.state = StateTerminated
	case err != nil:
		res = Failed(err)
		t.state = StateFailed
	case code < 0:
		// Killed by something other than Cancel.
		res = Terminated()
		t.state = StateTerminated
	default:
		res = Succeeded(code)
		t.state = StateSucceeded
	}

	t.endTime = time.Now()
	res.Duration = t.endTime.Sub(t.startTime)
	t.result = res

	if t.cancel != nil {
		t.cancel()
	}
	return res
}

// deliver runs one outcome handler followed by Always.
func deliver(logger zerolog.Logger, h Handlers, res Result) {
	switch res.Outcome {
	case OutcomeSucceeded, OutcomeTerminated:
		if h.OnSuccess != nil {
			safeCall(logger, "success", func() { h.OnSuccess(res.ExitCode) })
		}
	case OutcomeFailed:
		if h.OnError != nil {
			safeCall(logger, "error", func() { h.OnError(res.Message) })
		}
	}
	if h.Always != nil {
		safeCall(logger, "always", func() { h.Always(res) })
	}
}

func safeCall(logger zerolog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("handler", name).Interface("panic", r).Msg("task handler panicked")
		}
	}()
	fn()
}

// Cancel requests forced termination. It returns true if the request was
// accepted, which only happens while the task is Running. An accepted
// cancel always resolves the task as Terminated.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.state != StateRunning || t.cancelRequested {
		t.mu.Unlock()
		return false
	}
	t.cancelRequested = true
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	return true
}

// Observe attaches additional handlers. They run once the task resolves,
// on their own goroutine; if the task already resolved they run right away.
func (t *Task) Observe(h Handlers) {
	go func() {
		<-t.resolved
		deliver(t.logger, h, t.resultLocked())
	}()
}

func (t *Task) resultLocked() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the terminal result once the task has resolved.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.resolved:
		return t.resultLocked(), true
	default:
		return Result{}, false
	}
}

// Done returns a channel that is closed after the construction handlers
// have returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task is finalized or ctx ends.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.resultLocked(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Duration returns the run time so far, or the total once resolved.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.startTime.IsZero() {
		return 0
	}
	end := t.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(t.startTime)
}

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("task already started")
