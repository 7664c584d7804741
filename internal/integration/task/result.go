package task

import (
	"fmt"
	"time"
)

// ExitTerminated is the exit code reported for a forcibly terminated task.
const ExitTerminated = -1

// Outcome is the terminal variant of a task.
type Outcome int

const (
	// OutcomeSucceeded means the program ran and reported an exit status.
	OutcomeSucceeded Outcome = iota + 1
	// OutcomeFailed means the program could not be run or its output failed.
	OutcomeFailed
	// OutcomeTerminated means the task was cancelled while running.
	OutcomeTerminated
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Result is the terminal state of a task.
type Result struct {
	// Outcome selects which fields are meaningful.
	Outcome Outcome

	// ExitCode is the program exit status for OutcomeSucceeded and
	// ExitTerminated for OutcomeTerminated.
	ExitCode int

	// Message is a human-readable failure reason for OutcomeFailed.
	Message string

	// Err is the underlying error for OutcomeFailed.
	Err error

	// Duration is the wall-clock time between Start and resolution.
	Duration time.Duration
}

// Succeeded returns a Result for a program that exited with code.
func Succeeded(code int) Result {
	return Result{Outcome: OutcomeSucceeded, ExitCode: code}
}

// Failed returns a Result for a run that could not complete.
func Failed(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Outcome: OutcomeFailed, ExitCode: ExitTerminated, Message: msg, Err: err}
}

// Terminated returns a Result for a forcibly stopped task.
func Terminated() Result {
	return Result{Outcome: OutcomeTerminated, ExitCode: ExitTerminated, Message: "forcibly terminated"}
}

// Clean reports whether the program exited with status 0.
func (r Result) Clean() bool {
	return r.Outcome == OutcomeSucceeded && r.ExitCode == 0
}

// String returns a short description for logs.
func (r Result) String() string {
	switch r.Outcome {
	case OutcomeSucceeded:
		return fmt.Sprintf("succeeded (exit %d)", r.ExitCode)
	case OutcomeFailed:
		return "failed: " + r.Message
	case OutcomeTerminated:
		return "terminated"
	default:
		return "unresolved"
	}
}
