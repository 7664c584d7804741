package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Command describes a single external tool invocation.
type Command struct {
	// Name is the program to execute, resolved through PATH.
	Name string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory.
	Dir string

	// Label is a human-readable name for logs (e.g. "Golang").
	Label string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string
}

// Argv returns the full argument vector including the program name.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

// String returns the command line as it would be typed in a shell.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner executes external commands.
//
// Run blocks until the command exits and routes both output streams to out.
// Start returns as soon as the process is spawned; output is streamed to
// stdout and stderr while it runs and cancelling ctx kills it. When the
// same writer is passed for both streams it must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Command, out io.Writer) (int, error)
	Start(ctx context.Context, cmd Command, stdout, stderr io.Writer) (*Process, error)
}

// SpawnError reports that the operating system refused to start a command,
// typically because the executable is missing or not permitted.
type SpawnError struct {
	Command Command
	Err     error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSpawnError reports whether err was caused by a failed process spawn.
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}
