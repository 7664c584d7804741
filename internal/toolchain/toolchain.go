package toolchain

import (
	"github.com/dshills/langrun/internal/config"
	"github.com/dshills/langrun/internal/integration/process"
)

// Toolchain describes how to build and run a project for one language.
type Toolchain struct {
	// Name labels commands and log entries (e.g. "Golang").
	Name string

	// Command is the toolchain executable.
	Command string

	// BuildArgs are the arguments of the build step.
	BuildArgs []string

	// RunArgs precede the run target in the run step.
	RunArgs []string

	// Wildcard is the run target covering the whole project.
	Wildcard string
}

// Go returns the Go toolchain: "go install -v -x ./..." to build and
// "go run <target>" to run.
func Go() Toolchain {
	return Toolchain{
		Name:      "Golang",
		Command:   "go",
		BuildArgs: []string{"install", "-v", "-x", "./..."},
		RunArgs:   []string{"run"},
		Wildcard:  "./...",
	}
}

// FromConfig builds a Toolchain from configuration. Empty fields fall back
// to the Go toolchain.
func FromConfig(c config.ToolchainConfig) Toolchain {
	tc := Go()
	if c.Name != "" {
		tc.Name = c.Name
	}
	if c.Command != "" {
		tc.Command = c.Command
	}
	if c.BuildArgs != nil {
		tc.BuildArgs = append([]string(nil), c.BuildArgs...)
	}
	if c.RunArgs != nil {
		tc.RunArgs = append([]string(nil), c.RunArgs...)
	}
	if c.Wildcard != "" {
		tc.Wildcard = c.Wildcard
	}
	return tc
}

// BuildCommand returns the build invocation in dir.
func (tc Toolchain) BuildCommand(dir string) process.Command {
	return process.Command{
		Name:  tc.Command,
		Args:  append([]string(nil), tc.BuildArgs...),
		Dir:   dir,
		Label: tc.Name,
	}
}

// RunCommand returns the run invocation of target in dir.
func (tc Toolchain) RunCommand(dir, target string) process.Command {
	args := make([]string, 0, len(tc.RunArgs)+1)
	args = append(args, tc.RunArgs...)
	args = append(args, target)
	return process.Command{
		Name:  tc.Command,
		Args:  args,
		Dir:   dir,
		Label: tc.Name,
	}
}
