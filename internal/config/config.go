// Package config holds the typed configuration for langrun.
//
// Configuration is resolved once at session start from, in increasing
// precedence, built-in defaults, a TOML or YAML file and LANGRUN_*
// environment variables. Command-line flags are applied by the caller
// before Validate.
package config

import (
	"path/filepath"
	"strings"
)

// Config is the complete langrun configuration.
type Config struct {
	Execution      ExecutionOptions     `toml:"execution" yaml:"execution"`
	Toolchain      ToolchainConfig      `toml:"toolchain" yaml:"toolchain"`
	LanguageServer LanguageServerConfig `toml:"language_server" yaml:"language_server"`
	Log            LogConfig            `toml:"log" yaml:"log"`
}

// ExecutionOptions controls one compile-and-run request.
type ExecutionOptions struct {
	// InputDirectory is the project root the tools run in.
	InputDirectory string `toml:"input_directory" yaml:"input_directory"`

	// Compile enables the build step.
	Compile bool `toml:"compile" yaml:"compile"`

	// Execute enables the run step.
	Execute bool `toml:"execute" yaml:"execute"`

	// RunningFile optionally selects a single file to run. Nil means the
	// whole project.
	RunningFile *string `toml:"running_file,omitempty" yaml:"running_file,omitempty"`
}

// RunningFilePath returns the running file and whether one is set.
func (o ExecutionOptions) RunningFilePath() (string, bool) {
	if o.RunningFile == nil || *o.RunningFile == "" {
		return "", false
	}
	return *o.RunningFile, true
}

// SetRunningFile sets the running file. An empty path clears it.
func (o *ExecutionOptions) SetRunningFile(path string) {
	if path == "" {
		o.RunningFile = nil
		return
	}
	o.RunningFile = &path
}

// ToolchainConfig describes the build and run commands of a language.
type ToolchainConfig struct {
	// Name labels the toolchain in logs (e.g. "Golang").
	Name string `toml:"name" yaml:"name"`

	// Command is the toolchain executable.
	Command string `toml:"command" yaml:"command"`

	// BuildArgs are passed to Command for the compile step.
	BuildArgs []string `toml:"build_args" yaml:"build_args"`

	// RunArgs are passed to Command before the run target.
	RunArgs []string `toml:"run_args" yaml:"run_args"`

	// Wildcard is the run target used when no running file is set.
	Wildcard string `toml:"wildcard" yaml:"wildcard"`
}

// LanguageServerConfig describes the language server to connect to.
type LanguageServerConfig struct {
	// Enabled starts a session alongside the run.
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Command is the server executable.
	Command string `toml:"command" yaml:"command"`

	// Args are command-line arguments.
	Args []string `toml:"args" yaml:"args"`

	// TimeoutSeconds bounds the initialize and shutdown handshakes.
	TimeoutSeconds int `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// LogConfig controls the logger.
type LogConfig struct {
	// Level is a zerolog level name (trace, debug, info, warn, error).
	Level string `toml:"level" yaml:"level"`

	// Format is "console" or "json".
	Format string `toml:"format" yaml:"format"`
}

// Default returns the built-in configuration: the Go toolchain, compile and
// execute enabled, gopls as language server (disabled).
func Default() Config {
	return Config{
		Execution: ExecutionOptions{
			InputDirectory: ".",
			Compile:        true,
			Execute:        true,
		},
		Toolchain: ToolchainConfig{
			Name:      "Golang",
			Command:   "go",
			BuildArgs: []string{"install", "-v", "-x", "./..."},
			RunArgs:   []string{"run"},
			Wildcard:  "./...",
		},
		LanguageServer: LanguageServerConfig{
			Enabled:        false,
			Command:        "gopls",
			Args:           []string{"serve"},
			TimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.Execution.InputDirectory) == "" {
		errs = append(errs, &ValidationError{Field: "execution.input_directory", Message: "must not be empty"})
	}
	if c.Execution.RunningFile != nil && strings.TrimSpace(*c.Execution.RunningFile) == "" {
		errs = append(errs, &ValidationError{Field: "execution.running_file", Message: "must not be blank when set"})
	}
	if strings.TrimSpace(c.Toolchain.Command) == "" {
		errs = append(errs, &ValidationError{Field: "toolchain.command", Message: "must not be empty"})
	}
	if c.LanguageServer.Enabled && strings.TrimSpace(c.LanguageServer.Command) == "" {
		errs = append(errs, &ValidationError{Field: "language_server.command", Message: "required when enabled"})
	}
	if c.LanguageServer.TimeoutSeconds < 0 {
		errs = append(errs, &ValidationError{Field: "language_server.timeout_seconds", Message: "must not be negative"})
	}
	if !validLevel(c.Log.Level) {
		errs = append(errs, &ValidationError{Field: "log.level", Message: "unknown level " + c.Log.Level})
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, &ValidationError{Field: "log.format", Message: "must be console or json"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// AbsInputDirectory returns the input directory as an absolute path.
func (o ExecutionOptions) AbsInputDirectory() (string, error) {
	return filepath.Abs(o.InputDirectory)
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
		return true
	}
	return false
}
