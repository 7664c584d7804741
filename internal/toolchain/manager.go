package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/langrun/internal/config"
	"github.com/dshills/langrun/internal/integration/process"
	"github.com/dshills/langrun/internal/integration/task"
)

// Status texts shown while the pipeline runs.
const (
	StatusCompiling = "Compiling..."
	StatusExecuting = "Executing..."
)

// Errors returned by the manager.
var (
	// ErrInvalidWorkingDirectory is returned when the input directory does
	// not exist or is not a directory. Nothing is spawned.
	ErrInvalidWorkingDirectory = errors.New("invalid working directory")

	// ErrToolchainNotFound wraps spawn failures of the toolchain executable.
	ErrToolchainNotFound = errors.New("toolchain not found")
)

// CompileStatus is the outcome of the build step.
type CompileStatus int

const (
	// CompileSkipped means compilation was not requested.
	CompileSkipped CompileStatus = iota
	// CompileComplete means the build tool exited with status 0.
	CompileComplete
	// CompileFailed means the build tool exited non-zero or could not start.
	CompileFailed
)

// String returns the status name.
func (s CompileStatus) String() string {
	switch s {
	case CompileSkipped:
		return "skipped"
	case CompileComplete:
		return "complete"
	case CompileFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// CompileResult describes one build step.
type CompileResult struct {
	Status   CompileStatus
	ExitCode int
	Duration time.Duration
	// Err is set when the build tool could not be run at all.
	Err error
}

// Run is the outcome of CompileAndRun.
type Run struct {
	// Compile reports the build step.
	Compile CompileResult

	// Task is the started program, or nil when execution was not requested.
	Task *task.Task
}

// Manager runs toolchain build and run commands.
type Manager struct {
	toolchain Toolchain
	runner    process.Runner
	status    StatusReporter
	logger    zerolog.Logger
	registry  *task.Registry
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunner sets the command runner. Defaults to a process.Supervisor.
func WithRunner(r process.Runner) Option {
	return func(m *Manager) {
		m.runner = r
	}
}

// WithStatus sets the status reporter. Defaults to NopStatus.
func WithStatus(s StatusReporter) Option {
	return func(m *Manager) {
		m.status = s
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRegistry tracks every started task in r.
func WithRegistry(r *task.Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// NewManager creates a manager for tc.
func NewManager(tc Toolchain, opts ...Option) *Manager {
	m := &Manager{
		toolchain: tc,
		status:    NopStatus{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = process.NewSupervisor(process.WithLogger(m.logger))
	}
	return m
}

// Toolchain returns the managed toolchain.
func (m *Manager) Toolchain() Toolchain {
	return m.toolchain
}

// CompileAndRun compiles (if opts.Compile) and then launches the program
// (if opts.Execute). The build blocks; the program runs in the background
// as the returned Run's Task. The only error is ErrInvalidWorkingDirectory;
// every other failure is reported through the Run or the task handlers.
func (m *Manager) CompileAndRun(ctx context.Context, opts config.ExecutionOptions, compilerSink, programSink process.Sink) (*Run, error) {
	if err := checkDir(opts.InputDirectory); err != nil {
		return nil, err
	}

	m.status.SetIndeterminate(true)
	compilerSink.SetColor(process.ColorRed)

	run := &Run{}
	if opts.Compile {
		run.Compile = m.Compile(ctx, opts, compilerSink)
	}

	if !opts.Execute {
		m.status.SetStatusText("")
		m.status.SetIndeterminate(false)
		return run, nil
	}

	t, err := m.Execute(ctx, opts, programSink)
	if err != nil {
		m.status.SetStatusText("")
		m.status.SetIndeterminate(false)
		return run, err
	}
	run.Task = t
	return run, nil
}

// Compile runs the build step synchronously, routing all output to sink.
func (m *Manager) Compile(ctx context.Context, opts config.ExecutionOptions, sink process.Sink) CompileResult {
	m.logger.Info().Msg(StatusCompiling)
	m.status.SetStatusText(StatusCompiling)

	cmd := m.toolchain.BuildCommand(opts.InputDirectory)
	start := time.Now()
	code, err := m.runner.Run(ctx, cmd, sink)
	elapsed := time.Since(start)

	m.logger.Info().Msgf("Compilation completed in %dms", elapsed.Milliseconds())

	res := CompileResult{ExitCode: code, Duration: elapsed}
	switch {
	case err != nil:
		res.Status = CompileFailed
		res.Err = m.wrapSpawn(err)
		m.logger.Warn().Err(res.Err).Str("command", cmd.String()).Msg("compilation could not run")
	case code != 0:
		res.Status = CompileFailed
		m.logger.Warn().Int("exit_code", code).Str("command", cmd.String()).Msg("compilation reported errors")
	default:
		res.Status = CompileComplete
	}
	return res
}

// Execute launches the program and returns its started task immediately.
// Program output, both streams, goes to sink.
func (m *Manager) Execute(ctx context.Context, opts config.ExecutionOptions, sink process.Sink) (*task.Task, error) {
	if err := checkDir(opts.InputDirectory); err != nil {
		return nil, err
	}

	target, err := Target(opts, m.toolchain.Wildcard)
	if err != nil {
		return nil, err
	}
	cmd := m.toolchain.RunCommand(opts.InputDirectory, target)

	m.logger.Info().Msg(StatusExecuting)
	m.status.SetStatusText(StatusExecuting)
	programStart := time.Now()

	body := func(ctx context.Context) (int, error) {
		sink.SetColor(process.ColorDefault)

		proc, err := m.runner.Start(ctx, cmd, sink, sink)
		if err != nil {
			return task.ExitTerminated, m.wrapSpawn(err)
		}

		select {
		case <-proc.Done():
		case <-ctx.Done():
			_ = proc.Kill()
			<-proc.Done()
		}

		if err := proc.StreamError(); err != nil {
			return proc.ExitCode(), fmt.Errorf("streaming output: %w", err)
		}
		return proc.ExitCode(), nil
	}

	handlers := task.Handlers{
		OnSuccess: func(exitCode int) {
			elapsed := time.Since(programStart).Milliseconds()
			if exitCode < 0 {
				m.logger.Info().Msgf("Forcibly terminated after %dms", elapsed)
				return
			}
			withErrors := ""
			if exitCode > 0 {
				withErrors = "with errors "
			}
			m.logger.Info().Int("exit_code", exitCode).Msgf("Executed %sin %dms", withErrors, elapsed)
		},
		OnError: func(message string) {
			m.logger.Info().Msg("Program stopped for the reason: " + message)
		},
		Always: func(task.Result) {
			m.status.SetStatusText("")
			m.status.SetIndeterminate(false)
		},
	}

	t := task.New(m.toolchain.Name, cmd, body, handlers, task.WithLogger(m.logger))
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	if m.registry != nil {
		m.registry.Track(t)
	}
	return t, nil
}

// Target returns the run argument for opts: the running file relative to
// the input directory, or wildcard when no running file is set. A relative
// running file is taken as relative to the input directory.
func Target(opts config.ExecutionOptions, wildcard string) (string, error) {
	file, ok := opts.RunningFilePath()
	if !ok {
		return wildcard, nil
	}

	base, err := filepath.Abs(opts.InputDirectory)
	if err != nil {
		return "", fmt.Errorf("resolve input directory: %w", err)
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(base, file)
	}

	rel, err := filepath.Rel(base, file)
	if err != nil {
		return "", fmt.Errorf("running file %s: %w", file, err)
	}
	return rel, nil
}

// wrapSpawn marks spawn failures with ErrToolchainNotFound.
func (m *Manager) wrapSpawn(err error) error {
	if process.IsSpawnError(err) {
		return fmt.Errorf("%w: %s: %w", ErrToolchainNotFound, m.toolchain.Name, err)
	}
	return err
}

func checkDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidWorkingDirectory)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkingDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidWorkingDirectory, dir)
	}
	return nil
}
