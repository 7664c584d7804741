// Package main is the entry point for langrun.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/dshills/langrun/internal/config"
	"github.com/dshills/langrun/internal/config/watcher"
	"github.com/dshills/langrun/internal/integration/process"
	"github.com/dshills/langrun/internal/integration/task"
	"github.com/dshills/langrun/internal/logging"
	"github.com/dshills/langrun/internal/lsp"
	"github.com/dshills/langrun/internal/toolchain"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes for outcomes without a program exit status.
const (
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

// options holds command-line flags. Flags left unset do not override the
// config file or environment.
type options struct {
	configPath string
	dir        string
	file       string
	compile    bool
	execute    bool
	lsp        bool
	watch      bool
	logLevel   string

	set map[string]bool
}

func run() int {
	opts, code, ok := parseFlags(os.Args[1:])
	if !ok {
		return code
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	logger, err := logging.New(logging.Options{
		App:    "langrun",
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := process.NewSupervisor(process.WithLogger(logger))
	defer sup.Shutdown(5 * time.Second)

	registry := task.NewRegistry()
	go func() {
		<-ctx.Done()
		if n := registry.CancelAll(); n > 0 {
			logger.Info().Int("tasks", n).Msg("cancelled running tasks")
		}
	}()

	if cfg.LanguageServer.Enabled {
		srv, err := startLanguageServer(ctx, cfg, logger)
		if err != nil {
			// Diagnostics are optional; the build still runs.
			logger.Warn().Err(err).Msg("language server unavailable")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					logger.Debug().Err(err).Msg("language server shutdown")
				}
			}()
		}
	}

	r := &runner{
		logger:   logger,
		sup:      sup,
		registry: registry,
		compiler: process.NewWriterSink(os.Stderr, process.WithANSI(isTerminal(os.Stderr))),
		program:  process.NewWriterSink(os.Stdout, process.WithANSI(isTerminal(os.Stdout))),
	}

	if !opts.watch {
		return r.once(ctx, cfg)
	}
	return r.watch(ctx, opts, cfg)
}

func parseFlags(args []string) (options, int, bool) {
	var opts options
	var showVersion bool

	fs := flag.NewFlagSet("langrun", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file (.toml or .yaml)")
	fs.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.dir, "dir", "", "Project directory (default from config, then \".\")")
	fs.StringVar(&opts.file, "file", "", "Run only this file instead of the whole project")
	fs.BoolVar(&opts.compile, "compile", true, "Build the project before running")
	fs.BoolVar(&opts.execute, "execute", true, "Run the program")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server and report diagnostics")
	fs.BoolVar(&opts.watch, "watch", false, "Re-run whenever the config file changes")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&showVersion, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "langrun - compile and run a Go project\n\n")
		fmt.Fprintf(os.Stderr, "Usage: langrun [options] [dir]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  langrun                       Build and run ./...\n")
		fmt.Fprintf(os.Stderr, "  langrun -file cmd/tool/main.go\n")
		fmt.Fprintf(os.Stderr, "  langrun -compile=false ./proj Run without building\n")
		fmt.Fprintf(os.Stderr, "  langrun -c langrun.toml -watch\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, 0, false
		}
		return opts, exitUsage, false
	}

	if showVersion {
		fmt.Printf("langrun %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return opts, 0, false
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if fs.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected at most one directory, got %q\n", fs.Args())
		return opts, exitUsage, false
	}
	if fs.NArg() == 1 && opts.dir == "" {
		opts.dir = fs.Arg(0)
		opts.set["dir"] = true
	}
	if opts.watch && opts.configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -watch requires -config")
		return opts, exitUsage, false
	}

	return opts, 0, true
}

// loadConfig layers the config file, environment and flags, then validates.
func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// apply overrides cfg with the flags given on the command line.
func (o options) apply(cfg *config.Config) {
	if o.set["dir"] {
		cfg.Execution.InputDirectory = o.dir
	}
	if o.set["file"] {
		cfg.Execution.SetRunningFile(o.file)
	}
	if o.set["compile"] {
		cfg.Execution.Compile = o.compile
	}
	if o.set["execute"] {
		cfg.Execution.Execute = o.execute
	}
	if o.set["lsp"] {
		cfg.LanguageServer.Enabled = o.lsp
	}
	if o.set["log-level"] {
		cfg.Log.Level = o.logLevel
	}
}

func startLanguageServer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*lsp.Server, error) {
	dir, err := cfg.Execution.AbsInputDirectory()
	if err != nil {
		return nil, err
	}

	sink := lsp.DiagnosticsSinkFunc(func(list []lsp.Diagnostic, uri lsp.DocumentURI) {
		path := lsp.URIToFilePath(uri)
		for _, d := range list {
			fmt.Fprintln(os.Stderr, lsp.FormatDiagnosticWithLocation(path, d))
		}
	})

	return lsp.StartServer(ctx, lsp.ServerConfig{
		Command: cfg.LanguageServer.Command,
		Args:    cfg.LanguageServer.Args,
		Dir:     dir,
		Timeout: time.Duration(cfg.LanguageServer.TimeoutSeconds) * time.Second,
	},
		lsp.WithSessionLogger(logger.With().Str("component", "lsp").Logger()),
		lsp.WithClientInfo("langrun", version),
		lsp.WithClient(lsp.NewClient(
			lsp.WithClientLogger(logger.With().Str("component", "lsp").Logger()),
			lsp.WithDiagnosticsSink(sink),
		)),
	)
}

// runner drives one compile-and-run cycle at a time.
type runner struct {
	logger   zerolog.Logger
	sup      *process.Supervisor
	registry *task.Registry
	compiler *process.WriterSink
	program  *process.WriterSink
}

func (r *runner) manager(cfg config.Config) *toolchain.Manager {
	return toolchain.NewManager(
		toolchain.FromConfig(cfg.Toolchain),
		toolchain.WithLogger(r.logger),
		toolchain.WithRunner(r.sup),
		toolchain.WithStatus(toolchain.NewLogStatus(r.logger)),
		toolchain.WithRegistry(r.registry),
	)
}

// once compiles and runs according to cfg and returns the process exit code.
func (r *runner) once(ctx context.Context, cfg config.Config) int {
	res, err := r.manager(cfg).CompileAndRun(ctx, cfg.Execution, r.compiler, r.program)
	if err != nil {
		r.logger.Error().Err(err).Str("dir", cfg.Execution.InputDirectory).Msg("cannot run")
		return exitFailure
	}

	if res.Task == nil {
		switch {
		case res.Compile.Err != nil:
			return exitFailure
		case res.Compile.Status == toolchain.CompileFailed:
			return res.Compile.ExitCode
		}
		return 0
	}

	// The task observes ctx, so Wait always returns once it resolves.
	result, err := res.Task.Wait(context.Background())
	if err != nil {
		return exitFailure
	}
	return exitCode(result)
}

func exitCode(res task.Result) int {
	switch res.Outcome {
	case task.OutcomeSucceeded:
		return res.ExitCode
	case task.OutcomeTerminated:
		return exitInterrupted
	default:
		return exitFailure
	}
}

// watch re-runs on every valid config change until ctx ends. A change
// cancels the run in progress.
func (r *runner) watch(ctx context.Context, opts options, cfg config.Config) int {
	w, err := watcher.New(watcher.WithLogger(r.logger))
	if err != nil {
		r.logger.Error().Err(err).Msg("cannot watch config")
		return exitFailure
	}
	defer w.Close()

	reloader, err := watcher.NewReloader(w, opts.configPath, cfg,
		watcher.WithPrepare(opts.apply),
		watcher.WithReloadLogger(r.logger),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("path", opts.configPath).Msg("cannot watch config")
		return exitFailure
	}

	reloads := make(chan config.Config, 1)
	reloader.OnReload(func(next config.Config, err error) {
		if err != nil {
			return
		}
		// Keep only the newest config.
		for {
			select {
			case reloads <- next:
				return
			default:
				select {
				case <-reloads:
				default:
				}
			}
		}
	})

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan int, 1)
		go func(cfg config.Config) { done <- r.once(runCtx, cfg) }(cfg)

		select {
		case code := <-done:
			cancel()
			r.logger.Info().Int("exit_code", code).Str("config", opts.configPath).Msg("waiting for changes")
			select {
			case <-ctx.Done():
				return code
			case cfg = <-reloads:
			}
		case cfg = <-reloads:
			cancel()
			<-done
			r.logger.Info().Msg("config changed, restarting")
		case <-ctx.Done():
			cancel()
			<-done
			return exitInterrupted
		}
	}
}

// isTerminal reports whether f should receive ANSI colour. NO_COLOR disables it.
func isTerminal(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
