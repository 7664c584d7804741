package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/langrun/internal/config"
	"github.com/dshills/langrun/internal/integration/process"
	"github.com/dshills/langrun/internal/integration/task"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		ok      bool
		code    int
		dir     string
		setKeys []string
	}{
		{"defaults", nil, true, 0, "", nil},
		{"positional dir", []string{"./proj"}, true, 0, "./proj", []string{"dir"}},
		{"flag dir wins", []string{"-dir", "a", "b"}, true, 0, "a", []string{"dir"}},
		{"compile off", []string{"-compile=false"}, true, 0, "", []string{"compile"}},
		{"two dirs", []string{"a", "b"}, false, exitUsage, "", nil},
		{"watch without config", []string{"-watch"}, false, exitUsage, "", nil},
		{"bad flag", []string{"-nope"}, false, exitUsage, "", nil},
		{"help", []string{"-h"}, false, 0, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, code, ok := parseFlags(tt.args)
			if ok != tt.ok || code != tt.code {
				t.Fatalf("parseFlags(%v) = %d, %v; want %d, %v", tt.args, code, ok, tt.code, tt.ok)
			}
			if !ok {
				return
			}
			if opts.dir != tt.dir {
				t.Errorf("dir = %q, want %q", opts.dir, tt.dir)
			}
			for _, k := range tt.setKeys {
				if !opts.set[k] {
					t.Errorf("flag %s not marked as set", k)
				}
			}
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	opts, _, ok := parseFlags([]string{"-execute=false", "-file", "main.go", "-log-level", "debug"})
	if !ok {
		t.Fatal("parseFlags failed")
	}

	cfg := config.Default()
	cfg.Execution.InputDirectory = "/from/config"
	opts.apply(&cfg)

	if cfg.Execution.Execute {
		t.Error("Execute still true")
	}
	if !cfg.Execution.Compile {
		t.Error("unset -compile overrode config")
	}
	if cfg.Execution.InputDirectory != "/from/config" {
		t.Errorf("InputDirectory = %q", cfg.Execution.InputDirectory)
	}
	if file, ok := cfg.Execution.RunningFilePath(); !ok || file != "main.go" {
		t.Errorf("RunningFile = %q, %v", file, ok)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "langrun.toml")
	data := "[execution]\ninput_directory = \"" + filepath.ToSlash(dir) + "\"\ncompile = false\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, _, _ := parseFlags([]string{"-c", path, "-execute=false"})
	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Execution.Compile || cfg.Execution.Execute {
		t.Errorf("Execution = %+v", cfg.Execution)
	}

	opts, _, _ = parseFlags([]string{"-c", filepath.Join(dir, "missing.toml")})
	if _, err := loadConfig(opts); !errors.Is(err, config.ErrFileNotFound) {
		t.Errorf("missing file err = %v", err)
	}

	opts, _, _ = parseFlags([]string{"-log-level", "loud"})
	if _, err := loadConfig(opts); !errors.Is(err, config.ErrValidationFailed) {
		t.Errorf("bad level err = %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		res  task.Result
		want int
	}{
		{task.Succeeded(0), 0},
		{task.Succeeded(3), 3},
		{task.Terminated(), exitInterrupted},
		{task.Failed(errors.New("boom")), exitFailure},
	}
	for _, tt := range tests {
		if got := exitCode(tt.res); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.res, got, tt.want)
		}
	}
}

func TestRunner_UsesSharedSupervisor(t *testing.T) {
	cfg := config.Default()
	cfg.Execution.InputDirectory = t.TempDir()
	cfg.Execution.Compile = false
	cfg.Toolchain.Name = "sh"
	cfg.Toolchain.Command = "sh"
	cfg.Toolchain.RunArgs = []string{"-c", "exit 4"}

	sup := process.NewSupervisor()
	r := &runner{
		logger:   zerolog.Nop(),
		sup:      sup,
		registry: task.NewRegistry(),
		compiler: process.DiscardSink(),
		program:  process.DiscardSink(),
	}

	if code := r.once(context.Background(), cfg); code != 4 {
		t.Errorf("once() = %d, want 4", code)
	}

	sup.Shutdown(time.Second)
	if code := r.once(context.Background(), cfg); code != exitFailure {
		t.Errorf("once() after Shutdown = %d, want %d", code, exitFailure)
	}
}
