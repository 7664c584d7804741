package toolchain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/langrun/internal/config"
	"github.com/dshills/langrun/internal/integration/process"
	"github.com/dshills/langrun/internal/integration/task"
)

// scriptRunner records every command and runs a shell script in its place.
// Scripts are keyed by the first toolchain argument ("install", "run").
type scriptRunner struct {
	sup     *process.Supervisor
	scripts map[string]string
	missing bool

	mu       sync.Mutex
	commands []process.Command
}

func newScriptRunner(scripts map[string]string) *scriptRunner {
	return &scriptRunner{sup: process.NewSupervisor(), scripts: scripts}
}

func (r *scriptRunner) substitute(cmd process.Command) process.Command {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	if r.missing {
		return process.Command{Name: "/nonexistent/langrun-toolchain", Dir: cmd.Dir, Label: cmd.Label}
	}
	script := "exit 0"
	if len(cmd.Args) > 0 {
		if s, ok := r.scripts[cmd.Args[0]]; ok {
			script = s
		}
	}
	return process.Command{Name: "sh", Args: []string{"-c", script}, Dir: cmd.Dir, Label: cmd.Label}
}

func (r *scriptRunner) Run(ctx context.Context, cmd process.Command, out io.Writer) (int, error) {
	return r.sup.Run(ctx, r.substitute(cmd), out)
}

func (r *scriptRunner) Start(ctx context.Context, cmd process.Command, stdout, stderr io.Writer) (*process.Process, error) {
	return r.sup.Start(ctx, r.substitute(cmd), stdout, stderr)
}

func (r *scriptRunner) recorded() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Command(nil), r.commands...)
}

// recordingSink captures output and color changes.
type recordingSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	colors []process.Color
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *recordingSink) SetColor(c process.Color) {
	s.mu.Lock()
	s.colors = append(s.colors, c)
	s.mu.Unlock()
}

func (s *recordingSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// statusRecorder captures status texts in order.
type statusRecorder struct {
	mu            sync.Mutex
	texts         []string
	indeterminate bool
}

func (s *statusRecorder) SetStatusText(text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
}

func (s *statusRecorder) SetIndeterminate(on bool) {
	s.mu.Lock()
	s.indeterminate = on
	s.mu.Unlock()
}

func (s *statusRecorder) snapshot() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...), s.indeterminate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	runner   *scriptRunner
	status   *statusRecorder
	logs     *syncBuffer
	compiler *recordingSink
	program  *recordingSink
	manager  *Manager
}

func newFixture(scripts map[string]string) *fixture {
	f := &fixture{
		runner:   newScriptRunner(scripts),
		status:   &statusRecorder{},
		logs:     &syncBuffer{},
		compiler: &recordingSink{},
		program:  &recordingSink{},
	}
	f.manager = NewManager(Go(),
		WithRunner(f.runner),
		WithStatus(f.status),
		WithLogger(zerolog.New(f.logs)),
	)
	return f
}

func waitTask(t *testing.T, tk *task.Task) task.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := tk.Wait(ctx)
	if err != nil {
		t.Fatalf("task did not finish: %v", err)
	}
	return res
}

func TestCompileAndRun_InvalidDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  string
	}{
		{"empty", ""},
		{"missing", filepath.Join(t.TempDir(), "missing")},
		{"file", file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			opts := config.ExecutionOptions{InputDirectory: tt.dir, Compile: true, Execute: true}

			run, err := f.manager.CompileAndRun(context.Background(), opts, f.compiler, f.program)
			if !errors.Is(err, ErrInvalidWorkingDirectory) {
				t.Fatalf("err = %v, want ErrInvalidWorkingDirectory", err)
			}
			if run != nil {
				t.Error("run should be nil")
			}
			if got := f.runner.recorded(); len(got) != 0 {
				t.Errorf("spawned %v before failing", got)
			}
		})
	}
}

func TestCompileAndRun_ExecuteOnly(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(map[string]string{"run": "echo hello"})
	opts := config.ExecutionOptions{InputDirectory: dir, Execute: true}

	run, err := f.manager.CompileAndRun(context.Background(), opts, f.compiler, f.program)
	if err != nil {
		t.Fatalf("CompileAndRun: %v", err)
	}
	if run.Compile.Status != CompileSkipped {
		t.Errorf("Compile.Status = %v, want skipped", run.Compile.Status)
	}
	if run.Task == nil {
		t.Fatal("Task is nil")
	}

	res := waitTask(t, run.Task)
	if !res.Clean() {
		t.Errorf("result = %v, want clean exit", res)
	}

	cmds := f.runner.recorded()
	if len(cmds) != 1 {
		t.Fatalf("commands = %v, want only the run step", cmds)
	}
	if got := cmds[0].String(); got != "go run ./..." {
		t.Errorf("command = %q, want %q", got, "go run ./...")
	}
	if cmds[0].Dir != dir {
		t.Errorf("Dir = %q, want %q", cmds[0].Dir, dir)
	}

	texts, indeterminate := f.status.snapshot()
	if len(texts) == 0 || texts[0] != StatusExecuting {
		t.Errorf("status texts = %q, want first %q", texts, StatusExecuting)
	}
	if texts[len(texts)-1] != "" {
		t.Errorf("status not cleared: %q", texts)
	}
	if indeterminate {
		t.Error("indeterminate progress left on")
	}

	if got := f.program.String(); got != "hello\n" {
		t.Errorf("program output = %q", got)
	}
	if f.compiler.String() != "" {
		t.Errorf("compiler output = %q, want empty", f.compiler.String())
	}
	if !strings.Contains(f.logs.String(), "Executed in ") {
		t.Errorf("logs missing execution summary: %s", f.logs.String())
	}
}

func TestCompileAndRun_CompileFailureStillExecutes(t *testing.T) {
	f := newFixture(map[string]string{
		"install": "echo 'main.go:3: undefined: x' >&2; echo building; exit 2",
		"run":     "echo ran",
	})
	opts := config.ExecutionOptions{InputDirectory: t.TempDir(), Compile: true, Execute: true}

	run, err := f.manager.CompileAndRun(context.Background(), opts, f.compiler, f.program)
	if err != nil {
		t.Fatalf("CompileAndRun: %v", err)
	}

	if run.Compile.Status != CompileFailed || run.Compile.ExitCode != 2 {
		t.Errorf("Compile = %+v, want failed with exit 2", run.Compile)
	}
	if run.Compile.Err != nil {
		t.Errorf("Compile.Err = %v, want nil for a tool error", run.Compile.Err)
	}

	out := f.compiler.String()
	if !strings.Contains(out, "undefined: x") || !strings.Contains(out, "building") {
		t.Errorf("compiler output = %q, want both streams", out)
	}
	if len(f.compiler.colors) == 0 || f.compiler.colors[0] != process.ColorRed {
		t.Errorf("compiler colors = %v, want red", f.compiler.colors)
	}

	if run.Task == nil {
		t.Fatal("execution was gated on the compile result")
	}
	waitTask(t, run.Task)
	if got := f.program.String(); got != "ran\n" {
		t.Errorf("program output = %q", got)
	}

	cmds := f.runner.recorded()
	if len(cmds) != 2 || cmds[0].String() != "go install -v -x ./..." {
		t.Errorf("commands = %v", cmds)
	}

	texts, _ := f.status.snapshot()
	if len(texts) < 2 || texts[0] != StatusCompiling || texts[1] != StatusExecuting {
		t.Errorf("status texts = %q", texts)
	}
}

func TestCompileAndRun_CompileOnly(t *testing.T) {
	f := newFixture(nil)
	opts := config.ExecutionOptions{InputDirectory: t.TempDir(), Compile: true}

	run, err := f.manager.CompileAndRun(context.Background(), opts, f.compiler, f.program)
	if err != nil {
		t.Fatalf("CompileAndRun: %v", err)
	}
	if run.Task != nil {
		t.Error("Task should be nil when execution is disabled")
	}
	if run.Compile.Status != CompileComplete {
		t.Errorf("Compile.Status = %v, want complete", run.Compile.Status)
	}

	texts, indeterminate := f.status.snapshot()
	if texts[len(texts)-1] != "" || indeterminate {
		t.Errorf("status not reset: %q, %v", texts, indeterminate)
	}
	if !strings.Contains(f.logs.String(), "Compilation completed in") {
		t.Errorf("logs = %s", f.logs.String())
	}
}

func TestCompileAndRun_RunningFile(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(nil)

	opts := config.ExecutionOptions{InputDirectory: dir, Execute: true}
	opts.SetRunningFile(filepath.Join(dir, "sub", "dir", "main.go"))

	run, err := f.manager.CompileAndRun(context.Background(), opts, f.compiler, f.program)
	if err != nil {
		t.Fatalf("CompileAndRun: %v", err)
	}
	waitTask(t, run.Task)

	cmds := f.runner.recorded()
	if len(cmds) != 1 {
		t.Fatalf("commands = %v", cmds)
	}
	args := cmds[0].Args
	if got := args[len(args)-1]; got != filepath.Join("sub", "dir", "main.go") {
		t.Errorf("run target = %q, want sub/dir/main.go", got)
	}
	if got := run.Task.Command.String(); got != "go run sub/dir/main.go" {
		t.Errorf("task command = %q", got)
	}
}

func TestCompileAndRun_SpawnFailure(t *testing.T) {
	f := newFixture(nil)
	f.runner.missing = true
	opts := config.ExecutionOptions{InputDirectory: t.TempDir(), Compile: true, Execute: true}

	var gotMsg string
	run, err := f.manager.CompileAndRun(context.Background(), opts, f.compiler, f.program)
	if err != nil {
		t.Fatalf("spawn failure must not be returned: %v", err)
	}

	if run.Compile.Status != CompileFailed || !errors.Is(run.Compile.Err, ErrToolchainNotFound) {
		t.Errorf("Compile = %+v, want failed with ErrToolchainNotFound", run.Compile)
	}

	done := make(chan struct{})
	run.Task.Observe(task.Handlers{
		OnError: func(msg string) { gotMsg = msg },
		Always:  func(task.Result) { close(done) },
	})
	<-done

	res := waitTask(t, run.Task)
	if res.Outcome != task.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if !errors.Is(res.Err, ErrToolchainNotFound) {
		t.Errorf("Err = %v, want ErrToolchainNotFound", res.Err)
	}
	if !strings.Contains(gotMsg, "toolchain not found") {
		t.Errorf("error message = %q", gotMsg)
	}
	if !strings.Contains(f.logs.String(), "Program stopped for the reason: ") {
		t.Errorf("logs = %s", f.logs.String())
	}
}

func TestExecute_ExitWithErrors(t *testing.T) {
	f := newFixture(map[string]string{"run": "echo oops >&2; exit 3"})
	opts := config.ExecutionOptions{InputDirectory: t.TempDir(), Execute: true}

	tk, err := f.manager.Execute(context.Background(), opts, f.program)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res := waitTask(t, tk)

	if res.Outcome != task.OutcomeSucceeded || res.ExitCode != 3 {
		t.Errorf("result = %v, want succeeded with exit 3", res)
	}
	if got := f.program.String(); got != "oops\n" {
		t.Errorf("program output = %q", got)
	}
	if !strings.Contains(f.logs.String(), "Executed with errors in") {
		t.Errorf("logs = %s", f.logs.String())
	}
}

func TestExecute_BackgroundChildDoesNotHoldTask(t *testing.T) {
	f := newFixture(map[string]string{"run": "sleep 5 & echo hi; exit 3"})
	opts := config.ExecutionOptions{InputDirectory: t.TempDir(), Execute: true}

	var always atomic.Int32
	tk, err := f.manager.Execute(context.Background(), opts, f.program)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	tk.Observe(task.Handlers{Always: func(task.Result) { always.Add(1) }})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := tk.Wait(ctx)
	if err != nil {
		t.Fatalf("task still unresolved after the program exited: %v", err)
	}

	if res.Outcome != task.OutcomeSucceeded || res.ExitCode != 3 {
		t.Errorf("result = %v, want succeeded with exit 3", res)
	}
	if got := f.program.String(); got != "hi\n" {
		t.Errorf("program output = %q", got)
	}
	if _, indeterminate := f.status.snapshot(); indeterminate {
		t.Error("indeterminate progress left on")
	}

	deadline := time.Now().Add(time.Second)
	for always.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := always.Load(); n != 1 {
		t.Errorf("Always observed %d times, want 1", n)
	}
}

func TestExecute_Cancel(t *testing.T) {
	f := newFixture(map[string]string{"run": "echo started; sleep 30"})
	opts := config.ExecutionOptions{InputDirectory: t.TempDir(), Execute: true}

	tk, err := f.manager.Execute(context.Background(), opts, f.program)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(f.program.String(), "started") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if !tk.Cancel() {
		t.Fatal("Cancel() rejected while running")
	}
	res := waitTask(t, tk)

	if res.Outcome != task.OutcomeTerminated || res.ExitCode != task.ExitTerminated {
		t.Errorf("result = %v, want terminated", res)
	}
	if !strings.Contains(f.logs.String(), "Forcibly terminated after") {
		t.Errorf("logs = %s", f.logs.String())
	}
	if _, indeterminate := f.status.snapshot(); indeterminate {
		t.Error("indeterminate progress left on")
	}
}

func TestExecute_Registry(t *testing.T) {
	reg := task.NewRegistry()
	f := newFixture(map[string]string{"run": "sleep 30"})
	f.manager = NewManager(Go(), WithRunner(f.runner), WithRegistry(reg))

	tk, err := f.manager.Execute(context.Background(), config.ExecutionOptions{InputDirectory: t.TempDir(), Execute: true}, f.program)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := reg.Get(tk.ID); !ok {
		t.Fatal("task not tracked")
	}

	if n := reg.CancelAll(); n != 1 {
		t.Errorf("CancelAll() = %d, want 1", n)
	}
	waitTask(t, tk)

	deadline := time.Now().Add(time.Second)
	for reg.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if reg.Count() != 0 {
		t.Error("finalized task still tracked")
	}
}

func TestTarget(t *testing.T) {
	abs := func(p ...string) string { return filepath.Join(append([]string{"/proj"}, p...)...) }

	tests := []struct {
		name string
		dir  string
		file string
		want string
	}{
		{"wildcard", "/proj", "", "./..."},
		{"absolute file", "/proj", abs("sub", "dir", "main.go"), filepath.Join("sub", "dir", "main.go")},
		{"relative file", "/proj", filepath.Join("cmd", "main.go"), filepath.Join("cmd", "main.go")},
		{"top level", "/proj/", abs("main.go"), "main.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.ExecutionOptions{InputDirectory: tt.dir}
			opts.SetRunningFile(tt.file)

			got, err := Target(opts, "./...")
			if err != nil {
				t.Fatalf("Target: %v", err)
			}
			if got != tt.want {
				t.Errorf("Target() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	tc := FromConfig(config.ToolchainConfig{Command: "/opt/go/bin/go", RunArgs: []string{"run", "-race"}})

	if tc.Command != "/opt/go/bin/go" {
		t.Errorf("Command = %q", tc.Command)
	}
	if tc.Name != "Golang" || tc.Wildcard != "./..." {
		t.Errorf("defaults not applied: %+v", tc)
	}
	if got := tc.RunCommand("/p", "./...").String(); got != "/opt/go/bin/go run -race ./..." {
		t.Errorf("RunCommand = %q", got)
	}
	if got := tc.BuildCommand("/p").String(); got != "/opt/go/bin/go install -v -x ./..." {
		t.Errorf("BuildCommand = %q", got)
	}
}

func TestLogStatus(t *testing.T) {
	var buf syncBuffer
	s := NewLogStatus(zerolog.New(&buf))

	s.SetIndeterminate(true)
	s.SetStatusText(StatusCompiling)
	if s.Text() != StatusCompiling || !s.Indeterminate() {
		t.Errorf("state = %q, %v", s.Text(), s.Indeterminate())
	}
	if !strings.Contains(buf.String(), StatusCompiling) {
		t.Errorf("log = %s", buf.String())
	}

	s.SetStatusText("")
	s.SetIndeterminate(false)
	if s.Text() != "" || s.Indeterminate() {
		t.Error("status not cleared")
	}
}

func TestCompileStatus_String(t *testing.T) {
	tests := []struct {
		s    CompileStatus
		want string
	}{
		{CompileSkipped, "skipped"},
		{CompileComplete, "complete"},
		{CompileFailed, "failed"},
		{CompileStatus(9), "unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
