package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ServerConfig defines how to start a language server.
type ServerConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables.
	Env map[string]string

	// Dir is the working directory and workspace root.
	Dir string

	// Timeout bounds initialize and shutdown (default: 30s).
	Timeout time.Duration
}

// Server is a running language server process with an initialized session.
type Server struct {
	*Session

	config ServerConfig
	cmd    *exec.Cmd
	logger zerolog.Logger

	stderr     io.Closer
	stderrDone chan struct{}

	exitCh   chan error
	waitOnce sync.Once
	waitErr  error
}

// stdio joins the server's stdout and stdin into one connection.
type stdio struct {
	io.ReadCloser
	w io.WriteCloser
}

func (s stdio) Write(p []byte) (int, error) { return s.w.Write(p) }

// Close closes both pipes. Pipes already closed by cmd.Wait are not an error.
func (s stdio) Close() error {
	werr := s.w.Close()
	rerr := s.ReadCloser.Close()
	if errors.Is(werr, os.ErrClosed) {
		werr = nil
	}
	if errors.Is(rerr, os.ErrClosed) {
		rerr = nil
	}
	return errors.Join(werr, rerr)
}

// StartServer launches the server, connects a session over its stdio and
// performs the initialize handshake for config.Dir. Server stderr is
// logged line by line at debug level.
func StartServer(ctx context.Context, config ServerConfig, opts ...SessionOption) (*Server, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	srv := &Server{
		config:     config,
		exitCh:     make(chan error, 1),
		stderrDone: make(chan struct{}),
		logger:     zerolog.Nop(),
	}

	// Resolve the logger the same way the session will.
	resolved := &Session{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(resolved)
	}
	srv.logger = resolved.logger.With().Str("server", config.Command).Logger()

	conn, err := srv.startProcess()
	if err != nil {
		return nil, &ServerError{Command: config.Command, Err: err}
	}

	opts = append([]SessionOption{WithTimeout(config.Timeout)}, opts...)
	srv.Session = Dial(ctx, conn, opts...)

	go srv.monitorProcess()

	if _, err := srv.Initialize(ctx, config.Dir); err != nil {
		srv.stopProcess()
		return nil, &ServerError{Command: config.Command, Err: err}
	}
	return srv, nil
}

// startProcess starts the language server executable.
func (s *Server) startProcess() (io.ReadWriteCloser, error) {
	cmd := exec.Command(s.config.Command, s.config.Args...)

	cmd.Env = os.Environ()
	for k, v := range s.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = s.config.Dir
	// Own process group so stopProcess reaches helpers the server forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	s.cmd = cmd
	s.stderr = stderr
	go s.logStderr(stderr)

	s.logger.Debug().Int("pid", cmd.Process.Pid).Strs("args", s.config.Args).Msg("language server started")
	return stdio{ReadCloser: stdout, w: stdin}, nil
}

// logStderr forwards server stderr to the logger.
func (s *Server) logStderr(r io.Reader) {
	defer close(s.stderrDone)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.logger.Debug().Msg(scanner.Text())
	}
}

// monitorProcess reports the process exit once. Wait closes the pipes, so
// it runs only after the connection and the stderr logger have read
// everything the server wrote.
func (s *Server) monitorProcess() {
	s.waitOnce.Do(func() {
		<-s.Session.Done()
		<-s.stderrDone
		s.waitErr = s.cmd.Wait()
		s.exitCh <- s.waitErr
		close(s.exitCh)
	})
}

// ExitChannel receives the process exit error once the server exits.
func (s *Server) ExitChannel() <-chan error {
	return s.exitCh
}

// PID returns the server process ID.
func (s *Server) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Shutdown performs the shutdown handshake and waits for the process to
// exit, killing it when ctx ends first.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Session.Shutdown(ctx)

	select {
	case <-s.exitCh:
	case <-ctx.Done():
		s.stopProcess()
	case <-time.After(s.config.Timeout):
		s.logger.Warn().Msg("language server did not exit, killing it")
		s.stopProcess()
	}
	return err
}

// stopProcess closes the session and kills the server's process group.
func (s *Server) stopProcess() {
	if s.Session != nil {
		_ = s.Session.Close()
	}
	if s.stderr != nil {
		_ = s.stderr.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		pid := s.cmd.Process.Pid
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			_ = s.cmd.Process.Kill()
		}
	}
}
