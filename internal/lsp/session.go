package lsp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.lsp.dev/jsonrpc2"
)

// SessionStatus represents the session's lifecycle state.
type SessionStatus int32

const (
	// SessionConnected means the transport is up but initialize has not run.
	SessionConnected SessionStatus = iota
	// SessionReady means initialize completed.
	SessionReady
	// SessionShuttingDown means shutdown is in progress.
	SessionShuttingDown
	// SessionClosed means the connection is closed.
	SessionClosed
)

// String returns a human-readable status string.
func (s SessionStatus) String() string {
	switch s {
	case SessionConnected:
		return "connected"
	case SessionReady:
		return "ready"
	case SessionShuttingDown:
		return "shutting down"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one JSON-RPC connection to a language server with the
// Client serving inbound traffic.
type Session struct {
	conn   jsonrpc2.Conn
	client *Client
	logger zerolog.Logger

	timeout    time.Duration
	clientInfo ClientInfo

	status     atomic.Int32
	mu         sync.Mutex
	serverInfo *InitializeServerInfo
	closeOnce  sync.Once
	closeErr   error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger. It is also passed to the
// Client unless the Client was given its own.
func WithSessionLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClient sets the inbound handler. Defaults to NewClient with the
// session logger.
func WithClient(c *Client) SessionOption {
	return func(s *Session) {
		s.client = c
	}
}

// WithTimeout bounds initialize and shutdown. Zero disables the bound.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithClientInfo sets the name and version sent in initialize.
func WithClientInfo(name, version string) SessionOption {
	return func(s *Session) {
		s.clientInfo = ClientInfo{Name: name, Version: version}
	}
}

// Dial starts a session over rwc and begins serving inbound messages.
func Dial(ctx context.Context, rwc io.ReadWriteCloser, opts ...SessionOption) *Session {
	s := &Session{
		logger:     zerolog.Nop(),
		timeout:    30 * time.Second,
		clientInfo: ClientInfo{Name: "langrun"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = NewClient(WithClientLogger(s.logger))
	}

	s.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	s.conn.Go(ctx, s.client.Handler())
	s.status.Store(int32(SessionConnected))
	return s
}

// Status returns the current session status.
func (s *Session) Status() SessionStatus {
	return SessionStatus(s.status.Load())
}

// Client returns the inbound handler.
func (s *Session) Client() *Client {
	return s.client
}

// Diagnostics returns the diagnostics published during this session.
func (s *Session) Diagnostics() *DiagnosticsStore {
	return s.client.Diagnostics()
}

// ServerInfo returns what the server reported in initialize, if anything.
func (s *Session) ServerInfo() *InitializeServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Done is closed when the connection ends.
func (s *Session) Done() <-chan struct{} {
	return s.conn.Done()
}

// Initialize performs the initialize handshake for the workspace at root
// and sends initialized.
func (s *Session) Initialize(ctx context.Context, root string) (*InitializeResult, error) {
	switch s.Status() {
	case SessionReady:
		return nil, ErrAlreadyInitialized
	case SessionShuttingDown, SessionClosed:
		return nil, ErrShutdown
	}

	params := InitializeParams{
		ProcessID:    os.Getpid(),
		ClientInfo:   &s.clientInfo,
		Capabilities: DefaultClientCapabilities(),
	}
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace root: %w", err)
		}
		uri := FilePathToURI(abs)
		params.RootURI = uri
		params.WorkspaceFolders = []WorkspaceFolder{{URI: uri, Name: filepath.Base(abs)}}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result InitializeResult
	if _, err := s.conn.Call(ctx, "initialize", params, &result); err != nil {
		return nil, fmt.Errorf("initialize request: %w", err)
	}

	if err := s.conn.Notify(ctx, "initialized", InitializedParams{}); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	s.mu.Lock()
	s.serverInfo = result.ServerInfo
	s.mu.Unlock()
	s.status.Store(int32(SessionReady))

	ev := s.logger.Info().Str("root", string(params.RootURI))
	if result.ServerInfo != nil {
		ev = ev.Str("server", result.ServerInfo.Name).Str("version", result.ServerInfo.Version)
	}
	ev.Msg("language server initialized")

	return &result, nil
}

// Shutdown sends shutdown and exit, then closes the connection. Errors
// from an unresponsive server are returned after the connection is closed.
func (s *Session) Shutdown(ctx context.Context) error {
	status := s.Status()
	if status == SessionShuttingDown || status == SessionClosed {
		return nil
	}
	s.status.Store(int32(SessionShuttingDown))

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var err error
	if _, callErr := s.conn.Call(ctx, "shutdown", nil, nil); callErr != nil {
		err = fmt.Errorf("shutdown request: %w", callErr)
	} else if notifyErr := s.conn.Notify(ctx, "exit", nil); notifyErr != nil {
		err = fmt.Errorf("exit notification: %w", notifyErr)
	}

	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close closes the connection without the shutdown handshake and resets
// the diagnostics store.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.status.Store(int32(SessionClosed))
		s.closeErr = s.conn.Close()
		s.client.Diagnostics().Reset()
	})
	return s.closeErr
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
