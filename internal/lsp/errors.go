package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the LSP session.
var (
	// ErrShutdown indicates the session has been shut down.
	ErrShutdown = errors.New("lsp session shut down")

	// ErrAlreadyInitialized indicates Initialize was called twice.
	ErrAlreadyInitialized = errors.New("lsp session already initialized")

	// ErrNotInitialized indicates the session has not completed initialize.
	ErrNotInitialized = errors.New("lsp session not initialized")

	// ErrServerCrashed indicates the server process terminated unexpectedly.
	ErrServerCrashed = errors.New("server crashed")
)

// ServerError represents an error related to server lifecycle.
type ServerError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("language server %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerError) Unwrap() error {
	return e.Err
}

// HandlerError reports a fault inside an inbound message handler. It is
// logged, never returned to the transport.
type HandlerError struct {
	Method string
	Err    error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s: %v", e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
