package lsp

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
)

// Inbound methods served by Client.
const (
	MethodLanguageStatus              = "language/status"
	MethodPublishDiagnostics          = "textDocument/publishDiagnostics"
	MethodTelemetryEvent              = "telemetry/event"
	MethodShowMessage                 = "window/showMessage"
	MethodLogMessage                  = "window/logMessage"
	MethodShowMessageRequest          = "window/showMessageRequest"
	MethodApplyEdit                   = "workspace/applyEdit"
	MethodRegisterCapability          = "client/registerCapability"
	MethodUnregisterCapability        = "client/unregisterCapability"
	MethodWorkspaceFolders            = "workspace/workspaceFolders"
	MethodJavaDidChangeWorkspaceFolds = "java/didChangeWorkspaceFolders"
)

// Client is the client side of a language server session. It answers
// every server-initiated request immediately with a fixed default, stores
// published diagnostics and forwards them to a DiagnosticsSink.
type Client struct {
	logger zerolog.Logger
	store  *DiagnosticsStore
	sink   DiagnosticsSink
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger for inbound traffic.
func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDiagnosticsSink forwards every diagnostics publish to sink.
func WithDiagnosticsSink(sink DiagnosticsSink) ClientOption {
	return func(c *Client) {
		c.sink = sink
	}
}

// WithDiagnosticsStore sets the store publishes are written to.
func WithDiagnosticsStore(store *DiagnosticsStore) ClientOption {
	return func(c *Client) {
		c.store = store
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewDiagnosticsStore()
	}
	return c
}

// Diagnostics returns the diagnostics store.
func (c *Client) Diagnostics() *DiagnosticsStore {
	return c.store
}

// Handler returns the jsonrpc2 handler for the connection. Requests get
// their reply before the handler returns; unknown requests get
// MethodNotFound.
func (c *Client) Handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		result, ok := c.Dispatch(ctx, req.Method(), req.Params())
		if _, isCall := req.(*jsonrpc2.Call); !isCall {
			return nil
		}
		if !ok {
			return reply(ctx, nil, fmt.Errorf("%q: %w", req.Method(), jsonrpc2.ErrMethodNotFound))
		}
		return reply(ctx, result, nil)
	}
}

// Dispatch handles one inbound message and returns the reply for request
// methods. ok is false for methods Client does not know. Handler faults
// are logged and never change the reply.
func (c *Client) Dispatch(ctx context.Context, method string, params json.RawMessage) (result any, ok bool) {
	result, ok = defaultReply(method)
	if !ok {
		c.logger.Debug().Str("method", method).Msg("unhandled message")
		return nil, false
	}

	if err := c.safeHandle(ctx, method, params); err != nil {
		c.logger.Warn().Err(err).Msg("handler fault")
	}
	return result, true
}

// defaultReply returns the fixed reply for method. Notifications map to a
// nil reply.
func defaultReply(method string) (any, bool) {
	switch method {
	case MethodShowMessageRequest:
		return MessageActionItem{}, true
	case MethodApplyEdit:
		return ApplyWorkspaceEditResult{Applied: true}, true
	case MethodRegisterCapability, MethodUnregisterCapability:
		return nil, true
	case MethodWorkspaceFolders:
		return []WorkspaceFolder{}, true
	case MethodLanguageStatus, MethodPublishDiagnostics, MethodTelemetryEvent,
		MethodShowMessage, MethodLogMessage, MethodJavaDidChangeWorkspaceFolds:
		return nil, true
	default:
		return nil, false
	}
}

// safeHandle runs handle, converting a panic into a HandlerError.
func (c *Client) safeHandle(ctx context.Context, method string, params json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Method: method, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := c.handle(ctx, method, params); err != nil {
		return &HandlerError{Method: method, Err: err}
	}
	return nil
}

func (c *Client) handle(_ context.Context, method string, params json.RawMessage) error {
	switch method {
	case MethodLanguageStatus:
		var p LanguageStatusParams
		if err := decode(params, &p); err != nil {
			return err
		}
		c.logger.Info().Msgf("[%s] %s", p.Type, p.Message)

	case MethodPublishDiagnostics:
		var p PublishDiagnosticsParams
		if err := decode(params, &p); err != nil {
			return err
		}
		c.publishDiagnostics(p)

	case MethodTelemetryEvent:
		withPayload(c.logger.Debug(), params).Msg("telemetry event")

	case MethodShowMessage, MethodLogMessage:
		var p ShowMessageParams
		if err := decode(params, &p); err != nil {
			return err
		}
		c.logger.WithLevel(messageLevel(p.Type)).Str("method", method).Msg(p.Message)

	case MethodJavaDidChangeWorkspaceFolds:
		withPayload(c.logger.Info(), params).Msg("workspace folders changed")

	case MethodShowMessageRequest:
		var p ShowMessageRequestParams
		if err := decode(params, &p); err != nil {
			return err
		}
		titles := make([]string, len(p.Actions))
		for i, a := range p.Actions {
			titles[i] = a.Title
		}
		c.logger.Info().
			Stringer("type", p.Type).
			Strs("actions", titles).
			Msg("show message request: " + p.Message)

	case MethodApplyEdit:
		var p ApplyWorkspaceEditParams
		if err := decode(params, &p); err != nil {
			return err
		}
		c.logger.Info().
			Str("label", p.Label).
			Int("documents", len(p.Edit.Changes)+len(p.Edit.DocumentChanges)).
			Msg("apply edit acknowledged without changes")

	case MethodRegisterCapability:
		var p RegistrationParams
		if err := decode(params, &p); err != nil {
			return err
		}
		methods := make([]string, len(p.Registrations))
		for i, r := range p.Registrations {
			methods[i] = r.Method
		}
		c.logger.Info().Strs("methods", methods).Msg("register capability")

	case MethodUnregisterCapability:
		var p UnregistrationParams
		if err := decode(params, &p); err != nil {
			return err
		}
		methods := make([]string, len(p.Unregisterations))
		for i, r := range p.Unregisterations {
			methods[i] = r.Method
		}
		c.logger.Info().Strs("methods", methods).Msg("unregister capability")

	case MethodWorkspaceFolders:
		c.logger.Info().Msg("workspace folders requested")
	}
	return nil
}

// publishDiagnostics replaces the stored list and forwards it.
func (c *Client) publishDiagnostics(p PublishDiagnosticsParams) {
	if p.Diagnostics == nil {
		p.Diagnostics = []Diagnostic{}
	}

	if len(p.Diagnostics) == 0 {
		c.logger.Info().Str("uri", string(p.URI)).Msg("diagnostics cleared")
	}
	for _, d := range p.Diagnostics {
		c.logger.Debug().
			Str("uri", string(p.URI)).
			Stringer("severity", d.Severity).
			Msg(d.Message)
	}

	c.store.Set(p.URI, p.Diagnostics)

	if c.sink != nil {
		list, _ := c.store.Get(p.URI)
		c.sink.SetDiagnostics(list, p.URI)
	}
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 || strings.TrimSpace(string(params)) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func withPayload(e *zerolog.Event, params json.RawMessage) *zerolog.Event {
	if len(params) == 0 || !json.Valid(params) {
		return e
	}
	return e.RawJSON("payload", params)
}

func messageLevel(t MessageType) zerolog.Level {
	switch t {
	case MessageTypeError:
		return zerolog.ErrorLevel
	case MessageTypeWarning:
		return zerolog.WarnLevel
	case MessageTypeInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
