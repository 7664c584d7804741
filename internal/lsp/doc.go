// Package lsp is the client side of a language server session.
//
// A Session wraps one go.lsp.dev/jsonrpc2 connection. Inbound traffic is
// served by a Client through a single dispatch function:
//
//   - notifications (language/status, textDocument/publishDiagnostics,
//     telemetry/event, window/showMessage, window/logMessage) are logged and,
//     for diagnostics, stored and forwarded to a DiagnosticsSink
//   - requests (window/showMessageRequest, workspace/applyEdit,
//     client/registerCapability, client/unregisterCapability,
//     workspace/workspaceFolders) are answered within the same dispatch call
//     with a fixed default, so the server is never left waiting
//   - anything else gets MethodNotFound
//
// Handlers run on the connection's read loop and never block it. A fault
// in a handler is logged and the default reply is still sent.
//
// # Diagnostics
//
// Each publish fully replaces the list for its URI. An empty publish is
// stored and forwarded, so "no problems" stays distinct from "never
// published":
//
//	list, ok := session.Diagnostics().Get(uri)
//	switch {
//	case !ok:
//	    // server has not reported on uri
//	case len(list) == 0:
//	    // clean
//	}
//
// # Launching a server
//
//	srv, err := lsp.StartServer(ctx, lsp.ServerConfig{
//	    Command: "gopls",
//	    Args:    []string{"serve"},
//	    Dir:     projectDir,
//	}, lsp.WithSessionLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer srv.Shutdown(ctx)
package lsp
