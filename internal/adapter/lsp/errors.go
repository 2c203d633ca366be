package lsp

import "errors"

// Sentinel errors returned by the protocol client and server manager.
var (
	// ErrNotConnected is returned when an operation requires an open socket.
	ErrNotConnected = errors.New("lsp: not connected")

	// ErrNotInitialized is returned when a query is issued before the
	// initialize handshake has completed.
	ErrNotInitialized = errors.New("lsp: connection not initialized")

	// ErrTimeout is returned when no response arrived within the deadline.
	ErrTimeout = errors.New("lsp: request timed out")

	// ErrShutdown is returned when the client was closed while a request
	// was in flight.
	ErrShutdown = errors.New("lsp: client shut down")

	// ErrServerUnavailable is returned when the language server binary is
	// not installed and could not be installed.
	ErrServerUnavailable = errors.New("lsp: language server unavailable")

	// ErrUnsupportedLanguage is returned for a language id with no
	// configured server.
	ErrUnsupportedLanguage = errors.New("lsp: unsupported language")
)
