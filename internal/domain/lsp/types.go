// Package lsp defines domain types for Language Server Protocol code
// navigation. These types represent LSP concepts (positions, locations,
// hover information) in a transport-independent way for use across the
// service, adapter, and handler layers.
package lsp

// Position in a text document. The wire protocol is 0-based for both
// fields. The public query surface reports 1-based lines; that conversion
// happens in the protocol client and nowhere else.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location links a file URI to a range.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// HoverContent is the normalized contents field of a hover response.
// Servers send it as a plain string, a MarkupContent object, or a list;
// the client collapses all three into this shape.
type HoverContent struct {
	Value string `json:"value"`
	Kind  string `json:"kind,omitempty"`
}

// HoverResult contains hover information for a position. Contents is nil
// when the server had nothing to say about the position.
type HoverResult struct {
	Contents *HoverContent `json:"contents,omitempty"`
	Range    *Range        `json:"range,omitempty"`
}

// DefinitionResult holds the ordered definition locations for a symbol.
type DefinitionResult struct {
	Locations []Location `json:"locations"`
}

// ReferencesResult holds the ordered reference locations for a symbol.
type ReferencesResult struct {
	Locations []Location `json:"locations"`
}

// MessageType mirrors the LSP window/logMessage and window/showMessage
// severity enum.
const (
	MessageTypeError   = 1
	MessageTypeWarning = 2
	MessageTypeInfo    = 3
	MessageTypeLog     = 4
)

// ProgressState tracks one server-side work-done-progress token. It is
// created on the first $/progress notification for a token, updated on
// "report" and removed on "end".
type ProgressState struct {
	Kind       string `json:"kind"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Percentage *int   `json:"percentage,omitempty"`
}

// ServerStatus represents the lifecycle state of a managed language server.
type ServerStatus string

const (
	ServerStatusStopped  ServerStatus = "stopped"
	ServerStatusStarting ServerStatus = "starting"
	ServerStatusReady    ServerStatus = "ready"
	ServerStatusFailed   ServerStatus = "failed"
)

// ServerInfo describes a running language server instance.
type ServerInfo struct {
	Language string       `json:"language"`
	Status   ServerStatus `json:"status"`
	Command  []string     `json:"command"`
	Port     int          `json:"port,omitempty"`
	PID      int          `json:"pid,omitempty"`
	Error    string       `json:"error,omitempty"`
}
