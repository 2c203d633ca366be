package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event types carried in the message envelope.
const (
	EventLSPStatus   = "lsp.status"
	EventLSPProgress = "lsp.progress"
)

// LSPStatusEvent is broadcast when a language server changes lifecycle
// state (started, restarted, stopped, failed).
type LSPStatusEvent struct {
	Language string `json:"language"`
	Status   string `json:"status"`
	Port     int    `json:"port,omitempty"`
	Error    string `json:"error,omitempty"`
}

// LSPProgressEvent is broadcast on server work-done progress updates,
// e.g. while a server indexes the workspace.
type LSPProgressEvent struct {
	Language   string `json:"language"`
	Token      string `json:"token"`
	Kind       string `json:"kind"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Percentage *int   `json:"percentage,omitempty"`
}

// BroadcastEvent marshals a typed event payload and broadcasts it under
// the given event type.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{Type: eventType, Payload: json.RawMessage(data)})
}
