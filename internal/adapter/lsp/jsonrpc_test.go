package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func encodeTestFrame(t *testing.T, msg *Message) []byte {
	t.Helper()
	frame, err := EncodeFrame(msg)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return frame
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	req, err := newRequest(7, "textDocument/hover", map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("newRequest: %v", err)
	}
	frame := encodeTestFrame(t, req)

	if !bytes.HasPrefix(frame, []byte("Content-Length: ")) {
		t.Fatalf("frame missing Content-Length header: %q", frame)
	}

	var dec FrameDecoder
	dec.Feed(frame)
	body, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if body == nil {
		t.Fatal("Next returned incomplete for a full frame")
	}

	msg, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Method != "textDocument/hover" {
		t.Errorf("method = %q, want textDocument/hover", msg.Method)
	}
	if msg.ID == nil || *msg.ID != 7 {
		t.Errorf("id = %v, want 7", msg.ID)
	}
	if dec.Buffered() != 0 {
		t.Errorf("decoder retained %d bytes after a complete frame", dec.Buffered())
	}
}

func TestFrameDecoderPartialFeeds(t *testing.T) {
	msg, err := newNotification("initialized", struct{}{})
	if err != nil {
		t.Fatalf("newNotification: %v", err)
	}
	frame := encodeTestFrame(t, msg)

	var dec FrameDecoder
	for i, b := range frame {
		dec.Feed([]byte{b})
		body, err := dec.Next()
		if err != nil {
			t.Fatalf("Next after byte %d: %v", i, err)
		}
		if i < len(frame)-1 {
			if body != nil {
				t.Fatalf("frame completed early at byte %d of %d", i, len(frame))
			}
			continue
		}
		if body == nil {
			t.Fatal("frame incomplete after all bytes fed")
		}
	}
}

func TestFrameDecoderMultipleFramesInOneFeed(t *testing.T) {
	var stream []byte
	for i := int64(1); i <= 3; i++ {
		req, err := newRequest(i, fmt.Sprintf("method/%d", i), nil)
		if err != nil {
			t.Fatalf("newRequest: %v", err)
		}
		stream = append(stream, encodeTestFrame(t, req)...)
	}

	var dec FrameDecoder
	dec.Feed(stream)

	for want := int64(1); want <= 3; want++ {
		body, err := dec.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if body == nil {
			t.Fatalf("frame %d missing", want)
		}
		msg, err := DecodeMessage(body)
		if err != nil {
			t.Fatalf("DecodeMessage: %v", err)
		}
		if msg.ID == nil || *msg.ID != want {
			t.Errorf("frame id = %v, want %d", msg.ID, want)
		}
	}

	if body, _ := dec.Next(); body != nil {
		t.Errorf("unexpected extra frame: %q", body)
	}
}

func TestFrameDecoderMalformedHeaderResync(t *testing.T) {
	good, err := newRequest(1, "textDocument/definition", nil)
	if err != nil {
		t.Fatalf("newRequest: %v", err)
	}

	var dec FrameDecoder
	dec.Feed([]byte("X-Garbage: yes\r\n\r\n"))
	dec.Feed(encodeTestFrame(t, good))

	if _, err := dec.Next(); !errors.Is(err, errMalformedHeader) {
		t.Fatalf("Next = %v, want errMalformedHeader", err)
	}

	body, err := dec.Next()
	if err != nil {
		t.Fatalf("Next after resync: %v", err)
	}
	if body == nil {
		t.Fatal("frame after malformed header not decoded")
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Method != "textDocument/definition" {
		t.Errorf("method = %q after resync", msg.Method)
	}
}

func TestParseContentLength(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"canonical", "Content-Length: 42", 42},
		{"lowercase", "content-length: 17", 17},
		{"extra headers", "Content-Type: application/vscode-jsonrpc\r\nContent-Length: 9", 9},
		{"no value", "Content-Type: application/vscode-jsonrpc", -1},
		{"not a number", "Content-Length: many", -1},
		{"negative", "Content-Length: -5", -1},
		{"empty", "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseContentLength([]byte(tt.header)); got != tt.want {
				t.Errorf("parseContentLength(%q) = %d, want %d", tt.header, got, tt.want)
			}
		})
	}
}

func TestIsResponse(t *testing.T) {
	id := int64(1)
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"result", Message{ID: &id, Result: json.RawMessage(`{}`)}, true},
		{"null result", Message{ID: &id, Result: json.RawMessage(`null`)}, true},
		{"error", Message{ID: &id, Error: &ResponseError{Code: -32601}}, true},
		{"notification", Message{Method: "$/progress", Params: json.RawMessage(`{}`)}, false},
		{"server request", Message{ID: &id, Method: "window/workDoneProgress/create"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsResponse(); got != tt.want {
				t.Errorf("IsResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeMessageInvalidJSON(t *testing.T) {
	if _, err := DecodeMessage([]byte("{not json")); err == nil {
		t.Fatal("DecodeMessage accepted invalid json")
	}
}
