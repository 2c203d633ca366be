// Package lsp implements the Language Server Protocol subsystem: a server
// manager that exposes a stdio language server over loopback TCP, and a
// protocol client that speaks JSON-RPC 2.0 with Content-Length framing
// over that connection.
package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message represents a JSON-RPC 2.0 message (request, response, or
// notification).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`     // nil for notifications
	Method  string          `json:"method,omitempty"` // present for requests/notifications
	Params  json.RawMessage `json:"params,omitempty"` // request/notification params
	Result  json.RawMessage `json:"result,omitempty"` // response result
	Error   *ResponseError  `json:"error,omitempty"`  // response error
}

// IsResponse reports whether the message correlates to a request we sent.
func (m *Message) IsResponse() bool {
	return m.ID != nil && (m.Result != nil || m.Error != nil)
}

// ResponseError represents a JSON-RPC 2.0 error object.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// newRequest builds a request message. Params are marshaled eagerly so a
// bad payload fails in the caller, not the writer.
func newRequest(id int64, method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return &Message{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}, nil
}

// newNotification builds a notification message (no id).
func newNotification(method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// EncodeFrame marshals msg and prepends the Content-Length header,
// producing one complete wire frame.
func EncodeFrame(msg *Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)
	return buf.Bytes(), nil
}

// headerSep separates the header block from the message body.
var headerSep = []byte("\r\n\r\n")

// FrameDecoder incrementally extracts Content-Length framed messages from
// a byte stream. Callers feed it raw socket reads; it buffers partial
// frames until a complete header and body are available. A header block
// without a usable Content-Length is discarded so the decoder can
// resynchronize on the next recognizable frame instead of failing the
// stream.
type FrameDecoder struct {
	buf []byte
}

// Feed appends raw bytes from the stream to the decode buffer.
func (d *FrameDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes awaiting a complete frame.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

// errMalformedHeader signals a skipped header block; the decoder has
// already resynchronized and the caller may call Next again.
var errMalformedHeader = fmt.Errorf("lsp: malformed frame header")

// Next returns the body of the next complete frame, or nil when more
// bytes are needed. On a malformed header it discards the header block
// and returns errMalformedHeader; calling Next again resumes decoding
// from the following frame.
func (d *FrameDecoder) Next() ([]byte, error) {
	sep := bytes.Index(d.buf, headerSep)
	if sep < 0 {
		return nil, nil
	}

	header := d.buf[:sep]
	rest := d.buf[sep+len(headerSep):]

	contentLength := parseContentLength(header)
	if contentLength < 0 {
		// Skip the unusable header block and resync on what follows.
		d.buf = rest
		return nil, errMalformedHeader
	}

	if len(rest) < contentLength {
		return nil, nil // incomplete body, wait for more data
	}

	body := rest[:contentLength]
	d.buf = append([]byte(nil), rest[contentLength:]...)
	return body, nil
}

// parseContentLength extracts the Content-Length value from a header
// block, ignoring other headers (e.g. Content-Type). Returns -1 when no
// valid value is present.
func parseContentLength(header []byte) int {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return -1
		}
		return n
	}
	return -1
}

// DecodeMessage parses one frame body into a Message.
func DecodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}
