package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

// ClientState is the lifecycle state of a protocol client.
type ClientState int32

const (
	// StateDisconnected means no socket is open.
	StateDisconnected ClientState = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means the socket is open but the initialize
	// handshake has not completed. Only "initialize" may be sent.
	StateConnected
	// StateInitialized means the handshake completed and queries are
	// permitted.
	StateInitialized
	// StateShuttingDown means Close is tearing the session down.
	StateShuttingDown
)

// String returns a human-readable state name.
func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Observer receives protocol-level events. Implementations must be safe
// for concurrent use; all methods are called from the client's reader
// goroutine or the calling goroutine.
type Observer interface {
	// RequestCompleted is called once per request with its outcome.
	RequestCompleted(language, method string, elapsed time.Duration, err error)
	// LateResponseDropped is called when a response arrives for a
	// request that already timed out and was discarded.
	LateResponseDropped(language string, id int64)
	// Progress is called on every $/progress update. done is true when
	// the server reported kind "end".
	Progress(language, token string, state lspDomain.ProgressState, done bool)
	// ServerRestarted is called when a broken session is replaced with a
	// fresh server and client.
	ServerRestarted(language string)
}

type nopObserver struct{}

func (nopObserver) RequestCompleted(string, string, time.Duration, error)  {}
func (nopObserver) LateResponseDropped(string, int64)                      {}
func (nopObserver) Progress(string, string, lspDomain.ProgressState, bool) {}
func (nopObserver) ServerRestarted(string)                                 {}

// ClientConfig configures a protocol client.
type ClientConfig struct {
	Language          string        // language id, used for log and event attribution
	Workspace         string        // root directory sent as rootUri (optional)
	DialTimeout       time.Duration // TCP connect timeout
	RequestTimeout    time.Duration // default per-request timeout
	InitializeTimeout time.Duration // extended timeout for the handshake
	ReadPoll          time.Duration // read deadline so the reader observes stop promptly
	Observer          Observer      // optional; nil means no-op
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.InitializeTimeout <= 0 {
		c.InitializeTimeout = 30 * time.Second
	}
	if c.ReadPoll <= 0 {
		c.ReadPoll = 500 * time.Millisecond
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return c
}

// shutdownRequestTimeout bounds the best-effort shutdown request in Close.
const shutdownRequestTimeout = 2 * time.Second

// Client implements JSON-RPC 2.0 over Content-Length framing across one
// TCP connection to a managed language server, and presents typed
// hover/definition/references queries. The public query surface takes and
// returns 1-indexed lines; the wire is 0-indexed.
type Client struct {
	cfg ClientConfig

	state  atomic.Int32
	nextID atomic.Int64

	connMu     sync.Mutex // guards conn/stop/readerDone replacement
	conn       net.Conn
	stop       chan struct{}
	readerDone chan struct{}

	closeMu sync.Mutex // serializes Connect/Close

	writeMu sync.Mutex // serializes frame writes

	pendMu  sync.Mutex
	pending map[int64]chan *Message

	progMu   sync.Mutex
	progress map[string]lspDomain.ProgressState
	tokens   map[string]struct{}

	lateDrops atomic.Int64
}

// NewClient creates a protocol client. It does not connect; call Connect.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg:      cfg.withDefaults(),
		pending:  make(map[int64]chan *Message),
		progress: make(map[string]lspDomain.ProgressState),
		tokens:   make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) setState(s ClientState) {
	c.state.Store(int32(s))
}

// PendingRequests returns the number of requests awaiting a response.
func (c *Client) PendingRequests() int {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	return len(c.pending)
}

// LateResponsesDropped returns how many responses arrived after their
// request had already timed out and been discarded.
func (c *Client) LateResponsesDropped() int64 {
	return c.lateDrops.Load()
}

// ProgressStates returns a snapshot of the active progress tokens.
func (c *Client) ProgressStates() map[string]lspDomain.ProgressState {
	c.progMu.Lock()
	defer c.progMu.Unlock()
	out := make(map[string]lspDomain.ProgressState, len(c.progress))
	for k, v := range c.progress {
		out[k] = v
	}
	return out
}

// Connect opens a TCP connection to host:port, starts the reader
// goroutine, and drives the initialize handshake. On any failure the
// connection is torn down and an error returned.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.Close() // drop any previous session

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	c.setState(StateConnecting)

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial %s:%d: %w", host, port, err)
	}

	// Small query/response messages dominate this protocol; coalescing
	// them only adds latency.
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})

	c.connMu.Lock()
	c.conn = conn
	c.stop = stop
	c.readerDone = readerDone
	c.connMu.Unlock()

	c.pendMu.Lock()
	c.pending = make(map[int64]chan *Message)
	c.pendMu.Unlock()

	c.setState(StateConnected)
	go c.readLoop(conn, stop, readerDone)

	slog.Debug("lsp client connected", "host", host, "port", port)

	if err := c.initialize(); err != nil {
		c.teardown()
		return fmt.Errorf("initialize: %w", err)
	}

	c.setState(StateInitialized)
	slog.Info("lsp session initialized", "host", host, "port", port)
	return nil
}

// initialize performs the initialize/initialized handshake. Language
// server startup can be slow, so this uses the extended timeout.
func (c *Client) initialize() error {
	rootURI := any(nil)
	if c.cfg.Workspace != "" {
		rootURI = "file://" + c.cfg.Workspace
	}

	params := map[string]any{
		"processId": os.Getpid(),
		"clientInfo": map[string]string{
			"name":    "codenav",
			"version": "0.1.0",
		},
		"rootUri": rootURI,
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"hover": map[string]any{
					"contentFormat": []string{"markdown", "plaintext"},
				},
				"definition": map[string]any{
					"linkSupport": false,
				},
				"references": map[string]any{},
			},
			"window": map[string]any{
				"workDoneProgress": true,
			},
		},
		"workspaceFolders": nil,
	}

	resp, err := c.Call("initialize", params, c.cfg.InitializeTimeout, true)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}

	var result struct {
		Capabilities map[string]json.RawMessage `json:"capabilities"`
		ServerInfo   struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result, &result); err == nil {
		caps := make([]string, 0, len(result.Capabilities))
		for name := range result.Capabilities {
			caps = append(caps, name)
		}
		slog.Debug("lsp server capabilities received",
			"server", result.ServerInfo.Name, "count", len(caps))
	}

	if err := c.Notify("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// Call sends a request and blocks the calling goroutine until its
// response arrives, the timeout elapses, or the client shuts down. A
// response arriving after the timeout is logged and dropped by the
// reader. allowUninitialized exempts the initialize request itself from
// the handshake check.
func (c *Client) Call(method string, params any, timeout time.Duration, allowUninitialized bool) (*Message, error) {
	start := time.Now()
	resp, err := c.call(method, params, timeout, allowUninitialized)
	c.cfg.Observer.RequestCompleted(c.cfg.Language, method, time.Since(start), err)
	return resp, err
}

func (c *Client) call(method string, params any, timeout time.Duration, allowUninitialized bool) (*Message, error) {
	c.connMu.Lock()
	conn := c.conn
	stop := c.stop
	c.connMu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%s: %w", method, ErrNotConnected)
	}
	if !allowUninitialized && c.State() != StateInitialized {
		return nil, fmt.Errorf("%s: %w", method, ErrNotInitialized)
	}

	id := c.nextID.Add(1)
	msg, err := newRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	ch := make(chan *Message, 1)
	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()

	if err := c.send(msg); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		// The reader removed the pending entry before delivering.
		return resp, nil
	case <-timer.C:
		c.removePending(id)
		slog.Warn("lsp request timed out", "method", method, "id", id, "timeout", timeout)
		return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
	case <-stop:
		c.removePending(id)
		return nil, fmt.Errorf("%s: %w", method, ErrShutdown)
	}
}

// Notify sends a notification. Fire and forget, no response expected.
func (c *Client) Notify(method string, params any) error {
	msg, err := newNotification(method, params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := c.send(msg); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	return nil
}

func (c *Client) removePending(id int64) {
	c.pendMu.Lock()
	delete(c.pending, id)
	c.pendMu.Unlock()
}

// send writes one framed message to the socket.
func (c *Client) send(msg *Message) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := EncodeFrame(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readLoop owns the receive buffer: it reads socket bytes under a short
// poll deadline (so it observes stop promptly), extracts complete frames,
// and dispatches each decoded message. Framing and decoding errors are
// logged and skipped; they never terminate the loop.
func (c *Client) readLoop(conn net.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var dec FrameDecoder
	buf := make([]byte, 4096)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadPoll))
		n, err := conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			c.drainFrames(&dec)
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue // poll deadline, loop to re-check stop
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				slog.Debug("lsp connection closed", "error", err)
				return
			}
			slog.Error("lsp read failed", "error", err)
			return
		}
	}
}

// drainFrames extracts and dispatches every complete frame in the buffer.
func (c *Client) drainFrames(dec *FrameDecoder) {
	for {
		body, err := dec.Next()
		if err != nil {
			slog.Warn("lsp skipping malformed frame header")
			continue
		}
		if body == nil {
			return
		}

		msg, err := DecodeMessage(body)
		if err != nil {
			slog.Error("lsp dropping undecodable message", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound message: responses resolve their pending
// request; notifications are handled inline; everything else is logged.
func (c *Client) dispatch(msg *Message) {
	if msg.IsResponse() {
		id := *msg.ID
		c.pendMu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.pendMu.Unlock()

		if !ok {
			c.lateDrops.Add(1)
			c.cfg.Observer.LateResponseDropped(c.cfg.Language, id)
			slog.Warn("lsp dropping response for unknown request id", "id", id)
			return
		}
		ch <- msg // buffered, never blocks the reader
		return
	}

	if msg.Method != "" && msg.ID == nil {
		c.handleNotification(msg)
		return
	}

	if msg.Method != "" && msg.ID != nil {
		// Server-initiated request. Not part of the supported surface.
		slog.Warn("lsp server request not supported", "method", msg.Method, "id", *msg.ID)
		return
	}

	slog.Warn("lsp unrecognized message shape")
}

func (c *Client) handleNotification(msg *Message) {
	switch msg.Method {
	case "window/logMessage":
		c.logServerMessage("lsp server log", msg.Params)
	case "window/showMessage":
		c.logServerMessage("lsp server message", msg.Params)
	case "$/progress":
		c.handleProgress(msg.Params)
	case "window/workDoneProgress/create":
		c.registerProgressToken(msg.Params)
	default:
		slog.Debug("lsp notification ignored", "method", msg.Method)
	}
}

// logServerMessage maps the LSP message type enum to a slog level.
func (c *Client) logServerMessage(prefix string, raw json.RawMessage) {
	var params struct {
		Type    int    `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		slog.Warn("lsp invalid window message", "error", err)
		return
	}

	switch params.Type {
	case lspDomain.MessageTypeError:
		slog.Error(prefix, "message", params.Message)
	case lspDomain.MessageTypeWarning:
		slog.Warn(prefix, "message", params.Message)
	case lspDomain.MessageTypeLog:
		slog.Debug(prefix, "message", params.Message)
	default:
		slog.Info(prefix, "message", params.Message)
	}
}

// handleProgress maintains the per-token progress table: created on
// "begin" (or first sight of a token), updated on "report", removed on
// "end".
func (c *Client) handleProgress(raw json.RawMessage) {
	var params struct {
		Token json.RawMessage `json:"token"`
		Value struct {
			Kind       string `json:"kind"`
			Title      string `json:"title"`
			Message    string `json:"message"`
			Percentage *int   `json:"percentage"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		slog.Warn("lsp invalid progress notification", "error", err)
		return
	}

	token := decodeToken(params.Token)
	if token == "" {
		return
	}

	c.progMu.Lock()
	state := c.progress[token]
	if params.Value.Kind != "" {
		state.Kind = params.Value.Kind
	}
	if params.Value.Title != "" {
		state.Title = params.Value.Title
	}
	if params.Value.Message != "" {
		state.Message = params.Value.Message
	}
	if params.Value.Percentage != nil {
		state.Percentage = params.Value.Percentage
	}

	done := params.Value.Kind == "end"
	if done {
		delete(c.progress, token)
		delete(c.tokens, token)
	} else {
		c.progress[token] = state
	}
	c.progMu.Unlock()

	switch params.Value.Kind {
	case "begin":
		slog.Info("lsp progress started", "token", token, "title", state.Title)
	case "report":
		slog.Debug("lsp progress", "token", token, "message", state.Message, "percentage", params.Value.Percentage)
	case "end":
		slog.Info("lsp progress completed", "token", token, "message", state.Message)
	}

	c.cfg.Observer.Progress(c.cfg.Language, token, state, done)
}

func (c *Client) registerProgressToken(raw json.RawMessage) {
	var params struct {
		Token json.RawMessage `json:"token"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	token := decodeToken(params.Token)
	if token == "" {
		return
	}

	c.progMu.Lock()
	c.tokens[token] = struct{}{}
	c.progMu.Unlock()
	slog.Debug("lsp progress token created", "token", token)
}

// decodeToken accepts string or numeric progress tokens.
func decodeToken(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// Close terminates the session: best-effort shutdown request and exit
// notification, stop the reader, close the socket. Outstanding callers
// are woken with ErrShutdown. Calling Close when already disconnected is
// a no-op; Close never returns an error.
func (c *Client) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.State() == StateDisconnected {
		return
	}

	wasInitialized := c.State() == StateInitialized
	c.setState(StateShuttingDown)

	if wasInitialized {
		if _, err := c.call("shutdown", nil, shutdownRequestTimeout, true); err != nil {
			slog.Debug("lsp shutdown request failed", "error", err)
		}
		if err := c.Notify("exit", nil); err != nil {
			slog.Debug("lsp exit notification failed", "error", err)
		}
	}

	c.teardown()
	slog.Info("lsp session closed")
}

// teardown stops the reader and releases the socket. Safe to call twice.
func (c *Client) teardown() {
	c.connMu.Lock()
	conn := c.conn
	stop := c.stop
	readerDone := c.readerDone
	c.conn = nil
	c.stop = nil
	c.readerDone = nil
	c.connMu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		_ = conn.Close()
	}
	if readerDone != nil {
		<-readerDone
	}

	c.setState(StateDisconnected)
}
