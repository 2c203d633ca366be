package lsp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

// acceptPoll is how often the accept loop wakes to check for shutdown.
const acceptPoll = 500 * time.Millisecond

// stderrTailLimit bounds how much subprocess stderr is retained for
// crash diagnostics.
const stderrTailLimit = 8 * 1024

// ServerConfig configures a server manager.
type ServerConfig struct {
	Language      string        // language identifier, e.g. "python"
	Command       []string      // argv for the language server subprocess
	Workspace     string        // working directory for the subprocess
	ShutdownGrace time.Duration // wait after SIGTERM before SIGKILL
	Availability  Availability  // optional; nil skips the install check
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 500 * time.Millisecond
	}
	return c
}

// ServerManager runs one language server as a subprocess speaking the
// protocol on stdio, and exposes it over a loopback TCP listener: each
// accepted connection gets a pair of byte pumps copying client bytes to
// the subprocess stdin and subprocess stdout bytes back to the client.
// Frames are never inspected here.
type ServerManager struct {
	cfg ServerConfig

	mu       sync.Mutex
	status   lspDomain.ServerStatus
	lastErr  error
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   *tailBuffer
	procExit chan struct{}
	listener *net.TCPListener
	port     int
	stopped  chan struct{}
	wg       sync.WaitGroup

	// exitErr is written by the waiter goroutine before procExit closes.
	// It has its own lock so the waiter never contends with mu, which
	// Shutdown holds while waiting on procExit.
	exitMu  sync.Mutex
	exitErr error
}

// NewServerManager creates a manager. The server is not started; call
// Start.
func NewServerManager(cfg ServerConfig) *ServerManager {
	return &ServerManager{
		cfg:    cfg.withDefaults(),
		status: lspDomain.ServerStatusStopped,
	}
}

// Start launches the subprocess and TCP listener if they are not already
// running, and returns the listener port. If a previous session is still
// healthy the existing port is returned and nothing is spawned. If the
// subprocess has died since the last Start, the stale session is torn
// down and a fresh one launched on a new port.
func (m *ServerManager) Start(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == lspDomain.ServerStatusReady {
		if m.processAlive() {
			return m.port, nil
		}
		slog.Warn("lsp server process died, restarting",
			"language", m.cfg.Language, "error", m.exitError())
		if m.listener != nil {
			_ = m.listener.Close()
		}
		m.resetLocked()
	}

	if len(m.cfg.Command) == 0 {
		m.status = lspDomain.ServerStatusFailed
		m.lastErr = fmt.Errorf("%s: %w", m.cfg.Language, ErrUnsupportedLanguage)
		return 0, m.lastErr
	}

	m.status = lspDomain.ServerStatusStarting

	if m.cfg.Availability != nil {
		if !m.cfg.Availability.EnsureAvailable(ctx, m.cfg.Language, m.cfg.Command) {
			m.status = lspDomain.ServerStatusFailed
			m.lastErr = fmt.Errorf("%s (%s): %w",
				m.cfg.Language, m.cfg.Command[0], ErrServerUnavailable)
			return 0, m.lastErr
		}
	}

	if err := m.spawnLocked(); err != nil {
		m.status = lspDomain.ServerStatusFailed
		m.lastErr = err
		return 0, err
	}

	if err := m.listenLocked(); err != nil {
		m.stopProcessLocked()
		m.status = lspDomain.ServerStatusFailed
		m.lastErr = err
		return 0, err
	}

	m.status = lspDomain.ServerStatusReady
	m.lastErr = nil
	slog.Info("lsp server started",
		"language", m.cfg.Language,
		"command", m.cfg.Command[0],
		"pid", m.cmd.Process.Pid,
		"port", m.port)
	return m.port, nil
}

// spawnLocked launches the subprocess. The process lifetime is owned by
// the manager, not the caller's context, so plain exec.Command.
func (m *ServerManager) spawnLocked() error {
	cmd := exec.Command(m.cfg.Command[0], m.cfg.Command[1:]...)
	if m.cfg.Workspace != "" {
		cmd.Dir = m.cfg.Workspace
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.cfg.Command[0], err)
	}

	m.cmd = cmd
	m.stdin = stdin
	m.stdout = stdout
	m.stderr = stderr
	m.procExit = make(chan struct{})

	// Sole owner of Wait. Everyone else watches procExit.
	procExit := m.procExit
	go func() {
		err := cmd.Wait()
		m.exitMu.Lock()
		m.exitErr = err
		m.exitMu.Unlock()
		close(procExit)
		if err != nil {
			slog.Warn("lsp server process exited",
				"language", m.cfg.Language,
				"error", err,
				"stderr", stderr.String())
		}
	}()
	return nil
}

func (m *ServerManager) listenLocked() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return errors.New("listen: not a tcp listener")
	}

	m.listener = tcpLn
	m.port = tcpLn.Addr().(*net.TCPAddr).Port
	m.stopped = make(chan struct{})

	m.wg.Add(1)
	go m.acceptLoop(tcpLn, m.stopped, m.procExit)
	return nil
}

// acceptLoop accepts client connections until told to stop. The deadline
// keeps Accept from blocking forever so shutdown is observed within one
// poll interval.
func (m *ServerManager) acceptLoop(ln *net.TCPListener, stopped, procExit <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-stopped:
			return
		case <-procExit:
			return
		default:
		}

		_ = ln.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("lsp accept failed", "language", m.cfg.Language, "error", err)
			return
		}

		m.wg.Add(1)
		go m.handleConn(conn, stopped, procExit)
	}
}

// handleConn bridges one client connection to the subprocess stdio with
// two concurrent pumps. Either direction failing, the process exiting, or
// shutdown tears the bridge down.
func (m *ServerManager) handleConn(conn net.Conn, stopped, procExit <-chan struct{}) {
	defer m.wg.Done()
	defer conn.Close()

	connID := uuid.NewString()[:8]
	slog.Debug("lsp client connected",
		"language", m.cfg.Language, "conn", connID, "remote", conn.RemoteAddr())

	m.mu.Lock()
	stdin := m.stdin
	stdout := m.stdout
	m.mu.Unlock()
	if stdin == nil || stdout == nil {
		return
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		_, err := io.Copy(stdin, conn)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(conn, stdout)
		return err
	})
	// Unblock the pumps when the process dies or we shut down.
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-stopped:
		case <-procExit:
		}
		_ = conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		slog.Debug("lsp bridge closed",
			"language", m.cfg.Language, "conn", connID, "error", err)
	}
	slog.Debug("lsp client disconnected", "language", m.cfg.Language, "conn", connID)
}

// Port returns the listener port, or 0 when not running.
func (m *ServerManager) Port() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// Info reports the manager's current state for status surfaces.
func (m *ServerManager) Info() lspDomain.ServerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := lspDomain.ServerInfo{
		Language: m.cfg.Language,
		Status:   m.status,
		Command:  m.cfg.Command,
		Port:     m.port,
	}
	if m.cmd != nil && m.cmd.Process != nil {
		info.PID = m.cmd.Process.Pid
	}
	if m.lastErr != nil {
		info.Error = m.lastErr.Error()
	}
	if info.Status == lspDomain.ServerStatusReady && !m.processAlive() {
		info.Status = lspDomain.ServerStatusFailed
	}
	return info
}

// Healthy reports whether a started subprocess is still running.
func (m *ServerManager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == lspDomain.ServerStatusReady && m.processAlive()
}

func (m *ServerManager) processAlive() bool {
	if m.procExit == nil {
		return false
	}
	select {
	case <-m.procExit:
		return false
	default:
		return true
	}
}

// Shutdown stops the listener, terminates the subprocess (SIGTERM, a
// grace period, then SIGKILL), and waits for in-flight bridges to drain.
// The process must die before the drain: a bridge pump blocked reading
// the subprocess stdout only unblocks when the pipe reaches EOF.
// Idempotent; safe to call on a manager that never started.
func (m *ServerManager) Shutdown() {
	m.mu.Lock()
	if m.status == lspDomain.ServerStatusStopped {
		m.mu.Unlock()
		return
	}

	if m.stopped != nil {
		close(m.stopped)
		m.stopped = nil
	}
	if m.listener != nil {
		_ = m.listener.Close()
		m.listener = nil
	}
	m.stopProcessLocked()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()

	slog.Info("lsp server stopped", "language", m.cfg.Language)
}

// stopProcessLocked terminates the subprocess gracefully, escalating to
// SIGKILL after the grace period. Caller holds m.mu.
func (m *ServerManager) stopProcessLocked() {
	if m.cmd == nil || m.cmd.Process == nil {
		return
	}
	cmd := m.cmd
	procExit := m.procExit

	if m.stdin != nil {
		_ = m.stdin.Close()
	}

	select {
	case <-procExit:
		return // already gone
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Debug("lsp terminate signal failed", "language", m.cfg.Language, "error", err)
	}

	select {
	case <-procExit:
		return
	case <-time.After(m.cfg.ShutdownGrace):
	}

	slog.Warn("lsp server did not exit, killing", "language", m.cfg.Language, "pid", cmd.Process.Pid)
	_ = cmd.Process.Kill()
	<-procExit
}

func (m *ServerManager) exitError() error {
	m.exitMu.Lock()
	defer m.exitMu.Unlock()
	return m.exitErr
}

// resetLocked clears all session state so the next Start spawns fresh.
// Caller holds m.mu.
func (m *ServerManager) resetLocked() {
	m.cmd = nil
	m.stdin = nil
	m.stdout = nil
	m.stderr = nil
	m.procExit = nil
	m.listener = nil
	m.port = 0
	m.stopped = nil
	m.status = lspDomain.ServerStatusStopped

	m.exitMu.Lock()
	m.exitErr = nil
	m.exitMu.Unlock()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		excess := t.buf.Len() - t.limit
		t.buf.Next(excess)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
