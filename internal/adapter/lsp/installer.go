package lsp

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

// Availability decides whether a language server binary can be used.
type Availability interface {
	// EnsureAvailable reports whether the server command for language is
	// runnable, attempting installation if the implementation supports it.
	EnsureAvailable(ctx context.Context, language string, command []string) bool
}

// Checker verifies server binaries on PATH. It does not install anything
// itself; when a binary is missing it logs the registered install hint so
// an operator can act. Results are cached per binary.
type Checker struct {
	mu    sync.Mutex
	known map[string]bool
}

// NewChecker creates a Checker.
func NewChecker() *Checker {
	return &Checker{known: make(map[string]bool)}
}

// EnsureAvailable implements Availability.
func (c *Checker) EnsureAvailable(ctx context.Context, language string, command []string) bool {
	if len(command) == 0 {
		return false
	}
	binary := command[0]

	c.mu.Lock()
	ok, seen := c.known[binary]
	c.mu.Unlock()
	if seen {
		return ok
	}

	ok = c.probe(ctx, binary)
	if !ok {
		hint := lspDomain.InstallHint(language)
		if hint == "" {
			hint = "install " + binary + " and ensure it is on PATH"
		}
		slog.Warn("lsp server binary not available",
			"language", language, "binary", binary, "hint", hint)
	}

	c.mu.Lock()
	c.known[binary] = ok
	c.mu.Unlock()
	return ok
}

// probe checks PATH. LookPath is authoritative; running the binary is
// avoided because some servers start a session on any invocation.
func (c *Checker) probe(ctx context.Context, binary string) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

// Installer wraps a Checker and, when a binary is missing, runs the
// language's registered install command once before re-checking.
type Installer struct {
	checker *Checker

	mu        sync.Mutex
	attempted map[string]bool
}

// NewInstaller creates an Installer.
func NewInstaller() *Installer {
	return &Installer{
		checker:   NewChecker(),
		attempted: make(map[string]bool),
	}
}

// EnsureAvailable implements Availability. Installation is attempted at
// most once per language per process.
func (i *Installer) EnsureAvailable(ctx context.Context, language string, command []string) bool {
	if len(command) == 0 {
		return false
	}
	if i.checker.probe(ctx, command[0]) {
		return true
	}

	i.mu.Lock()
	tried := i.attempted[language]
	i.attempted[language] = true
	i.mu.Unlock()
	if tried {
		return false
	}

	hint := lspDomain.InstallHint(language)
	if hint == "" {
		slog.Warn("lsp no install command registered",
			"language", language, "binary", command[0])
		return false
	}

	args := strings.Fields(hint)
	slog.Info("lsp installing server", "language", language, "command", hint)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		slog.Error("lsp server install failed",
			"language", language, "error", err, "output", string(out))
		return false
	}

	return i.checker.probe(ctx, command[0])
}
