package lsp

import (
	"context"
	"testing"
)

func TestCheckerAvailableBinary(t *testing.T) {
	c := NewChecker()
	if !c.EnsureAvailable(context.Background(), "test", []string{"sh"}) {
		t.Fatal("sh reported unavailable")
	}
	// Cached result is stable.
	if !c.EnsureAvailable(context.Background(), "test", []string{"sh"}) {
		t.Fatal("cached availability flipped")
	}
}

func TestCheckerMissingBinary(t *testing.T) {
	c := NewChecker()
	cmd := []string{"no-such-binary-for-codenav-tests"}
	if c.EnsureAvailable(context.Background(), "test", cmd) {
		t.Fatal("missing binary reported available")
	}
	if c.EnsureAvailable(context.Background(), "test", cmd) {
		t.Fatal("cached miss flipped")
	}
}

func TestCheckerEmptyCommand(t *testing.T) {
	c := NewChecker()
	if c.EnsureAvailable(context.Background(), "test", nil) {
		t.Fatal("empty command reported available")
	}
}

func TestCheckerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewChecker()
	if c.EnsureAvailable(ctx, "test", []string{"sh"}) {
		t.Fatal("cancelled context reported available")
	}
}

func TestInstallerPresentBinarySkipsInstall(t *testing.T) {
	i := NewInstaller()
	if !i.EnsureAvailable(context.Background(), "test", []string{"sh"}) {
		t.Fatal("sh reported unavailable")
	}
}

func TestInstallerNoHintRegistered(t *testing.T) {
	i := NewInstaller()
	cmd := []string{"no-such-binary-for-codenav-tests"}
	if i.EnsureAvailable(context.Background(), "cobol", cmd) {
		t.Fatal("missing binary with no install hint reported available")
	}
	// A second call must not re-attempt.
	if i.EnsureAvailable(context.Background(), "cobol", cmd) {
		t.Fatal("second attempt reported available")
	}
}
