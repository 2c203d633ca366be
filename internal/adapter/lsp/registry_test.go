package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/codenav-io/codenav/internal/config"
	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

const helperEnv = "CODENAV_LSP_HELPER_PROCESS"

// TestHelperProcess is not a real test: when re-executed as a subprocess
// it acts as a minimal language server on stdio, answering initialize,
// shutdown, and hover. This lets registry tests run the full
// spawn/bridge/handshake path without an installed language server.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}

	var dec FrameDecoder
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				body, derr := dec.Next()
				if derr != nil {
					continue
				}
				if body == nil {
					break
				}
				msg, derr := DecodeMessage(body)
				if derr != nil || msg.ID == nil || msg.Method == "" {
					if msg != nil && msg.Method == "exit" {
						os.Exit(0)
					}
					continue
				}
				helperRespond(msg)
			}
		}
		if err != nil {
			os.Exit(0)
		}
	}
}

func helperRespond(msg *Message) {
	var result json.RawMessage
	switch msg.Method {
	case "initialize":
		result = json.RawMessage(`{"capabilities":{"hoverProvider":true}}`)
	case "shutdown":
		result = json.RawMessage(`null`)
	case "textDocument/hover":
		result = json.RawMessage(`{"contents":"mock hover"}`)
	default:
		result = json.RawMessage(`null`)
	}
	frame, err := EncodeFrame(&Message{JSONRPC: "2.0", ID: msg.ID, Result: result})
	if err != nil {
		os.Exit(1)
	}
	if _, err := os.Stdout.Write(frame); err != nil {
		os.Exit(1)
	}
}

func testRegistryConfig(t *testing.T) config.LSP {
	t.Helper()
	t.Setenv(helperEnv, "1")
	return config.LSP{
		DialTimeout:       time.Second,
		RequestTimeout:    2 * time.Second,
		InitializeTimeout: 5 * time.Second,
		ShutdownGrace:     200 * time.Millisecond,
		ReadPoll:          20 * time.Millisecond,
		Servers: config.Servers{
			"mock": {os.Args[0], "-test.run=TestHelperProcess"},
		},
	}
}

func TestRegistryClientEndToEnd(t *testing.T) {
	reg := NewRegistry(testRegistryConfig(t), nil, nil)
	t.Cleanup(reg.Shutdown)

	cl, err := reg.Client(context.Background(), "mock")
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if cl.State() != StateInitialized {
		t.Fatalf("state = %v, want initialized", cl.State())
	}

	res, err := cl.Hover("file:///a.py", 3, 1)
	if err != nil {
		t.Fatalf("Hover: %v", err)
	}
	if res.Contents == nil || res.Contents.Value != "mock hover" {
		t.Fatalf("hover = %+v", res.Contents)
	}

	again, err := reg.Client(context.Background(), "mock")
	if err != nil {
		t.Fatalf("second Client: %v", err)
	}
	if again != cl {
		t.Error("healthy client not reused")
	}
}

func TestRegistryConcurrentClientsShareSession(t *testing.T) {
	reg := NewRegistry(testRegistryConfig(t), nil, nil)
	t.Cleanup(reg.Shutdown)

	const callers = 6
	clients := make([]*Client, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], errs[i] = reg.Client(context.Background(), "mock")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if clients[i] != clients[0] {
			t.Fatal("concurrent callers got different clients")
		}
	}

	if len(reg.Status()) != 1 {
		t.Errorf("managers = %d, want 1", len(reg.Status()))
	}
}

func TestRegistryUnsupportedLanguage(t *testing.T) {
	reg := NewRegistry(config.LSP{}, nil, nil)
	t.Cleanup(reg.Shutdown)

	if _, err := reg.Client(context.Background(), "cobol"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("Client = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestRegistryCommandResolution(t *testing.T) {
	reg := NewRegistry(config.LSP{
		Servers: config.Servers{
			"python": {"custom-pylsp", "--verbose"},
		},
	}, nil, nil)

	if got := reg.commandFor("python"); got[0] != "custom-pylsp" {
		t.Errorf("override ignored: %v", got)
	}
	if got := reg.commandFor("go"); len(got) == 0 || got[0] != "gopls" {
		t.Errorf("default not used: %v", got)
	}
	if got := reg.commandFor("cobol"); got != nil {
		t.Errorf("unsupported language resolved to %v", got)
	}
}

func TestRegistryStatusSorted(t *testing.T) {
	reg := NewRegistry(config.LSP{}, nil, nil)
	t.Cleanup(reg.Shutdown)

	reg.Manager("python")
	reg.Manager("go")
	reg.Manager("typescript")

	infos := reg.Status()
	if len(infos) != 3 {
		t.Fatalf("status entries = %d, want 3", len(infos))
	}
	want := []string{"go", "python", "typescript"}
	for i, info := range infos {
		if info.Language != want[i] {
			t.Errorf("status[%d] = %s, want %s", i, info.Language, want[i])
		}
		if info.Status != lspDomain.ServerStatusStopped {
			t.Errorf("%s status = %s, want stopped", info.Language, info.Status)
		}
	}
}

func TestRegistryShutdown(t *testing.T) {
	reg := NewRegistry(testRegistryConfig(t), nil, nil)

	cl, err := reg.Client(context.Background(), "mock")
	if err != nil {
		t.Fatalf("Client: %v", err)
	}

	reg.Shutdown()
	if cl.State() != StateDisconnected {
		t.Errorf("client state = %v after shutdown", cl.State())
	}
	reg.Shutdown() // idempotent
}
