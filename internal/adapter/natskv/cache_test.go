package natskv

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/codenav-io/codenav/internal/port/cache"
	"github.com/codenav-io/codenav/internal/port/cache/cachetest"
)

const kvKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestKVKeyCharset(t *testing.T) {
	keys := []string{
		cache.QueryKey("go", "hover", "file:///pkg/a.go", 12, 4),
		"plain",
		"spaces and : colons",
		"unicode-é",
	}
	for _, key := range keys {
		encoded := kvKey(key)
		if encoded == "" {
			t.Fatalf("kvKey(%q) empty", key)
		}
		for _, r := range encoded {
			if !strings.ContainsRune(kvKeyAlphabet, r) {
				t.Fatalf("kvKey(%q) contains invalid rune %q", key, r)
			}
		}
	}
}

func TestKVKeyDistinct(t *testing.T) {
	a := kvKey(cache.QueryKey("go", "hover", "file:///a.go", 1, 1))
	b := kvKey(cache.QueryKey("go", "hover", "file:///a.go", 1, 2))
	if a == b {
		t.Fatal("distinct keys encode identically")
	}
}

// TestCompliance needs a reachable NATS server; set NATS_TEST_URL to run.
func TestCompliance(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Connect(ctx, url, "codenav-test", time.Minute)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)

	cachetest.RunComplianceTests(t, c)
}
