package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/codenav-io/codenav/internal/adapter/ristretto"
	"github.com/codenav-io/codenav/internal/port/cache/cachetest"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCompliance(t *testing.T) {
	cachetest.RunComplianceTests(t, newCache(t))
}

func TestTTLExpiry(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "ttl-key", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "ttl-key"); !found {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(50 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "ttl-key"); found {
		t.Fatal("expected miss after TTL expiry")
	}
}
