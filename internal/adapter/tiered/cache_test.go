package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codenav-io/codenav/internal/adapter/tiered"
	"github.com/codenav-io/codenav/internal/port/cache/cachetest"
)

// memCache is an in-memory cache level for tests.
type memCache struct {
	data    map[string][]byte
	failSet bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.failSet {
		return errors.New("level down")
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestCompliance(t *testing.T) {
	cachetest.RunComplianceTests(t, tiered.New(newMemCache(), newMemCache(), time.Minute))
}

func TestL1HitSkipsL2(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, time.Minute)

	l1.data["key"] = []byte("from-l1")
	l2.data["key"] = []byte("from-l2")

	val, found, err := c.Get(context.Background(), "key")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "from-l1" {
		t.Fatalf("got %q, want L1 value", val)
	}
}

func TestL2HitBackfillsL1(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, time.Minute)

	l2.data["key"] = []byte("remote")

	val, found, err := c.Get(context.Background(), "key")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "remote" {
		t.Fatalf("got %q, want remote value", val)
	}
	if string(l1.data["key"]) != "remote" {
		t.Fatal("L1 not backfilled after L2 hit")
	}
}

func TestSetWritesL2First(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	l2.failSet = true
	c := tiered.New(l1, l2, time.Minute)

	if err := c.Set(context.Background(), "key", []byte("v"), time.Minute); err == nil {
		t.Fatal("Set succeeded with L2 down")
	}
	if _, ok := l1.data["key"]; ok {
		t.Fatal("L1 written despite L2 failure")
	}
}

func TestDeleteRemovesBothLevels(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, time.Minute)

	l1.data["key"] = []byte("v")
	l2.data["key"] = []byte("v")

	if err := c.Delete(context.Background(), "key"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["key"]; ok {
		t.Fatal("key survives in L1")
	}
	if _, ok := l2.data["key"]; ok {
		t.Fatal("key survives in L2")
	}
}
