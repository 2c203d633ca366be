// Package tiered composes an in-process L1 cache with a remote L2 into
// one cache port.
package tiered

import (
	"context"
	"time"

	"github.com/codenav-io/codenav/internal/port/cache"
)

// Cache reads through L1 into L2, backfilling L1 on an L2 hit so repeated
// queries for the same position stay in-process. Writes and deletes go to
// both levels.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration // lifetime of entries backfilled from L2
}

// New creates a tiered cache over the given levels.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get returns the value from the first level that has it.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes to both levels. L2 is written first so a remote failure
// never leaves L1 serving a value its peers cannot see.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, key, value, ttl)
}

// Delete removes the key from both levels. L1 goes first so a remote
// failure cannot resurrect the entry locally.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}
