// Package cache defines the port interface for caching encoded
// navigation query results.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the port interface for key-value caching. Values are opaque
// byte slices; callers own the encoding.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// QueryKey builds the cache key for one navigation query. Keys are scoped
// by language and operation so a server restart for one language can be
// invalidated without touching the others.
func QueryKey(language, op, uri string, line, character int) string {
	return fmt.Sprintf("lsp:%s:%s:%s:%d:%d", language, op, uri, line, character)
}
