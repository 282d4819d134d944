package cache

import (
	"context"
	"time"
)

// Key prefixes shared by every cached read path. Write paths invalidate a
// whole prefix rather than single keys; imprecise but never stale.
const (
	PrefixSearch    = "search:"
	PrefixItems     = "items:"
	PrefixCustomers = "customers:"
)

// DefaultTTL bounds how long any query result may be served from cache.
const DefaultTTL = 5 * time.Minute

// QueryCache memoizes encoded read-query results for a short window.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	InvalidatePrefix(ctx context.Context, prefix string) error
	InvalidateAll(ctx context.Context) error
}

type NoopQueryCache struct{}

func (NoopQueryCache) Get(_ context.Context, _ string) ([]byte, bool, error) { return nil, false, nil }
func (NoopQueryCache) Put(_ context.Context, _ string, _ []byte) error       { return nil }
func (NoopQueryCache) InvalidatePrefix(_ context.Context, _ string) error    { return nil }
func (NoopQueryCache) InvalidateAll(_ context.Context) error                 { return nil }
