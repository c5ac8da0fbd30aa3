// Package cache provides the domain interface for caching read-path views
// and invalidating them by scope after a write.
package cache

import (
	"context"
	"strings"
	"time"
)

// Scope groups cached entries that are invalidated together.
type Scope string

// Scopes of views that depend on a post's interaction policy.
const (
	// ScopePostThread holds post thread views.
	ScopePostThread Scope = "post-thread"
	// ScopeThreadgateRecord holds decoded reply-policy views.
	ScopeThreadgateRecord Scope = "threadgate-record"
	// ScopePostgateRecord holds decoded quote-policy views.
	ScopePostgateRecord Scope = "postgate-record"
)

// Key builds the cache key of an entry within a scope.
func Key(scope Scope, id string) string {
	return string(scope) + ":" + id
}

// Prefix returns the key prefix shared by every entry of a scope.
func (s Scope) Prefix() string {
	return string(s) + ":"
}

// ScopeOf returns the scope of a key built with Key.
func ScopeOf(key string) Scope {
	scope, _, _ := strings.Cut(key, ":")
	return Scope(scope)
}

// Cache defines the interface for view caching.
// Implementations may be in-memory, Redis, or any other backend.
type Cache interface {
	// Get retrieves a cached value by key.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given key and options.
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error

	// Delete removes a cached entry by key.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every entry whose key starts with prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error
}

// SetOptions configures how a value is stored in the cache.
type SetOptions struct {
	// TTL is the time-to-live for the cached entry.
	// Zero means no expiration.
	TTL time.Duration
}

// Stats provides cache statistics.
type Stats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
	Size          int64
	MaxSize       int64
}

// StatsProvider is an optional interface for caches that support statistics.
type StatsProvider interface {
	Stats() Stats
}

// Invalidate removes every entry of the given scopes.
func Invalidate(ctx context.Context, c Cache, scopes ...Scope) error {
	for _, s := range scopes {
		if _, err := c.DeletePrefix(ctx, s.Prefix()); err != nil {
			return err
		}
	}
	return nil
}
