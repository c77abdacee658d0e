package types

import (
	"context"
	"time"
)

// RemoteStore defines the interface for the networked key-value service
// backing the remote cache tier. The engine assumes at least this surface;
// it does not assume transactions, pub/sub, or server-side scripting.
//
// Implementations must be safe for concurrent use. The store client is a
// shared, long-lived resource reused by many concurrent operations.
type RemoteStore interface {
	// Get fetches the raw value for a key. An absent key returns
	// (nil, nil), never an error.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes a value. A positive ttl sets a per-key expiry in the
	// store's native expiry units; a zero or negative ttl stores the value
	// without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes the given keys. Deleting absent keys is not an error.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime of a key. It returns zero when the
	// key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys enumerates the keys matching a glob-style prefix pattern
	// (for example "semcache:embeddings:*").
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies connectivity to the store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection resources.
	Close() error
}
