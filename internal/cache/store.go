package cache

import (
	"context"
	"time"
)

// Store is the minimal byte store the result cache runs on. Implementations
// must be safe for concurrent use and byte-for-byte transparent: Get returns
// exactly the bytes previously passed to Set for the same key.
type Store interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// IO or remote errors are returned as (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes a key (best-effort)
	Del(ctx context.Context, key string) error

	// Close releases resources
	Close() error
}
